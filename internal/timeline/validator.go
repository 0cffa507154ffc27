package timeline

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Limits bounds the size of a timeline a single export job will accept.
type Limits struct {
	MaxElements int
	MaxTracks   int
	MinFPS      int
	MaxFPS      int
}

// DefaultLimits are the ceilings applied when the caller passes a zero Limits.
var DefaultLimits = Limits{
	MaxElements: 200,
	MaxTracks:   20,
	MinFPS:      1,
	MaxFPS:      120,
}

// ValidationReport is the outcome of validating a raw timeline payload.
// When Valid is true, Corrected holds the element list downstream stages
// must use in place of the raw input.
type ValidationReport struct {
	Valid     bool      `json:"valid"`
	Errors    []string  `json:"errors,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
	Corrected []Element `json:"-"`
}

func (r *ValidationReport) errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationReport) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate normalizes and sanity-checks a raw timeline. It is a pure
// function: the input slices are never mutated, corrections are applied to
// copies collected in the report.
func Validate(elements []Element, tracks []Track, settings ExportSettings, limits Limits) ValidationReport {
	if limits.MaxElements == 0 {
		limits = DefaultLimits
	}

	report := ValidationReport{}

	validateSettings(settings, limits, &report)

	if len(tracks) == 0 {
		report.errorf("timeline has no tracks")
	}
	if len(tracks) > limits.MaxTracks {
		report.errorf("track count %d exceeds limit %d", len(tracks), limits.MaxTracks)
	}
	if len(elements) > limits.MaxElements {
		report.errorf("element count %d exceeds limit %d", len(elements), limits.MaxElements)
	}

	trackSet := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		if trackSet[t.ID] {
			report.errorf("duplicate track id %q", t.ID)
		}
		trackSet[t.ID] = true
	}

	// downstream stages key asset paths and input streams on element id, so
	// duplicates would silently collapse onto one file
	elementSet := make(map[string]bool, len(elements))
	corrected := make([]Element, 0, len(elements))
	for i := range elements {
		el := elements[i] // copy
		if elementSet[el.ID] {
			report.errorf("duplicate element id %q", el.ID)
		}
		elementSet[el.ID] = true
		validateElement(&el, trackSet, &report)
		corrected = append(corrected, el)
	}

	detectOverlaps(corrected, &report)

	report.Valid = len(report.Errors) == 0
	if report.Valid {
		report.Corrected = corrected
	}
	return report
}

func validateSettings(settings ExportSettings, limits Limits, report *ValidationReport) {
	if _, _, ok := settings.Dimensions(); !ok {
		report.errorf("unsupported resolution %q (allowed: 480p, 720p, 1080p)", settings.Resolution)
	}
	if settings.FPS < limits.MinFPS || settings.FPS > limits.MaxFPS {
		report.errorf("fps %d outside allowed range [%d,%d]", settings.FPS, limits.MinFPS, limits.MaxFPS)
	}
	if _, _, ok := settings.Encoder(); !ok {
		report.errorf("unsupported quality %q (allowed: low, medium, high)", settings.Quality)
	}
}

func validateElement(el *Element, trackSet map[string]bool, report *ValidationReport) {
	if !trackSet[el.TrackID] {
		report.errorf("element %s references unknown track %q", el.ID, el.TrackID)
	}

	switch el.Type {
	case ElementVideo, ElementAudio, ElementImage, ElementGIF, ElementText, ElementCaption:
	default:
		report.errorf("element %s has unknown type %q", el.ID, el.Type)
		return
	}

	if el.RequiresAsset() {
		external := el.ExternalAssetURL()
		if el.AssetID == "" && external == "" {
			report.errorf("element %s (%s) references no asset", el.ID, el.Type)
		}
		if _, hasExternal := el.Properties["externalAsset"]; hasExternal {
			if external == "" {
				report.errorf("element %s has an external asset descriptor without a url", el.ID)
			} else if u, err := url.Parse(external); err != nil || u.Scheme == "" || u.Host == "" {
				report.errorf("element %s has an unparseable external asset url %q", el.ID, external)
			}
		}
	}

	// Corrections. Each rewrites the copied element and records a warning.
	if el.TimelineStartMs < 0 {
		report.warnf("element %s starts before 0ms, clamped", el.ID)
		el.TimelineStartMs = 0
		if el.TimelineEndMs < MinElementDurationMs {
			el.TimelineEndMs = MinElementDurationMs
		}
	}
	if el.TimelineEndMs-el.TimelineStartMs < MinElementDurationMs {
		report.warnf("element %s shorter than %dms, extended", el.ID, MinElementDurationMs)
		el.TimelineEndMs = el.TimelineStartMs + MinElementDurationMs
	}
	if el.SourceStartMs != nil && *el.SourceStartMs < 0 {
		report.warnf("element %s source trim starts before 0ms, clamped", el.ID)
		start := int64(0)
		el.SourceStartMs = &start
	}

	if el.SourceStartMs != nil && el.SourceEndMs != nil && *el.SourceEndMs <= *el.SourceStartMs {
		report.errorf("element %s has an empty source trim window", el.ID)
	}
	if el.DurationMs() <= 0 {
		report.errorf("element %s has non-positive duration after correction", el.ID)
	}
}

// detectOverlaps records a warning for every pair of same-track elements with
// intersecting timeline windows. Overlap is tolerated: tracks composite as
// layers, so overlapping content stacks by z-order instead of conflicting.
func detectOverlaps(elements []Element, report *ValidationReport) {
	byTrack := make(map[string][]Element)
	for _, el := range elements {
		byTrack[el.TrackID] = append(byTrack[el.TrackID], el)
	}

	trackIDs := make([]string, 0, len(byTrack))
	for id := range byTrack {
		trackIDs = append(trackIDs, id)
	}
	sort.Strings(trackIDs)

	for _, trackID := range trackIDs {
		els := byTrack[trackID]
		sort.Slice(els, func(i, j int) bool { return els[i].TimelineStartMs < els[j].TimelineStartMs })
		for i := 1; i < len(els); i++ {
			prev, cur := els[i-1], els[i]
			if cur.TimelineStartMs < prev.TimelineEndMs {
				report.warnf("elements %s and %s overlap on track %s", prev.ID, cur.ID, trackID)
			}
		}
	}
}

// TotalDurationMs returns the end of the last element, floored at the
// minimum element duration so an empty timeline still renders something.
func TotalDurationMs(elements []Element) int64 {
	var total int64
	for _, el := range elements {
		if el.TimelineEndMs > total {
			total = el.TimelineEndMs
		}
	}
	if total < MinElementDurationMs {
		total = MinElementDurationMs
	}
	return total
}

// IsPlaceholderAssetID reports whether an asset id is a local placeholder
// that must never be sent to the storage collaborator. The editor inserts
// ids like "blob:..." or "local-3" for assets that were never uploaded.
func IsPlaceholderAssetID(id string) bool {
	if id == "" {
		return true
	}
	lower := strings.ToLower(id)
	return strings.HasPrefix(lower, "blob:") ||
		strings.HasPrefix(lower, "local-") ||
		strings.HasPrefix(lower, "temp-") ||
		strings.ContainsAny(id, " \t\n")
}
