// Package timeline defines the editing timeline model accepted by the export
// API and the validator that normalizes it before rendering.
package timeline

type ElementType string

const (
	ElementVideo   ElementType = "video"
	ElementAudio   ElementType = "audio"
	ElementImage   ElementType = "image"
	ElementGIF     ElementType = "gif"
	ElementText    ElementType = "text"
	ElementCaption ElementType = "caption"
)

// MinElementDurationMs is the shortest duration an element may occupy on the
// timeline. Shorter windows are extended during validation.
const MinElementDurationMs = 100

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Transition struct {
	Type       string `json:"type"`
	DurationMs int64  `json:"durationMs"`
}

// Element is one positioned, timed unit of content on a track.
// Elements are immutable once a job is created; the validator returns
// corrected copies rather than mutating callers' input.
type Element struct {
	ID              string      `json:"id"`
	Type            ElementType `json:"type"`
	TrackID         string      `json:"trackId"`
	TimelineStartMs int64       `json:"timelineStartMs"`
	TimelineEndMs   int64       `json:"timelineEndMs"`
	SourceStartMs   *int64      `json:"sourceStartMs,omitempty"`
	SourceEndMs     *int64      `json:"sourceEndMs,omitempty"`
	AssetID         string      `json:"assetId,omitempty"`

	// Speed, Volume and Opacity are pointers so an absent field can take
	// its default while an explicit zero (muted, fully transparent) is
	// preserved.
	Speed   *float64 `json:"speed,omitempty"`
	Volume  *float64 `json:"volume,omitempty"`
	Opacity *float64 `json:"opacity,omitempty"`

	Text       string    `json:"text,omitempty"`
	FontSize   int       `json:"fontSize,omitempty"`
	FontColor  string    `json:"fontColor,omitempty"`
	FontFamily string    `json:"fontFamily,omitempty"`
	FontWeight string    `json:"fontWeight,omitempty"`
	Position   *Position `json:"position,omitempty"`

	TransitionIn  *Transition `json:"transitionIn,omitempty"`
	TransitionOut *Transition `json:"transitionOut,omitempty"`

	// Properties is an open bag for external-asset descriptors and
	// caption styling.
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// DurationMs returns the timeline duration of the element.
func (e *Element) DurationMs() int64 {
	return e.TimelineEndMs - e.TimelineStartMs
}

// IsVisual reports whether the element contributes to the video composite.
func (e *Element) IsVisual() bool {
	switch e.Type {
	case ElementVideo, ElementImage, ElementGIF:
		return true
	}
	return false
}

// RequiresAsset reports whether the element type references an underlying
// media asset.
func (e *Element) RequiresAsset() bool {
	switch e.Type {
	case ElementVideo, ElementAudio, ElementImage, ElementGIF:
		return true
	}
	return false
}

// EffectiveSpeed returns the playback-rate multiplier with the default applied.
func (e *Element) EffectiveSpeed() float64 {
	if e.Speed == nil || *e.Speed <= 0 {
		return 1
	}
	return *e.Speed
}

// EffectiveVolume returns the linear gain with the default applied.
func (e *Element) EffectiveVolume() float64 {
	if e.Volume == nil || *e.Volume < 0 {
		return 1
	}
	return *e.Volume
}

// EffectiveOpacity returns the opacity clamped to [0,1] with the default applied.
func (e *Element) EffectiveOpacity() float64 {
	if e.Opacity == nil || *e.Opacity < 0 || *e.Opacity > 1 {
		return 1
	}
	return *e.Opacity
}

// ExternalAssetURL returns the external asset URL from the properties bag,
// or empty when the element is not backed by an external asset.
func (e *Element) ExternalAssetURL() string {
	ext, ok := e.Properties["externalAsset"].(map[string]interface{})
	if !ok {
		return ""
	}
	url, _ := ext["url"].(string)
	return url
}

// Track groups elements into a rendering layer. Track order is z-order for
// video and mix order for audio.
type Track struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Order int    `json:"order"`
}

type ExportSettings struct {
	Resolution string `json:"resolution"`
	FPS        int    `json:"fps"`
	Quality    string `json:"quality"`
}

// resolutions maps the allowed resolution names to output dimensions.
var resolutions = map[string][2]int{
	"480p":  {854, 480},
	"720p":  {1280, 720},
	"1080p": {1920, 1080},
}

// Dimensions returns the pixel width and height for the configured
// resolution. Unknown resolutions return ok=false.
func (s ExportSettings) Dimensions() (width, height int, ok bool) {
	dims, ok := resolutions[s.Resolution]
	if !ok {
		return 0, 0, false
	}
	return dims[0], dims[1], true
}

// qualities maps the allowed quality names to x264 preset/CRF pairs.
var qualities = map[string]struct {
	Preset string
	CRF    int
}{
	"low":    {"veryfast", 28},
	"medium": {"medium", 23},
	"high":   {"slow", 18},
}

// Encoder returns the x264 preset and CRF for the configured quality.
func (s ExportSettings) Encoder() (preset string, crf int, ok bool) {
	q, ok := qualities[s.Quality]
	if !ok {
		return "", 0, false
	}
	return q.Preset, q.CRF, true
}
