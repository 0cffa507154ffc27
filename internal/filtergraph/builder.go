package filtergraph

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/clipforge/exportd/internal/timeline"
)

// FontResolver maps a font family and weight to a font file path, or empty
// when the engine default should be used.
type FontResolver interface {
	Resolve(family, weight string) string
}

// Plan is the renderable output of the builder: the validated graph, the
// engine input files in -i order, the synthetic background input slot, and
// the two designated sink labels.
type Plan struct {
	Graph           *Graph
	InputPaths      []string
	BackgroundInput int
	VideoLabel      string
	AudioLabel      string
	DurationMs      int64
	Width           int
	Height          int
	FPS             int
	Warnings        []string
}

const (
	videoSink = "vout"
	audioSink = "aout"

	mixSampleRate = 44100
)

// Builder turns a validated timeline plus resolved asset paths into a Plan.
type Builder struct {
	fonts  FontResolver
	logger *slog.Logger
}

func NewBuilder(fonts FontResolver, logger *slog.Logger) *Builder {
	return &Builder{fonts: fonts, logger: logger}
}

// Build constructs the filter graph for the given timeline. Elements whose
// duration is still below the minimum, or whose asset never materialized,
// are skipped with a warning; the render must not fail because one media
// class is absent.
func (b *Builder) Build(elements []timeline.Element, tracks []timeline.Track, settings timeline.ExportSettings, assetPaths map[string]string) (*Plan, error) {
	width, height, ok := settings.Dimensions()
	if !ok {
		return nil, fmt.Errorf("filtergraph: unsupported resolution %q", settings.Resolution)
	}

	plan := &Plan{
		Graph:      New(),
		DurationMs: timeline.TotalDurationMs(elements),
		Width:      width,
		Height:     height,
		FPS:        settings.FPS,
	}

	visuals, audios, texts := b.partition(elements, tracks, assetPaths, plan)

	inputIndex := b.collectInputs(visuals, audios, assetPaths, plan)
	plan.BackgroundInput = len(plan.InputPaths)

	current := b.buildBackground(plan)
	current = b.buildVisuals(plan, visuals, inputIndex, assetPaths, current)
	current = b.buildTexts(plan, texts, current)

	// The last composite becomes the designated video sink.
	b.relabel(plan.Graph, current, videoSink)
	plan.VideoLabel = videoSink

	b.buildAudioMix(plan, audios, inputIndex, assetPaths)
	plan.AudioLabel = audioSink

	if err := plan.Graph.Validate(videoSink, audioSink); err != nil {
		return nil, err
	}
	return plan, nil
}

// partition splits elements into visual, audio and text groups, dropping
// unusable ones. Visuals are ordered by track z-order then timeline start;
// audio and text by timeline start.
func (b *Builder) partition(elements []timeline.Element, tracks []timeline.Track, assetPaths map[string]string, plan *Plan) (visuals, audios, texts []timeline.Element) {
	trackOrder := make(map[string]int, len(tracks))
	for _, t := range tracks {
		trackOrder[t.ID] = t.Order
	}

	for _, el := range elements {
		if el.DurationMs() < timeline.MinElementDurationMs {
			b.skip(plan, el.ID, "below minimum duration")
			continue
		}
		switch {
		case el.IsVisual():
			if _, ok := assetPaths[el.ID]; !ok {
				b.skip(plan, el.ID, "no local asset")
				continue
			}
			visuals = append(visuals, el)
		case el.Type == timeline.ElementAudio:
			if _, ok := assetPaths[el.ID]; !ok {
				b.skip(plan, el.ID, "no local asset")
				continue
			}
			audios = append(audios, el)
		case el.Type == timeline.ElementText || el.Type == timeline.ElementCaption:
			if el.Text == "" {
				b.skip(plan, el.ID, "empty text")
				continue
			}
			texts = append(texts, el)
		}
	}

	sort.SliceStable(visuals, func(i, j int) bool {
		oi, oj := trackOrder[visuals[i].TrackID], trackOrder[visuals[j].TrackID]
		if oi != oj {
			return oi < oj
		}
		return visuals[i].TimelineStartMs < visuals[j].TimelineStartMs
	})
	sort.SliceStable(audios, func(i, j int) bool {
		return audios[i].TimelineStartMs < audios[j].TimelineStartMs
	})
	sort.SliceStable(texts, func(i, j int) bool {
		return texts[i].TimelineStartMs < texts[j].TimelineStartMs
	})
	return visuals, audios, texts
}

func (b *Builder) skip(plan *Plan, elementID, reason string) {
	msg := fmt.Sprintf("element %s skipped: %s", elementID, reason)
	plan.Warnings = append(plan.Warnings, msg)
	if b.logger != nil {
		b.logger.Warn("skipping element", "element_id", elementID, "reason", reason)
	}
}

// collectInputs assigns one engine input per unique local asset path and
// registers the corresponding stream labels as graph sources. Iteration in
// element order keeps the -i order deterministic.
func (b *Builder) collectInputs(visuals, audios []timeline.Element, assetPaths map[string]string, plan *Plan) map[string]int {
	inputIndex := make(map[string]int)
	add := func(path string) {
		if _, ok := inputIndex[path]; ok {
			return
		}
		inputIndex[path] = len(plan.InputPaths)
		plan.InputPaths = append(plan.InputPaths, path)
	}
	for _, el := range visuals {
		add(assetPaths[el.ID])
	}
	for _, el := range audios {
		add(assetPaths[el.ID])
	}
	for _, idx := range inputIndex {
		plan.Graph.Source(fmt.Sprintf("%d:v", idx))
		plan.Graph.Source(fmt.Sprintf("%d:a", idx))
	}
	return inputIndex
}

// buildBackground emits the canvas stream: the synthetic color input scaled
// and padded to the output resolution.
func (b *Builder) buildBackground(plan *Plan) string {
	src := fmt.Sprintf("%d:v", plan.BackgroundInput)
	plan.Graph.Source(src)
	plan.Graph.Chain(src, []Step{
		{Name: "scale", Args: fmt.Sprintf("%d:%d:force_original_aspect_ratio=decrease", plan.Width, plan.Height)},
		{Name: "pad", Args: fmt.Sprintf("%d:%d:(ow-iw)/2:(oh-ih)/2", plan.Width, plan.Height)},
		{Name: "setsar", Args: "1"},
	}, "bg")
	return "bg"
}

// buildVisuals prepares each video/image/gif stream and composites them onto
// the running canvas with layered overlays.
func (b *Builder) buildVisuals(plan *Plan, visuals []timeline.Element, inputIndex map[string]int, assetPaths map[string]string, current string) string {
	for i, el := range visuals {
		prepared := fmt.Sprintf("v%d", i)
		plan.Graph.Chain(
			fmt.Sprintf("%d:v", inputIndex[assetPaths[el.ID]]),
			b.visualSteps(&el, plan),
			prepared,
		)

		next := fmt.Sprintf("ov%d", i)
		x, y := overlayPosition(&el)
		plan.Graph.Add(
			[]string{current, prepared},
			[]Step{{Name: "overlay", Args: fmt.Sprintf("%s:%s:eof_action=pass", x, y)}},
			next,
		)
		current = next
	}
	return current
}

func (b *Builder) visualSteps(el *timeline.Element, plan *Plan) []Step {
	speed := el.EffectiveSpeed()
	durMs := el.DurationMs()

	var steps []Step
	switch el.Type {
	case timeline.ElementImage:
		// stills loop a single frame for the element's duration
		steps = append(steps,
			Step{Name: "loop", Args: "loop=-1:size=1:start=0"},
			Step{Name: "trim", Args: "duration=" + sec(durMs)},
			Step{Name: "setpts", Args: "PTS-STARTPTS"},
		)
	default:
		if el.SourceStartMs != nil && el.SourceEndMs != nil {
			steps = append(steps, Step{
				Name: "trim",
				Args: fmt.Sprintf("start=%s:end=%s", sec(*el.SourceStartMs), sec(*el.SourceEndMs)),
			})
		} else {
			// consume enough source to fill the element at this speed
			steps = append(steps, Step{
				Name: "trim",
				Args: "duration=" + secF(float64(durMs)*speed/1000),
			})
		}
		if speed != 1 {
			steps = append(steps, Step{Name: "setpts", Args: fmt.Sprintf("(PTS-STARTPTS)/%s", num(speed))})
		} else {
			steps = append(steps, Step{Name: "setpts", Args: "PTS-STARTPTS"})
		}
	}

	steps = append(steps,
		Step{Name: "fps", Args: strconv.Itoa(plan.FPS)},
		Step{Name: "scale", Args: fmt.Sprintf("%d:%d:force_original_aspect_ratio=decrease", plan.Width, plan.Height)},
		Step{Name: "pad", Args: fmt.Sprintf("%d:%d:(ow-iw)/2:(oh-ih)/2:color=black@0", plan.Width, plan.Height)},
		Step{Name: "setsar", Args: "1"},
		Step{Name: "format", Args: "yuva420p"},
	)

	if opacity := el.EffectiveOpacity(); opacity < 1 {
		steps = append(steps, Step{Name: "colorchannelmixer", Args: "aa=" + num(opacity)})
	}

	// fades are clamped to half the element's own duration
	if el.TransitionIn != nil && el.TransitionIn.DurationMs > 0 {
		fade := clampTransition(el.TransitionIn.DurationMs, durMs)
		steps = append(steps, Step{
			Name: "fade",
			Args: fmt.Sprintf("t=in:st=0:d=%s:alpha=1", sec(fade)),
		})
	}
	if el.TransitionOut != nil && el.TransitionOut.DurationMs > 0 {
		fade := clampTransition(el.TransitionOut.DurationMs, durMs)
		steps = append(steps, Step{
			Name: "fade",
			Args: fmt.Sprintf("t=out:st=%s:d=%s:alpha=1", sec(durMs-fade), sec(fade)),
		})
	}

	// elements starting after t=0 are padded with transparent frames so the
	// overlay needs no enable window of its own
	if el.TimelineStartMs > 0 {
		steps = append(steps, Step{
			Name: "tpad",
			Args: fmt.Sprintf("start_duration=%s:color=black@0", sec(el.TimelineStartMs)),
		})
	}

	return steps
}

// buildTexts chains one drawtext per text/caption element onto the current
// composite, each gated to its timeline window.
func (b *Builder) buildTexts(plan *Plan, texts []timeline.Element, current string) string {
	for i, el := range texts {
		next := fmt.Sprintf("txt%d", i)
		plan.Graph.Chain(current, []Step{{Name: "drawtext", Args: b.drawtextArgs(&el)}}, next)
		current = next
	}
	return current
}

func (b *Builder) drawtextArgs(el *timeline.Element) string {
	fontSize := el.FontSize
	if fontSize <= 0 {
		fontSize = 24
	}
	fontColor := el.FontColor
	if fontColor == "" {
		fontColor = "white"
	}

	args := fmt.Sprintf("text='%s'", EscapeText(el.Text))
	if b.fonts != nil {
		if fontFile := b.fonts.Resolve(el.FontFamily, el.FontWeight); fontFile != "" {
			args += ":fontfile=" + fontFile
		}
	}
	args += fmt.Sprintf(":fontsize=%d:fontcolor=%s", fontSize, fontColor)

	if el.Position != nil {
		args += fmt.Sprintf(":x=%d:y=%d", int(el.Position.X), int(el.Position.Y))
	} else if el.Type == timeline.ElementCaption {
		args += ":x=(w-text_w)/2:y=h-text_h-64"
	} else {
		args += ":x=(w-text_w)/2:y=(h-text_h)/2"
	}

	args += captionStyleArgs(el)

	args += fmt.Sprintf(":enable='between(t,%s,%s)'", sec(el.TimelineStartMs), sec(el.TimelineEndMs))
	return args
}

// captionStyleArgs renders the caption styling bag (background, border,
// shadow) into drawtext options. Captions get a translucent box by default.
func captionStyleArgs(el *timeline.Element) string {
	style, _ := el.Properties["captionStyle"].(map[string]interface{})

	var args string
	background, hasBackground := style["backgroundColor"].(string)
	if hasBackground {
		args += fmt.Sprintf(":box=1:boxcolor=%s:boxborderw=8", background)
	} else if el.Type == timeline.ElementCaption {
		args += ":box=1:boxcolor=black@0.5:boxborderw=8"
	}

	if borderColor, ok := style["borderColor"].(string); ok {
		borderWidth := 2
		if w, ok := style["borderWidth"].(float64); ok && w > 0 {
			borderWidth = int(w)
		}
		args += fmt.Sprintf(":bordercolor=%s:borderw=%d", borderColor, borderWidth)
	}

	if shadowColor, ok := style["shadowColor"].(string); ok {
		args += fmt.Sprintf(":shadowcolor=%s:shadowx=2:shadowy=2", shadowColor)
	}

	return args
}

// buildAudioMix implements the three-way mix strategy: silence when no audio
// exists, concat-padding for a single stream, and a silent base folded with
// per-stream delays for several.
func (b *Builder) buildAudioMix(plan *Plan, audios []timeline.Element, inputIndex map[string]int, assetPaths map[string]string) {
	total := plan.DurationMs

	switch len(audios) {
	case 0:
		plan.Graph.Add(nil, []Step{
			{Name: "anullsrc", Args: fmt.Sprintf("channel_layout=stereo:sample_rate=%d", mixSampleRate)},
			{Name: "atrim", Args: "duration=" + sec(total)},
		}, audioSink)
		return

	case 1:
		el := audios[0]
		prepared := "a0"
		plan.Graph.Chain(
			fmt.Sprintf("%d:a", inputIndex[assetPaths[el.ID]]),
			b.audioSteps(&el),
			prepared,
		)

		padded := prepared
		if el.TimelineStartMs > 0 {
			plan.Graph.Add(nil, []Step{
				{Name: "anullsrc", Args: fmt.Sprintf("channel_layout=stereo:sample_rate=%d", mixSampleRate)},
				{Name: "atrim", Args: "duration=" + sec(el.TimelineStartMs)},
			}, "lead0")
			plan.Graph.Add([]string{"lead0", prepared}, []Step{
				{Name: "concat", Args: "n=2:v=0:a=1"},
			}, "cat0")
			padded = "cat0"
		}

		plan.Graph.Chain(padded, []Step{
			{Name: "apad", Args: "whole_dur=" + sec(total)},
			{Name: "atrim", Args: "duration=" + sec(total)},
		}, audioSink)
		return
	}

	plan.Graph.Add(nil, []Step{
		{Name: "anullsrc", Args: fmt.Sprintf("channel_layout=stereo:sample_rate=%d", mixSampleRate)},
		{Name: "atrim", Args: "duration=" + sec(total)},
	}, "abase")

	current := "abase"
	for i, el := range audios {
		prepared := fmt.Sprintf("a%d", i)
		steps := b.audioSteps(&el)
		if el.TimelineStartMs > 0 {
			steps = append(steps, Step{
				Name: "adelay",
				Args: fmt.Sprintf("%d:all=1", el.TimelineStartMs),
			})
		}
		plan.Graph.Chain(fmt.Sprintf("%d:a", inputIndex[assetPaths[el.ID]]), steps, prepared)

		next := fmt.Sprintf("mix%d", i)
		if i == len(audios)-1 {
			next = audioSink
		}
		plan.Graph.Add([]string{current, prepared}, []Step{
			{Name: "amix", Args: "inputs=2:duration=first:dropout_transition=0:normalize=0"},
		}, next)
		current = next
	}
}

func (b *Builder) audioSteps(el *timeline.Element) []Step {
	speed := el.EffectiveSpeed()
	durMs := el.DurationMs()

	var steps []Step
	if el.SourceStartMs != nil && el.SourceEndMs != nil {
		steps = append(steps, Step{
			Name: "atrim",
			Args: fmt.Sprintf("start=%s:end=%s", sec(*el.SourceStartMs), sec(*el.SourceEndMs)),
		})
	} else {
		steps = append(steps, Step{
			Name: "atrim",
			Args: "duration=" + secF(float64(durMs)*speed/1000),
		})
	}
	steps = append(steps, Step{Name: "asetpts", Args: "PTS-STARTPTS"})

	for _, factor := range atempoChain(speed) {
		steps = append(steps, Step{Name: "atempo", Args: num(factor)})
	}

	if volume := el.EffectiveVolume(); volume != 1 {
		steps = append(steps, Step{Name: "volume", Args: num(volume)})
	}

	steps = append(steps,
		Step{Name: "atrim", Args: "duration=" + sec(durMs)},
		Step{Name: "aformat", Args: fmt.Sprintf("sample_rates=%d:channel_layouts=stereo", mixSampleRate)},
	)
	return steps
}

// atempoChain decomposes a playback speed into atempo stages, since a single
// atempo only accepts factors in [0.5, 2.0]. A speed of 1 yields no stages.
func atempoChain(speed float64) []float64 {
	if speed == 1 {
		return nil
	}
	var stages []float64
	for speed > 2.0 {
		stages = append(stages, 2.0)
		speed /= 2.0
	}
	for speed < 0.5 {
		stages = append(stages, 0.5)
		speed /= 0.5
	}
	return append(stages, speed)
}

// relabel rewrites the node producing oldLabel to produce newLabel instead.
func (b *Builder) relabel(g *Graph, oldLabel, newLabel string) {
	if oldLabel == newLabel {
		return
	}
	for _, n := range g.nodes {
		for i, out := range n.Outputs {
			if out == oldLabel {
				n.Outputs[i] = newLabel
				return
			}
		}
	}
}

func clampTransition(transitionMs, elementMs int64) int64 {
	if max := elementMs / 2; transitionMs > max {
		return max
	}
	return transitionMs
}

func overlayPosition(el *timeline.Element) (x, y string) {
	if el.Position != nil {
		return strconv.Itoa(int(el.Position.X)), strconv.Itoa(int(el.Position.Y))
	}
	return "0", "0"
}

// sec formats milliseconds as seconds with millisecond precision.
func sec(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', 3, 64)
}

func secF(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
