// Package seed loads a project file and pushes it to the surface each time
// the surface reports page ready.
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
	"pkt.systems/pslog"
	"pkt.systems/timelinebridge/internal/logx"
	"pkt.systems/timelinebridge/internal/variant"
	"pkt.systems/timelinebridge/schema"
)

// Project is a seed file. JSON files parse as YAML too.
type Project struct {
	Tracks    []map[string]any `yaml:"tracks"`
	Clips     []map[string]any `yaml:"clips"`
	Duration  *float64         `yaml:"duration"`
	Playhead  *float64         `yaml:"playhead"`
	FrameRate any              `yaml:"fps"`
}

// Target receives seed commands. *core.Bridge satisfies it.
type Target interface {
	AddTrack(track schema.Track)
	AddClip(clip schema.Clip)
	ResizeTimeline(duration float64, opts schema.ResizeOptions)
	MovePlayhead(seconds float64)
	SetFrameRate(fps float64)
	SetFrameRateRational(num, den int)
}

// Load reads and validates a seed file.
func Load(path string) (Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Project{}, err
	}
	project, err := Parse(data)
	if err != nil {
		return Project{}, fmt.Errorf("seed %s: %w", path, err)
	}
	return project, nil
}

// Parse decodes and validates seed content.
func Parse(data []byte) (Project, error) {
	var project Project
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&project); err != nil && !errors.Is(err, io.EOF) {
		return Project{}, err
	}
	for i, track := range project.Tracks {
		if id, _ := variant.String(track["id"]); id == "" {
			return Project{}, fmt.Errorf("tracks[%d]: id is required", i)
		}
	}
	for i, clip := range project.Clips {
		if id, _ := variant.String(clip["id"]); id == "" {
			return Project{}, fmt.Errorf("clips[%d]: id is required", i)
		}
	}
	if project.Duration != nil && *project.Duration < 0 {
		return Project{}, errors.New("duration must not be negative")
	}
	if project.Playhead != nil && *project.Playhead < 0 {
		return Project{}, errors.New("playhead must not be negative")
	}
	if project.FrameRate != nil {
		if _, _, ok := frameRate(project.FrameRate); !ok {
			return Project{}, errors.New("fps must be a number or a num/den mapping")
		}
	}
	return project, nil
}

// Empty reports whether applying the project would send nothing.
func (p Project) Empty() bool {
	return len(p.Tracks) == 0 && len(p.Clips) == 0 && p.Duration == nil && p.Playhead == nil && p.FrameRate == nil
}

// Apply sends tracks, clips, duration, playhead and frame rate in that order.
func (p Project) Apply(target Target) {
	for _, track := range p.Tracks {
		target.AddTrack(schema.ParseTrack(track))
	}
	for _, clip := range p.Clips {
		normalized, _ := variant.Map(clip)
		target.AddClip(schema.Clip(normalized))
	}
	if p.Duration != nil {
		target.ResizeTimeline(*p.Duration, schema.DefaultResizeOptions())
	}
	if p.Playhead != nil {
		target.MovePlayhead(*p.Playhead)
	}
	if p.FrameRate != nil {
		if fps, ok := variant.Float(p.FrameRate); ok {
			target.SetFrameRate(fps)
		} else if num, den, ok := frameRate(p.FrameRate); ok {
			target.SetFrameRateRational(num, den)
		}
	}
}

func frameRate(value any) (int, int, bool) {
	if _, ok := variant.Float(value); ok {
		return 0, 0, true
	}
	m, ok := variant.Map(value)
	if !ok {
		return 0, 0, false
	}
	num, ok := variant.Int(m["num"])
	if !ok || num <= 0 {
		return 0, 0, false
	}
	den, ok := variant.Int(m["den"])
	if !ok || den == 0 {
		den = 1
	}
	return num, den, den > 0
}

// Sink applies the project on every page ready notification.
type Sink struct {
	project Project
	target  Target
	log     pslog.Logger
}

// NewSink constructs a seeding sink.
func NewSink(project Project, target Target, logger pslog.Logger) *Sink {
	return &Sink{project: project, target: target, log: logx.Or(logger)}
}

// OnLog implements core.EventSink.
func (s *Sink) OnLog(schema.LogEvent) {}

// OnInvoke implements core.EventSink.
func (s *Sink) OnInvoke(schema.InvokeEvent) {}

// OnProjectState implements core.EventSink.
func (s *Sink) OnProjectState(schema.ProjectStateEvent) {}

// OnPageReady implements core.EventSink.
func (s *Sink) OnPageReady(schema.PageReadyEvent) {
	if s.project.Empty() || s.target == nil {
		return
	}
	s.log.Info("seed applying project", "tracks", len(s.project.Tracks), "clips", len(s.project.Clips))
	s.project.Apply(s.target)
}
