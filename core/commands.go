package core

import (
	"fmt"
	"strings"

	"pkt.systems/timelinebridge/internal/variant"
	"pkt.systems/timelinebridge/schema"
)

// Dispatch runs a named outbound command with loosely typed arguments, as
// received from the HTTP command surface. Only argument shape errors are
// reported; delivery stays fire-and-forget.
func (b *Bridge) Dispatch(command string, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	args = variant.CloneMap(args)
	switch strings.TrimSpace(command) {
	case schema.CommandAddTrack:
		track := schema.ParseTrack(args)
		if track.ID == "" {
			return invalidArgs(command, "id is required")
		}
		b.AddTrack(track)
	case schema.CommandRemoveTrack:
		id, ok := args["id"]
		if !ok || id == nil {
			return invalidArgs(command, "id is required")
		}
		b.RemoveTrack(id, schema.RemoveTrackOptions{
			KeepClips:   variant.Bool(args["keepClips"]),
			AllowShrink: variant.Bool(args["allowShrink"]),
		})
	case schema.CommandAddClip:
		clip := schema.Clip(args)
		if clip.ID() == "" {
			return invalidArgs(command, "id is required")
		}
		b.AddClip(clip)
	case schema.CommandRemoveClip:
		id, err := requireString(command, args, "id")
		if err != nil {
			return err
		}
		b.RemoveClip(id)
	case schema.CommandUpdateClip:
		id, err := requireString(command, args, "id")
		if err != nil {
			return err
		}
		patch, ok := variant.Map(args["patch"])
		if !ok {
			return invalidArgs(command, "patch must be an object")
		}
		b.UpdateClip(id, patch)
	case schema.CommandMoveClip:
		id, err := requireString(command, args, "id")
		if err != nil {
			return err
		}
		opts := schema.MoveClipOptions{Layer: args["layer"]}
		if pos, ok := variant.Float(args["position"]); ok {
			opts.Position = &pos
		}
		if extra, ok := variant.Map(args["options"]); ok {
			opts.Extra = extra
		}
		b.MoveClip(id, opts)
	case schema.CommandPlay:
		opts := schema.PlayOptions{}
		if start, ok := variant.Float(args["startAt"]); ok {
			opts.StartAt = &start
		}
		b.PlayPlayhead(opts)
	case schema.CommandPause:
		b.PausePlayhead()
	case schema.CommandToggle:
		b.TogglePlayhead()
	case schema.CommandSetClipColor:
		id, err := requireString(command, args, "id")
		if err != nil {
			return err
		}
		color, err := requireString(command, args, "color")
		if err != nil {
			return err
		}
		textColor, _ := variant.String(args["textColor"])
		b.SetClipColor(id, color, textColor)
	case schema.CommandSetProjectState:
		b.SetProjectState(schema.ParseProjectState(args))
	case schema.CommandSetFrameRate:
		if fps, ok := variant.Float(args["fps"]); ok {
			b.SetFrameRate(fps)
			return nil
		}
		num, ok := variant.Int(args["num"])
		if !ok {
			return invalidArgs(command, "fps or num/den is required")
		}
		den, ok := variant.Int(args["den"])
		if !ok {
			den = 1
		}
		b.SetFrameRateRational(num, den)
	case schema.CommandResizeTimeline:
		duration, ok := variant.Float(args["duration"])
		if !ok || duration < 0 {
			return invalidArgs(command, "duration must be a non-negative number")
		}
		opts := schema.DefaultResizeOptions()
		if raw, ok := args["allowShrink"]; ok {
			opts.AllowShrink = variant.Bool(raw)
		}
		b.ResizeTimeline(duration, opts)
	case schema.CommandMovePlayhead:
		seconds, ok := variant.Float(args["seconds"])
		if !ok || seconds < 0 {
			return invalidArgs(command, "seconds must be a non-negative number")
		}
		b.MovePlayhead(seconds)
	case schema.CommandRequestProjectState:
		b.RequestProjectState()
	default:
		return fmt.Errorf("%w: %q", schema.ErrUnknownCommand, command)
	}
	return nil
}

func requireString(command string, args map[string]any, key string) (string, error) {
	value, ok := variant.String(args[key])
	if !ok || value == "" {
		return "", invalidArgs(command, key+" is required")
	}
	return value, nil
}

func invalidArgs(command, detail string) error {
	return fmt.Errorf("%w: %s: %s", schema.ErrInvalidArgs, command, detail)
}
