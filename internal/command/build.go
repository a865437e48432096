// SPDX-License-Identifier: MIT
package command

import (
	"fmt"
	"math"
	"slices"
)

// Build dispatches on the command name.
func Build(name string, args []any) (Command, error) {
	switch name {
	case "tone":
		return BuildTone(args), nil
	case "capture", "scope":
		return BuildCapture(args), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
}

// BuildTone reads freq, ampl, dur and channels from a key/value sequence.
func BuildTone(args []any) ToneRequest {
	req := DefaultToneRequest()
	walkPairs(args, func(key string, val any) bool {
		switch key {
		case "freq":
			return setFloat(&req.Freq, val)
		case "ampl", "amp":
			return setFloat(&req.Ampl, val)
		case "dur":
			return setFloat(&req.Dur, val)
		case "channels":
			chs, ok := toChannels(val)
			if !ok {
				return false
			}
			slices.Sort(chs)
			req.Channels = chs
		}
		return true
	})
	return req
}

// BuildCapture reads the channels list from a key/value sequence.
func BuildCapture(args []any) CaptureSpec {
	var channels []int
	walkPairs(args, func(key string, val any) bool {
		if key != "channels" {
			return true
		}
		chs, ok := toChannels(val)
		if ok {
			channels = chs
		}
		return ok
	})
	return NewCaptureSpec(channels...)
}

// walkPairs calls fn for each key/value pair until the sequence runs out,
// a key is not a string, or fn returns false. A dangling key is dropped.
func walkPairs(args []any, fn func(key string, val any) bool) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			return
		}
		if !fn(key, args[i+1]) {
			return
		}
	}
}

func setFloat(dst *float64, v any) bool {
	f, ok := toFloat(v)
	if ok {
		*dst = f
	}
	return ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func toChannels(v any) ([]int, bool) {
	switch l := v.(type) {
	case []int:
		return slices.Clone(l), true
	case []any:
		out := make([]int, 0, len(l))
		for _, e := range l {
			f, ok := toFloat(e)
			if !ok {
				return nil, false
			}
			ch, ok := toChannel(f)
			if !ok {
				return nil, false
			}
			out = append(out, ch)
		}
		return out, true
	}
	if f, ok := toFloat(v); ok {
		if ch, ok := toChannel(f); ok {
			return []int{ch}, true
		}
	}
	return nil, false
}

// toChannel converts a numeric channel index. Non-finite values are
// rejected; huge ones are clamped and end up silent in the route.
func toChannel(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(max(min(f, math.MaxInt32), math.MinInt32)), true
}
