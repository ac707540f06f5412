package models

import (
	"math"
	"time"
)

// DefaultBeatDuration is what downstream renderers assume for a beat
// without an explicit durationMs.
const DefaultBeatDuration = 3000 * time.Millisecond

// MaxBeatDuration bounds a single beat. Longer values are rejected by
// validation and clamped by EffectiveDuration.
const MaxBeatDuration = 24 * time.Hour

// Script is the MulmoScript document wrapped by projects and templates.
type Script struct {
	FormatVersion string    `json:"formatVersion"`
	Speakers      []Speaker `json:"speakers,omitempty"`
	Beats         []Beat    `json:"beats"`
}

type Speaker struct {
	Name  string `json:"name"`
	Voice Voice  `json:"voice"`
}

type Beat struct {
	Text       string     `json:"text"`
	Speaker    string     `json:"speaker,omitempty"`
	DurationMs *float64   `json:"durationMs,omitempty"`
	Image      *BeatImage `json:"image,omitempty"`
}

// BeatImage is a hint for the visual of a beat: a generation prompt, a
// ready-made url, or both.
type BeatImage struct {
	Prompt string `json:"prompt,omitempty"`
	URL    string `json:"url,omitempty"`
}

type Voice string

const (
	VoiceAlloy   Voice = "alloy"
	VoiceEcho    Voice = "echo"
	VoiceFable   Voice = "fable"
	VoiceOnyx    Voice = "onyx"
	VoiceNova    Voice = "nova"
	VoiceShimmer Voice = "shimmer"
)

var Voices = []Voice{VoiceAlloy, VoiceEcho, VoiceFable, VoiceOnyx, VoiceNova, VoiceShimmer}

func (v Voice) Valid() bool {
	for _, known := range Voices {
		if v == known {
			return true
		}
	}
	return false
}

// EffectiveDuration applies the default duration policy.
func (b Beat) EffectiveDuration() time.Duration {
	if b.DurationMs == nil {
		return DefaultBeatDuration
	}
	ms := *b.DurationMs
	switch {
	case math.IsNaN(ms) || ms <= 0:
		return 0
	case ms >= float64(MaxBeatDuration/time.Millisecond):
		return MaxBeatDuration
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// TotalDuration sums the effective duration of every beat, saturating at the
// largest representable duration.
func (s *Script) TotalDuration() time.Duration {
	var total time.Duration
	for _, beat := range s.Beats {
		d := beat.EffectiveDuration()
		if total > math.MaxInt64-d {
			return math.MaxInt64
		}
		total += d
	}
	return total
}

// HasSpeaker reports whether name is declared in Speakers.
func (s *Script) HasSpeaker(name string) bool {
	for _, sp := range s.Speakers {
		if sp.Name == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stored scripts are never aliased.
func (s *Script) Clone() *Script {
	if s == nil {
		return nil
	}
	out := &Script{FormatVersion: s.FormatVersion}
	if s.Speakers != nil {
		out.Speakers = append([]Speaker(nil), s.Speakers...)
	}
	if s.Beats != nil {
		out.Beats = make([]Beat, len(s.Beats))
		for i, beat := range s.Beats {
			cp := beat
			if beat.DurationMs != nil {
				d := *beat.DurationMs
				cp.DurationMs = &d
			}
			if beat.Image != nil {
				img := *beat.Image
				cp.Image = &img
			}
			out.Beats[i] = cp
		}
	}
	return out
}
