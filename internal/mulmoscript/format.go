package mulmoscript

import (
	"encoding/json"
	"fmt"

	"mulmocast-backend/internal/apperrors"
	"mulmocast-backend/internal/models"
)

// CurrentFormatVersion is written into documents created by the service.
const CurrentFormatVersion = "1.0"

// Format renders script as canonical two-space indented JSON.
func Format(script *models.Script) string {
	data, err := json.MarshalIndent(script, "", "  ")
	if err != nil {
		// Script only holds strings, slices and finite numbers.
		return ""
	}
	return string(data)
}

// Parse is the tolerant entry point for editors: any decode or validation
// failure yields nil instead of an error.
func Parse(text string) *models.Script {
	script, err := Validate([]byte(text))
	if err != nil {
		return nil
	}
	return script
}

// Lint reports problems that do not make a script invalid but that renderers
// will likely trip over.
func Lint(script *models.Script) []apperrors.FieldError {
	var warnings []apperrors.FieldError
	if len(script.Beats) == 0 {
		warnings = append(warnings, apperrors.FieldError{Field: "beats", Message: "script has no beats"})
	}
	for i, beat := range script.Beats {
		path := fmt.Sprintf("beats[%d]", i)
		if beat.Speaker != "" && !script.HasSpeaker(beat.Speaker) {
			warnings = append(warnings, apperrors.FieldError{
				Field:   path + ".speaker",
				Message: fmt.Sprintf("references undeclared speaker %q", beat.Speaker),
			})
		}
		if beat.Image != nil && beat.Image.Prompt == "" && beat.Image.URL == "" {
			warnings = append(warnings, apperrors.FieldError{
				Field:   path + ".image",
				Message: "has neither prompt nor url",
			})
		}
	}
	return warnings
}

// DefaultScript is the starter document offered to new projects.
func DefaultScript() *models.Script {
	duration := float64(models.DefaultBeatDuration.Milliseconds())
	return &models.Script{
		FormatVersion: CurrentFormatVersion,
		Speakers:      []models.Speaker{{Name: "Host", Voice: models.VoiceAlloy}},
		Beats: []models.Beat{
			{Text: "Welcome to this AI-generated content.", Speaker: "Host", DurationMs: &duration},
		},
	}
}
