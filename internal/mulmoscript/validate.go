// Package mulmoscript validates, formats and parses MulmoScript documents.
//
// Validation is tolerant of shape beyond the declared fields: unknown keys are
// ignored at every level. Problems are collected rather than reported one at a
// time so editors can show every broken field at once.
package mulmoscript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"mulmocast-backend/internal/apperrors"
	"mulmocast-backend/internal/models"
)

const invalidScriptMessage = "invalid MulmoScript format"

var maxDurationMs = float64(models.MaxBeatDuration.Milliseconds())

// Validate decodes raw JSON and validates it as a script document.
func Validate(raw []byte) (*models.Script, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, apperrors.NewValidationError(invalidScriptMessage,
			apperrors.FieldError{Message: "malformed JSON: " + err.Error()})
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, apperrors.NewValidationError(invalidScriptMessage,
			apperrors.FieldError{Message: "malformed JSON: unexpected data after document"})
	}
	return ValidateValue(v)
}

// ValidateValue validates an already decoded JSON value (maps, slices,
// strings, float64 or json.Number).
func ValidateValue(v any) (*models.Script, error) {
	c := &checker{}
	script := c.script(v)
	if len(c.errs) > 0 {
		return nil, apperrors.NewValidationError(invalidScriptMessage, c.errs...)
	}
	return script, nil
}

type checker struct {
	errs []apperrors.FieldError
}

func (c *checker) fail(field, format string, args ...any) {
	c.errs = append(c.errs, apperrors.FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) script(v any) *models.Script {
	obj, ok := v.(map[string]any)
	if !ok {
		c.fail("", "expected object, got %s", describe(v))
		return nil
	}

	script := &models.Script{}
	if fv, present := obj["formatVersion"]; present && fv != nil {
		script.FormatVersion = c.requiredString(obj, "formatVersion", "formatVersion")
	} else if legacy, present := obj["$mulmocast"]; present && legacy != nil {
		meta, ok := legacy.(map[string]any)
		if !ok {
			c.fail("$mulmocast", "expected object, got %s", describe(legacy))
		} else {
			script.FormatVersion = c.requiredString(meta, "version", "$mulmocast.version")
		}
	} else {
		c.fail("formatVersion", "required")
	}

	if raw, present := obj["speakers"]; present && raw != nil {
		items, ok := raw.([]any)
		if !ok {
			c.fail("speakers", "expected array, got %s", describe(raw))
		}
		for i, item := range items {
			if sp, ok := c.speaker(fmt.Sprintf("speakers[%d]", i), item); ok {
				script.Speakers = append(script.Speakers, sp)
			}
		}
	}

	raw, present := obj["beats"]
	if !present || raw == nil {
		c.fail("beats", "required")
		return script
	}
	items, ok := raw.([]any)
	if !ok {
		c.fail("beats", "expected array, got %s", describe(raw))
		return script
	}
	script.Beats = make([]models.Beat, 0, len(items))
	for i, item := range items {
		if beat, ok := c.beat(fmt.Sprintf("beats[%d]", i), item); ok {
			script.Beats = append(script.Beats, beat)
		}
	}
	return script
}

func (c *checker) speaker(path string, v any) (models.Speaker, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		c.fail(path, "expected object, got %s", describe(v))
		return models.Speaker{}, false
	}
	before := len(c.errs)
	name := c.requiredString(obj, "name", path+".name")
	voice := models.Voice(c.requiredString(obj, "voice", path+".voice"))
	if len(c.errs) == before && !voice.Valid() {
		c.fail(path+".voice", "must be one of %s", voiceList())
	}
	return models.Speaker{Name: name, Voice: voice}, len(c.errs) == before
}

func (c *checker) beat(path string, v any) (models.Beat, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		c.fail(path, "expected object, got %s", describe(v))
		return models.Beat{}, false
	}
	before := len(c.errs)
	beat := models.Beat{
		Text:    c.requiredString(obj, "text", path+".text"),
		Speaker: c.optionalString(obj, "speaker", path+".speaker"),
	}

	durationKey := "durationMs"
	if _, present := obj[durationKey]; !present {
		durationKey = "duration"
	}
	if raw, present := obj[durationKey]; present && raw != nil {
		n, ok := asNumber(raw)
		switch {
		case !ok:
			c.fail(path+"."+durationKey, "expected number, got %s", describe(raw))
		case n < 0:
			c.fail(path+"."+durationKey, "must not be negative")
		case n > maxDurationMs:
			c.fail(path+"."+durationKey, "must not exceed %d", int64(maxDurationMs))
		default:
			beat.DurationMs = &n
		}
	}

	if raw, present := obj["image"]; present && raw != nil {
		img, ok := raw.(map[string]any)
		if !ok {
			c.fail(path+".image", "expected object, got %s", describe(raw))
		} else {
			beat.Image = &models.BeatImage{
				Prompt: c.optionalString(img, "prompt", path+".image.prompt"),
				URL:    c.optionalString(img, "url", path+".image.url"),
			}
		}
	}
	return beat, len(c.errs) == before
}

func (c *checker) requiredString(obj map[string]any, key, path string) string {
	raw, present := obj[key]
	if !present || raw == nil {
		c.fail(path, "required")
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		c.fail(path, "expected string, got %s", describe(raw))
	}
	return s
}

func (c *checker) optionalString(obj map[string]any, key, path string) string {
	raw, present := obj[key]
	if !present || raw == nil {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		c.fail(path, "expected string, got %s", describe(raw))
	}
	return s
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func voiceList() string {
	names := make([]string, len(models.Voices))
	for i, v := range models.Voices {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}
