package mulmoscript_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mulmocast-backend/internal/apperrors"
	"mulmocast-backend/internal/models"
	"mulmocast-backend/internal/mulmoscript"
)

func fieldsOf(err error) []string {
	var fields []string
	for _, d := range apperrors.DetailsOf(err) {
		fields = append(fields, d.Field)
	}
	return fields
}

func TestValidate_MinimalScript(t *testing.T) {
	script, err := mulmoscript.Validate([]byte(`{"formatVersion":"1.0","beats":[{"text":"hi"}]}`))
	require.NoError(t, err)

	assert.Equal(t, "1.0", script.FormatVersion)
	assert.Nil(t, script.Speakers)
	require.Len(t, script.Beats, 1)
	assert.Equal(t, "hi", script.Beats[0].Text)
	assert.Nil(t, script.Beats[0].DurationMs)
}

func TestValidate_FullScriptIgnoresUnknownKeys(t *testing.T) {
	raw := `{
		"formatVersion": "1.0",
		"title": "ignored",
		"speakers": [{"name": "Host", "voice": "alloy", "pitch": 3}],
		"beats": [
			{"text": "hello", "speaker": "Host", "durationMs": 2500, "image": {"prompt": "sunrise"}},
			{"text": "bye", "image": {"url": "https://example.com/a.png"}}
		]
	}`
	script, err := mulmoscript.Validate([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, []models.Speaker{{Name: "Host", Voice: models.VoiceAlloy}}, script.Speakers)
	require.NotNil(t, script.Beats[0].DurationMs)
	assert.Equal(t, 2500.0, *script.Beats[0].DurationMs)
	assert.Equal(t, "sunrise", script.Beats[0].Image.Prompt)
	assert.Equal(t, "https://example.com/a.png", script.Beats[1].Image.URL)
}

func TestValidate_LegacyAliases(t *testing.T) {
	raw := `{"$mulmocast":{"version":"1.0"},"beats":[{"text":"hi","duration":1200}]}`
	script, err := mulmoscript.Validate([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "1.0", script.FormatVersion)
	assert.Equal(t, 1200.0, *script.Beats[0].DurationMs)
	assert.Contains(t, mulmoscript.Format(script), `"formatVersion": "1.0"`)
}

func TestValidate_MissingBeats(t *testing.T) {
	script, err := mulmoscript.Validate([]byte(`{"formatVersion":"1.0"}`))
	assert.Nil(t, script)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
	assert.Equal(t, []string{"beats"}, fieldsOf(err))
}

func TestValidate_CollectsEveryFieldError(t *testing.T) {
	raw := `{
		"formatVersion": 1,
		"speakers": [{"name": "Host", "voice": "robot"}, "nope"],
		"beats": [{"speaker": 4}, {"text": "ok", "durationMs": "long"}, {"text": "x", "durationMs": -1}, {"text": "y", "image": "pic"}]
	}`
	_, err := mulmoscript.Validate([]byte(raw))
	require.Error(t, err)

	assert.ElementsMatch(t, []string{
		"formatVersion",
		"speakers[0].voice",
		"speakers[1]",
		"beats[0].text",
		"beats[0].speaker",
		"beats[1].durationMs",
		"beats[2].durationMs",
		"beats[3].image",
	}, fieldsOf(err))
}

func TestValidate_DurationUpperBound(t *testing.T) {
	limit := models.MaxBeatDuration.Milliseconds()

	script, err := mulmoscript.Validate([]byte(fmt.Sprintf(`{"formatVersion":"1.0","beats":[{"text":"a","durationMs":%d}]}`, limit)))
	require.NoError(t, err)
	assert.Equal(t, models.MaxBeatDuration, script.TotalDuration())

	_, err = mulmoscript.Validate([]byte(`{"formatVersion":"1.0","beats":[{"text":"a","durationMs":1e300},{"text":"b","durationMs":1e13}]}`))
	require.Error(t, err)
	assert.Equal(t, []string{"beats[0].durationMs", "beats[1].durationMs"}, fieldsOf(err))
	assert.Contains(t, apperrors.DetailsOf(err)[0].Message, "must not exceed")
}

func TestValidate_NonObjectInputs(t *testing.T) {
	for _, raw := range []string{`[]`, `"script"`, `42`, `null`, `{`, `{} {}`, ``} {
		script, err := mulmoscript.Validate([]byte(raw))
		assert.Nil(t, script, raw)
		assert.True(t, apperrors.IsValidationError(err), raw)
	}
}

func TestValidate_EmptyBeatsAccepted(t *testing.T) {
	script, err := mulmoscript.Validate([]byte(`{"formatVersion":"1.0","speakers":[],"beats":[]}`))
	require.NoError(t, err)
	assert.Empty(t, script.Beats)
	assert.Nil(t, script.Speakers)
}

func TestValidateValue_DecodedMaps(t *testing.T) {
	script, err := mulmoscript.ValidateValue(map[string]any{
		"formatVersion": "1.0",
		"beats":         []any{map[string]any{"text": "hi", "durationMs": float64(10)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, *script.Beats[0].DurationMs)
}
