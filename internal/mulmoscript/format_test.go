package mulmoscript_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mulmocast-backend/internal/mulmoscript"
)

func TestFormatParse_RoundTrip(t *testing.T) {
	inputs := []string{
		`{"formatVersion":"1.0","beats":[{"text":"hi"}]}`,
		`{"formatVersion":"2.1","speakers":[{"name":"Host","voice":"nova"},{"name":"Guest","voice":"echo"}],
		  "beats":[{"text":"a","speaker":"Host","durationMs":1250.5},{"text":"b","image":{"prompt":"p","url":"u"}}]}`,
		`{"$mulmocast":{"version":"1.0"},"speakers":[],"beats":[]}`,
	}
	for _, raw := range inputs {
		first, err := mulmoscript.Validate([]byte(raw))
		require.NoError(t, err, raw)

		second := mulmoscript.Parse(mulmoscript.Format(first))
		require.NotNil(t, second, raw)
		assert.Equal(t, first, second, raw)
	}
}

func TestFormat_Indented(t *testing.T) {
	out := mulmoscript.Format(mulmoscript.DefaultScript())
	assert.Contains(t, out, "\n  \"formatVersion\": \"1.0\"")
	assert.Contains(t, out, `"voice": "alloy"`)
}

func TestParse_TolerantOfGarbage(t *testing.T) {
	assert.Nil(t, mulmoscript.Parse(`{"formatVersion": "1.0", "beats": [`))
	assert.Nil(t, mulmoscript.Parse(`{"formatVersion": "1.0"}`))
	assert.NotNil(t, mulmoscript.Parse(mulmoscript.Format(mulmoscript.DefaultScript())))
}

func TestLint(t *testing.T) {
	script := mulmoscript.Parse(`{
		"formatVersion": "1.0",
		"speakers": [{"name": "Host", "voice": "alloy"}],
		"beats": [{"text": "a", "speaker": "Host"}, {"text": "b", "speaker": "Ghost", "image": {}}]
	}`)
	require.NotNil(t, script)

	warnings := mulmoscript.Lint(script)
	require.Len(t, warnings, 2)
	assert.Equal(t, "beats[1].speaker", warnings[0].Field)
	assert.Equal(t, "beats[1].image", warnings[1].Field)

	empty := mulmoscript.Parse(`{"formatVersion":"1.0","beats":[]}`)
	require.NotNil(t, empty)
	assert.Equal(t, "beats", mulmoscript.Lint(empty)[0].Field)
}
