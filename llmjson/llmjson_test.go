package llmjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObjectPlain(t *testing.T) {
	raw, err := ExtractObject(`{"label": "relevant", "confidence": 0.9}`, true)
	require.NoError(t, err)
	assert.Equal(t, `{"label": "relevant", "confidence": 0.9}`, raw)
}

func TestExtractObjectWithNoise(t *testing.T) {
	text := "Sure, here is the verdict:\n{\"label\": \"pass\"}\nHope this helps!"
	raw, err := ExtractObject(text, true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"label": "pass"}`, raw)
}

func TestExtractObjectPrefersCodeBlock(t *testing.T) {
	text := "ignored {broken\n```json\n{\"a\": 1}\n```\ntrailing"
	raw, err := ExtractObject(text, true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, raw)
}

func TestExtractObjectBracesInsideStrings(t *testing.T) {
	text := `prefix {"quote": "contains { and } inside", "n": 2} suffix`
	raw, err := ExtractObject(text, true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"quote": "contains { and } inside", "n": 2}`, raw)
}

func TestExtractObjectEscapedQuotes(t *testing.T) {
	text := `{"quote": "she said \"go {now}\"", "ok": true}`
	raw, err := ExtractObject(text, true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"quote": "she said \"go {now}\"", "ok": true}`, raw)
}

func TestExtractObjectSkipsInvalidCandidates(t *testing.T) {
	text := "{not json} and then {\"valid\": true}"
	raw, err := ExtractObject(text, true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"valid": true}`, raw)
}

func TestExtractObjectNotFound(t *testing.T) {
	_, err := ExtractObject("no objects here, just text", true)
	assert.ErrorIs(t, err, ErrNoJSONObject)

	_, err = ExtractObject("{unclosed", true)
	assert.ErrorIs(t, err, ErrNoJSONObject)

	_, err = ExtractObject("[1, 2, 3]", true)
	assert.ErrorIs(t, err, ErrNoJSONObject, "top-level arrays are not objects")
}

func TestDecodeObject(t *testing.T) {
	var out struct {
		Label string `json:"label"`
	}
	err := DecodeObject("```{\"label\": \"fail\"}```", true, &out)
	require.NoError(t, err)
	assert.Equal(t, "fail", out.Label)
}
