package jsonrepair

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArrayDirect(t *testing.T) {
	records, err := ParseArray(`[{"a":1},{"a":2}]`)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestParseArrayFenced(t *testing.T) {
	records, err := ParseArray("```json\n[{\"a\":1}]\n```")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.JSONEq(t, `{"a":1}`, string(records[0]))
}

func TestParseArrayPythonLiterals(t *testing.T) {
	records, err := ParseArray(`[{"a": None, "b": True, "c": False}]`)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.JSONEq(t, `{"a": null, "b": true, "c": false}`, string(records[0]))
}

func TestParseArrayLiteralsInsideStringsPreserved(t *testing.T) {
	records, err := ParseArray(`[{"note": "None of these are True"}]`)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.JSONEq(t, `{"note": "None of these are True"}`, string(records[0]))
}

func TestParseArrayEmbeddedInProse(t *testing.T) {
	raw := `Here are the transformed records:
[{"name": "Widget"}, {"name": "Gadget"}]
Let me know if you need anything else.`

	records, err := ParseArray(raw)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestParseArrayObjectFragments(t *testing.T) {
	raw := `{"a":1} some stray text between {"b":2}`

	records, err := ParseArray(raw)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.JSONEq(t, `{"a":1}`, string(records[0]))
	assert.JSONEq(t, `{"b":2}`, string(records[1]))
}

func TestParseArraySingleObjectPromoted(t *testing.T) {
	records, err := ParseArray(`{"a":1}`)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestParseArrayGarbage(t *testing.T) {
	_, err := ParseArray("complete { nonsense ] here")
	require.ErrorIs(t, err, ErrUnparsable)

	_, err = ParseArray("")
	require.ErrorIs(t, err, ErrUnparsable)
}

func TestConformCount(t *testing.T) {
	records := []json.RawMessage{json.RawMessage(`{"a":1}`)}

	padded := ConformCount(records, 3)
	require.Len(t, padded, 3)
	assert.JSONEq(t, PlaceholderRecord, string(padded[2]))

	truncated := ConformCount(padded, 1)
	require.Len(t, truncated, 1)
	assert.JSONEq(t, `{"a":1}`, string(truncated[0]))

	assert.Empty(t, ConformCount(nil, 0))
}
