package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalIsCanonical(t *testing.T) {
	b, err := JSONStrict.Marshal(map[string]string{"z": "1", "a": "<b>&", "m": "x"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<b>&","m":"x","z":"1"}`, string(b))
}

func TestStrictRejectsUnknownFields(t *testing.T) {
	var v struct {
		A string `json:"a"`
	}
	assert.Error(t, JSONStrict.Unmarshal([]byte(`{"a":"x","b":1}`), &v))
	require.NoError(t, JSONLenient.Unmarshal([]byte(`{"a":"x","b":1}`), &v))
	assert.Equal(t, "x", v.A)
}

func TestUnmarshalRejectsTrailingContent(t *testing.T) {
	var v map[string]any
	assert.Error(t, JSONLenient.Unmarshal([]byte(`{"a":1} {"b":2}`), &v))
	assert.Error(t, JSONLenient.Unmarshal([]byte(`{"a":`), &v))
}

func TestUnmarshalKeepsNumbers(t *testing.T) {
	var v map[string]any
	require.NoError(t, JSONLenient.Unmarshal([]byte(`{"id":12345678901234567890}`), &v))
	assert.Equal(t, json.Number("12345678901234567890"), v["id"])
	assert.Equal(t, "application/json", JSONLenient.ContentType())
}
