package ontology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		type_tag string
		value    interface{}
		encoded  string
	}{
		{"str", "hello", "hello"},
		{"int", int64(42), "42"},
		{"float", 2.5, "2.5"},
		{"bool", true, "true"},
	}

	for _, testcase := range cases {
		encoded, err := Encode(testcase.type_tag, testcase.value)
		require.NoError(t, err)
		assert.Equal(t, testcase.encoded, encoded)

		decoded, err := Decode(testcase.type_tag, encoded)
		require.NoError(t, err)
		assert.EqualValues(t, testcase.value, decoded)
	}
}

func TestDict(t *testing.T) {
	encoded, err := Encode("dict", map[string]interface{}{"a": "b"})
	require.NoError(t, err)

	decoded, err := Decode("dict", encoded)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": "b"}, decoded)
}

func TestTypeMismatch(t *testing.T) {
	_, err := Encode("int", "not an int")
	assert.Error(t, err)

	_, err = Encode("bool", 1)
	assert.Error(t, err)

	_, err = Encode("no_such_type", "x")
	assert.Error(t, err)
}
