package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `json:"name"`
	Link string `json:"link"`
	N    int    `json:"n"`
}

func TestMarshalRoundTrip(t *testing.T) {
	in := sample{Name: "axion", Link: "https://docs.axiondb.io/?a=1&b=2", N: 7}

	data, err := Marshal(in)
	require.NoError(t, err)

	var out sample
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestMarshalOutputShape(t *testing.T) {
	data, err := Marshal(sample{Link: "<script>&"})
	require.NoError(t, err)

	// No trailing newline and no HTML escaping.
	assert.False(t, bytes.HasSuffix(data, []byte("\n")))
	assert.Contains(t, string(data), "<script>&")
	assert.NotContains(t, string(data), `\u003c`)
}

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(sample{Name: "enc"}))

	var out sample
	require.NoError(t, NewDecoder(&buf).Decode(&out))
	assert.Equal(t, "enc", out.Name)
}
