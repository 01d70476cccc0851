package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	err := PrintYAML(&buf, sample{Name: "alpha", Value: 42})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "name: alpha")
	assert.Contains(t, buf.String(), "value: 42")
}

func TestPrintYAMLRoundTrip(t *testing.T) {
	in := []sample{{Name: "a", Value: 1}, {Name: "b", Value: 2}}

	var buf bytes.Buffer
	require.NoError(t, PrintYAML(&buf, in))

	var out []sample
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, in, out)
}
