package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStructuredPlainObject(t *testing.T) {
	fields, err := ParseStructured(`{"summary":"ok","confidence":0.9}`)
	require.NoError(t, err)
	assert.Equal(t, "ok", fields["summary"])
	assert.Equal(t, 0.9, fields["confidence"])
}

func TestParseStructuredCodeFence(t *testing.T) {
	text := "```json\n{\"summary\":\"ok\",\"confidence\":0.5}\n```"
	fields, err := ParseStructured(text)
	require.NoError(t, err)
	assert.Equal(t, "ok", fields["summary"])
}

func TestParseStructuredBareFence(t *testing.T) {
	text := "```\n{\"summary\":\"ok\"}\n```"
	fields, err := ParseStructured(text)
	require.NoError(t, err)
	assert.Equal(t, "ok", fields["summary"])
}

func TestParseStructuredSurroundingProse(t *testing.T) {
	text := "Here is my final analysis:\n{\"summary\":\"ok\",\"confidence\":1}\nLet me know if you need more."
	fields, err := ParseStructured(text)
	require.NoError(t, err)
	assert.Equal(t, "ok", fields["summary"])
}

func TestParseStructuredNoObject(t *testing.T) {
	_, err := ParseStructured("I could not find any data.")
	assert.Error(t, err)
}

func TestParseStructuredMalformed(t *testing.T) {
	_, err := ParseStructured(`{"summary": unterminated`)
	assert.Error(t, err)
}

func TestSortedMetaPairs(t *testing.T) {
	pairs := sortedMetaPairs(map[string]string{"stock_code": "600519", "company": "xyz"})
	require.Len(t, pairs, 2)
	assert.Equal(t, [2]string{"company", "xyz"}, pairs[0])
	assert.Equal(t, [2]string{"stock_code", "600519"}, pairs[1])
}
