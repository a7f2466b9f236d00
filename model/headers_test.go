package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeHeaders(t *testing.T) {
	headers := map[string]string{
		"source":      "api",
		"contentType": "application/json",
	}

	encoded, err := EncodeHeaders(headers)
	assert.NoError(t, err)
	assert.Contains(t, encoded, `"v":1`)

	decoded, err := DecodeHeaders(encoded)
	assert.NoError(t, err)
	assert.Equal(t, headers, decoded)
}

func TestEncodeHeaders_Empty(t *testing.T) {
	encoded, err := EncodeHeaders(nil)
	assert.NoError(t, err)
	assert.Empty(t, encoded)

	encoded, err = EncodeHeaders(map[string]string{})
	assert.NoError(t, err)
	assert.Empty(t, encoded)
}

func TestDecodeHeaders_Empty(t *testing.T) {
	decoded, err := DecodeHeaders("")
	assert.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDecodeHeaders_Invalid(t *testing.T) {
	_, err := DecodeHeaders("{not json")
	assert.Error(t, err)
}

func TestDecodeHeaders_UnsupportedVersion(t *testing.T) {
	_, err := DecodeHeaders(`{"v":99,"headers":{"a":"b"}}`)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported version")
}
