package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractHost(t *testing.T) {
	assert.Equal(t, "localhost", ExtractHost("ws://localhost:3001"))
	assert.Equal(t, "example.com", ExtractHost("wss://example.com/path"))
	assert.Equal(t, "192.168.1.1", ExtractHost("ws://192.168.1.1:8080/ws"))
	assert.Equal(t, "", ExtractHost("http://example.com"))
}
