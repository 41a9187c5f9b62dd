package solidmime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromURI(t *testing.T) {
	ct, ok := FromURI("https://pod.example/a.ttl")
	assert.True(t, ok)
	assert.Equal(t, "text/turtle", ct)

	_, ok = FromURI("https://pod.example/noext")
	assert.False(t, ok)
}

func TestFromContentPlainText(t *testing.T) {
	ct, ok := FromContent(0, []byte("Plain"))
	assert.True(t, ok)
	assert.Contains(t, ct, "text/plain")
}

func TestFromContentHTML(t *testing.T) {
	ct, ok := FromContent(0, []byte("<html><body>hi</body></html>"))
	assert.True(t, ok)
	assert.Contains(t, ct, "html")
}

func TestFromContentPastSniffWindowNeverMutates(t *testing.T) {
	_, ok := FromContent(2000, []byte("<html></html>"))
	assert.False(t, ok)
}

func TestFromContentEmptyBufferNoOp(t *testing.T) {
	_, ok := FromContent(0, nil)
	assert.False(t, ok)
}
