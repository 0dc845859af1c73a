package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerBackoffZeroValueSafe(t *testing.T) {
	var b serverBackoff
	p := somePeer(t, 9)
	assert.False(t, b.Backoff(p))
	b.AddBackoff(p)
	assert.True(t, b.Backoff(p))
}

func TestServerBackoffClear(t *testing.T) {
	var b serverBackoff
	p := somePeer(t, 9)
	b.AddBackoff(p)
	require := assert.New(t)
	require.True(b.Backoff(p))
	b.Clear(p)
	require.False(b.Backoff(p))
}
