package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledClientIsNoop(t *testing.T) {
	c, err := New(Config{Enabled: false}, nil)
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	c.Count("x", 1)
	c.Gauge("y", 2)
	assert.NoError(t, c.Close())
}

func TestNilClientIsNoop(t *testing.T) {
	var c *Client
	assert.False(t, c.Enabled())
	c.Count("x", 1, "a:b")
	c.Gauge("y", 1)
	assert.NoError(t, c.Close())
}

func TestEnabledClient(t *testing.T) {
	c, err := New(Config{Enabled: true, Address: "127.0.0.1:8125", Namespace: "imperium", Tags: []string{"env:test"}}, nil)
	require.NoError(t, err)
	defer c.Close() //nolint:errcheck // Test cleanup

	assert.True(t, c.Enabled())
	c.Count("scheduler.iteration.success", 1, "loop:test")
	c.Gauge("mqtt.connected", 1)
}
