package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_PassesThroughResult(t *testing.T) {
	cb := NewCircuitBreaker(DefaultConfig("test"))

	got, err := Execute(cb, func() (bool, error) { return true, nil })

	require.NoError(t, err)
	assert.True(t, got)
}

func TestExecute_OpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("redis")
	cfg.Timeout = time.Hour
	cb := NewCircuitBreaker(cfg)
	boom := errors.New("connection refused")

	for i := 0; i < 5; i++ {
		_, err := Execute(cb, func() (int, error) { return 0, boom })
		require.ErrorIs(t, err, boom)
	}
	assert.True(t, IsOpen(cb))

	called := false
	_, err := Execute(cb, func() (int, error) {
		called = true
		return 1, nil
	})
	assert.False(t, called)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Contains(t, err.Error(), "redis")
}
