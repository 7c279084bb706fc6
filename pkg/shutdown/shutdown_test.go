package shutdown

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManager_RunsAllCallbacks(t *testing.T) {
	m := NewManager()
	var n atomic.Int32
	m.OnShutdown("a", func(ctx context.Context) { n.Add(1) })
	m.OnShutdown("b", func(ctx context.Context) { n.Add(1) })

	assert.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, int32(2), n.Load())
}

func TestManager_Timeout(t *testing.T) {
	m := NewManager()
	release := make(chan struct{})
	defer close(release)
	m.OnShutdown("slow", func(ctx context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Shutdown(ctx), context.DeadlineExceeded)
}

func TestManager_Empty(t *testing.T) {
	assert.NoError(t, NewManager().Shutdown(context.Background()))
}
