package syncutil

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupStopWaitsForGoroutines(t *testing.T) {
	g := NewGroup(context.Background())
	var done atomic.Int32
	for i := 0; i < 3; i++ {
		g.Go(func(ctx context.Context) {
			<-ctx.Done()
			done.Add(1)
		})
	}

	g.Stop()
	g.Stop()

	assert.Equal(t, int32(3), done.Load())
	assert.Error(t, g.Context().Err())
}

func TestGroupFollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	g := NewGroup(parent)
	cancel()

	<-g.Context().Done()
	g.Stop()
}

func TestGroupWaitDoesNotCancel(t *testing.T) {
	g := NewGroup(context.Background())
	g.Go(func(context.Context) {})
	g.Wait()

	assert.NoError(t, g.Context().Err())
	g.Stop()
}
