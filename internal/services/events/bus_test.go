package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/interfaces"
)

func TestSubscribeRejectsNilHandler(t *testing.T) {
	bus := NewService(arbor.NewLogger())
	assert.Error(t, bus.Subscribe(interfaces.EventImportProgress, nil))
}

func TestPublishReachesSubscribers(t *testing.T) {
	bus := NewService(arbor.NewLogger())

	var received atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)

	handler := func(_ context.Context, event interfaces.Event) error {
		defer wg.Done()
		received.Add(1)
		assert.Equal(t, interfaces.EventImportProgress, event.Type)
		return nil
	}
	require.NoError(t, bus.Subscribe(interfaces.EventImportProgress, handler))
	require.NoError(t, bus.Subscribe(interfaces.EventImportProgress, handler))

	require.NoError(t, bus.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventImportProgress,
		Payload: map[string]interface{}{"job_id": "job-1"},
	}))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handlers not invoked")
	}
	assert.Equal(t, int32(2), received.Load())
}

func TestPublishIgnoresOtherEventTypes(t *testing.T) {
	bus := NewService(arbor.NewLogger())

	called := make(chan struct{}, 1)
	require.NoError(t, bus.Subscribe(interfaces.EventImportStatus, func(context.Context, interfaces.Event) error {
		called <- struct{}{}
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), interfaces.Event{Type: interfaces.EventImportProgress}))

	select {
	case <-called:
		t.Fatal("handler for a different event type was invoked")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishSyncAggregatesErrors(t *testing.T) {
	bus := NewService(arbor.NewLogger())

	require.NoError(t, bus.Subscribe(interfaces.EventImportStatus, func(context.Context, interfaces.Event) error {
		return fmt.Errorf("boom")
	}))
	require.NoError(t, bus.Subscribe(interfaces.EventImportStatus, func(context.Context, interfaces.Event) error {
		return nil
	}))

	err := bus.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventImportStatus})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 errors")
}

func TestCloseDropsSubscriptions(t *testing.T) {
	bus := NewService(arbor.NewLogger())

	require.NoError(t, bus.Subscribe(interfaces.EventImportStatus, func(context.Context, interfaces.Event) error {
		t.Error("handler invoked after close")
		return nil
	}))
	require.NoError(t, bus.Close())
	require.NoError(t, bus.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventImportStatus}))
}
