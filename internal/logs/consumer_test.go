package logs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
	"github.com/ternarybob/migro/internal/services/events"
)

type memLogStorage struct {
	mu      sync.Mutex
	entries []*models.JobLogEntry
}

func (m *memLogStorage) Append(entry *models.JobLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memLogStorage) GetByJob(jobID string, limit int) ([]*models.JobLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.JobLogEntry
	for _, entry := range m.entries {
		if entry.JobID == jobID && len(out) < limit {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *memLogStorage) DeleteByJob(string) error { return nil }

func (m *memLogStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func newConsumer(t *testing.T, storage *memLogStorage, bus interfaces.EventService) *Consumer {
	t.Helper()
	consumer := NewConsumer(storage, bus, arbor.NewLogger(), "info")
	require.NoError(t, consumer.Start())
	t.Cleanup(func() { consumer.Stop() })
	return consumer
}

func TestConsumerPersistsCorrelatedLogs(t *testing.T) {
	storage := &memLogStorage{}
	consumer := newConsumer(t, storage, nil)

	consumer.GetChannel() <- []arbormodels.LogEvent{
		{
			CorrelationID: "job_c1",
			Level:         log.InfoLevel,
			Message:       "Crawled page",
			Fields:        map[string]interface{}{"url": "https://shop.example/a"},
			Timestamp:     time.Now(),
		},
	}

	require.Eventually(t, func() bool { return storage.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	entries, err := storage.GetByJob("job_c1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "info", entries[0].Level)
	assert.Contains(t, entries[0].Message, "url=https://shop.example/a")
}

func TestConsumerSkipsUncorrelatedAndNoise(t *testing.T) {
	storage := &memLogStorage{}
	consumer := newConsumer(t, storage, nil)

	consumer.GetChannel() <- []arbormodels.LogEvent{
		{CorrelationID: "", Level: log.InfoLevel, Message: "system line", Timestamp: time.Now()},
		{CorrelationID: "job_c2", Level: log.DebugLevel, Message: "HTTP request", Timestamp: time.Now()},
		{CorrelationID: "job_c2", Level: log.InfoLevel, Message: "kept", Timestamp: time.Now()},
	}

	require.Eventually(t, func() bool { return storage.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	entries, err := storage.GetByJob("job_c2", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].Message)
}

func TestConsumerPublishesLogEvents(t *testing.T) {
	storage := &memLogStorage{}
	bus := events.NewService(arbor.NewLogger())

	var mu sync.Mutex
	var published []string
	require.NoError(t, bus.Subscribe(interfaces.EventLog, func(_ context.Context, event interfaces.Event) error {
		payload := event.Payload.(map[string]interface{})
		mu.Lock()
		published = append(published, payload["message"].(string))
		mu.Unlock()
		return nil
	}))

	consumer := newConsumer(t, storage, bus)

	consumer.GetChannel() <- []arbormodels.LogEvent{
		{CorrelationID: "job_c3", Level: log.DebugLevel, Message: "below threshold", Timestamp: time.Now()},
		{CorrelationID: "job_c3", Level: log.WarnLevel, Message: "selector brittle", Timestamp: time.Now()},
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(published) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"selector brittle"}, published)
}
