package logs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	arborlevels "github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/migro/internal/interfaces"
	"github.com/ternarybob/migro/internal/models"
)

// Consumer drains arbor's context channel and fans each correlated log
// line out to the per-job log store and the event bus. Any logger
// derived with WithCorrelationId(jobID) feeds it, so pipeline services
// get job-scoped logs without touching storage themselves.
type Consumer struct {
	storage       interfaces.JobLogStorage
	events        interfaces.EventService
	logger        arbor.ILogger
	channel       chan []arbormodels.LogEvent
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	minEventLevel arborlevels.LogLevel
}

// NewConsumer creates a log consumer; minEventLevel bounds which lines
// are re-published on the event bus for live streaming
func NewConsumer(storage interfaces.JobLogStorage, events interfaces.EventService, logger arbor.ILogger, minEventLevel string) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		storage:       storage,
		events:        events,
		logger:        logger,
		channel:       make(chan []arbormodels.LogEvent, 10),
		ctx:           ctx,
		cancel:        cancel,
		minEventLevel: parseEventLevel(minEventLevel),
	}
}

// GetChannel returns the channel to hand to arbor's SetChannel
func (c *Consumer) GetChannel() chan []arbormodels.LogEvent {
	return c.channel
}

// Start launches the consumer goroutine
func (c *Consumer) Start() error {
	c.wg.Add(1)
	go c.consume()
	return nil
}

// Stop drains and shuts down the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}

func (c *Consumer) consume() {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Log consumer panic recovered")
		}
	}()

	for {
		select {
		case batch, ok := <-c.channel:
			if !ok {
				return
			}
			c.processBatch(batch)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) processBatch(batch []arbormodels.LogEvent) {
	for _, event := range batch {
		// Request-tracing noise is not job history
		if strings.HasPrefix(event.Message, "HTTP request") ||
			strings.HasPrefix(event.Message, "HTTP response") ||
			strings.Contains(event.Message, "WebSocket client") {
			continue
		}

		entry := transformEvent(event)
		if entry.JobID != "" {
			if err := c.storage.Append(entry); err != nil {
				c.logger.Warn().
					Err(err).
					Str("job_id", entry.JobID).
					Msg("Failed to persist job log")
			}
		}

		if c.events != nil && arborlevels.FromLogLevel(event.Level) >= c.minEventLevel {
			c.publish(entry)
		}
	}
}

func (c *Consumer) publish(entry *models.JobLogEntry) {
	err := c.events.Publish(c.ctx, interfaces.Event{
		Type: interfaces.EventLog,
		Payload: map[string]interface{}{
			"job_id":    entry.JobID,
			"level":     entry.Level,
			"message":   entry.Message,
			"timestamp": entry.Timestamp.Format("15:04:05"),
		},
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("job_id", entry.JobID).Msg("Failed to publish log event")
	}
}

// transformEvent converts an arbor log event into a job log entry,
// folding structured fields into the message text
func transformEvent(event arbormodels.LogEvent) *models.JobLogEntry {
	message := event.Message
	if len(event.Fields) > 0 {
		keys := make([]string, 0, len(event.Fields))
		for key := range event.Fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			message += fmt.Sprintf(" %s=%v", key, event.Fields[key])
		}
	}

	return &models.JobLogEntry{
		JobID:     event.CorrelationID,
		Level:     levelString(event.Level),
		Message:   message,
		Timestamp: event.Timestamp,
	}
}

func levelString(level log.Level) string {
	switch level {
	case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
		return "error"
	case log.WarnLevel:
		return "warn"
	case log.DebugLevel, log.TraceLevel:
		return "debug"
	default:
		return "info"
	}
}

func parseEventLevel(levelStr string) arborlevels.LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return arborlevels.DebugLevel
	case "warn", "warning":
		return arborlevels.WarnLevel
	case "error":
		return arborlevels.ErrorLevel
	default:
		return arborlevels.InfoLevel
	}
}
