// Package journal writes dispatch decisions to a Kafka topic. Recording never
// blocks the dispatcher: records are queued, written by a background loop,
// and writes that fail are retried on a ticker until they succeed or run out
// of attempts.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"mqttaction/internal/metrics"
	"mqttaction/pkg/types"
)

// failedRecord tracks a record whose write failed.
type failedRecord struct {
	record       types.JournalRecord
	reason       string
	attempts     int
	firstFailure time.Time
	lastAttempt  time.Time
}

// Journal queues records and writes them to Kafka.
type Journal struct {
	writer        Writer
	topic         string
	retryInterval time.Duration
	maxRetries    int
	maxPending    int
	logger        zerolog.Logger
	metrics       metrics.Recorder

	queue chan types.JournalRecord

	// Retry tracking, keyed by recordKey
	failed   map[string]*failedRecord
	failedMu sync.RWMutex
}

// Option configures a Journal.
type Option func(*Journal)

// WithMetrics sets the recorder for write outcomes.
func WithMetrics(r metrics.Recorder) Option {
	return func(j *Journal) {
		if r != nil {
			j.metrics = r
		}
	}
}

// New returns a journal writing to cfg.Topic through w. Run must be started
// for anything to be written.
func New(cfg types.JournalConfig, w Writer, logger zerolog.Logger, opts ...Option) *Journal {
	j := &Journal{
		writer:        w,
		topic:         cfg.Topic,
		retryInterval: cfg.Retry.Interval,
		maxRetries:    cfg.Retry.MaxRetries,
		maxPending:    cfg.Retry.MaxPending,
		logger:        logger,
		metrics:       metrics.Nop{},
		failed:        make(map[string]*failedRecord),
	}
	if j.retryInterval <= 0 {
		j.retryInterval = 30 * time.Second
	}
	if j.maxRetries <= 0 {
		j.maxRetries = 3
	}
	if j.maxPending <= 0 {
		j.maxPending = 1000
	}
	for _, opt := range opts {
		opt(j)
	}
	j.queue = make(chan types.JournalRecord, j.maxPending)
	return j
}

// Record queues rec. When the queue is full the record is dropped.
func (j *Journal) Record(rec types.JournalRecord) {
	select {
	case j.queue <- rec:
	default:
		j.metrics.JournalWrite("dropped")
		j.logger.Warn().
			Str("event", "journal.queue_full").
			Str("decision", rec.Decision).
			Msg("journal queue full, dropping record")
	}
}

// Run writes queued records and retries failed ones until ctx is done, then
// closes the writer.
func (j *Journal) Run(ctx context.Context) error {
	j.logger.Info().
		Str("event", "journal.start").
		Str("topic", j.topic).
		Dur("retry_interval", j.retryInterval).
		Msg("action journal started")

	ticker := time.NewTicker(j.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return j.close()
		case rec := <-j.queue:
			if err := j.write(ctx, rec); err != nil {
				j.handleFailed(rec, err)
			}
		case <-ticker.C:
			j.retryFailed(ctx)
		}
	}
}

// Pending returns the number of records waiting for a retry.
func (j *Journal) Pending() int {
	j.failedMu.RLock()
	defer j.failedMu.RUnlock()
	return len(j.failed)
}

func (j *Journal) write(ctx context.Context, rec types.JournalRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal journal record: %w", err)
	}

	err = j.writer.WriteMessages(ctx, kafka.Message{
		Topic: j.topic,
		Key:   []byte(rec.Decision),
		Value: value,
		Time:  rec.ReceivedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to write journal record to Kafka: %w", err)
	}

	j.metrics.JournalWrite("ok")
	return nil
}

// handleFailed adds rec to the retry set, or drops it once it has used up
// its attempts.
func (j *Journal) handleFailed(rec types.JournalRecord, err error) {
	key := recordKey(rec)
	now := time.Now()

	j.failedMu.Lock()
	defer j.failedMu.Unlock()

	failed, exists := j.failed[key]
	if !exists {
		if len(j.failed) >= j.maxPending {
			j.metrics.JournalWrite("dropped")
			j.logger.Error().Err(err).Str("event", "journal.retry_full").Msg("retry queue full, dropping record")
			return
		}
		failed = &failedRecord{record: rec, firstFailure: now}
		j.failed[key] = failed
	}
	failed.attempts++
	failed.lastAttempt = now
	failed.reason = err.Error()

	if failed.attempts >= j.maxRetries {
		delete(j.failed, key)
		j.metrics.JournalWrite("dropped")
		j.logger.Error().
			Err(err).
			Str("event", "journal.dropped").
			Int("attempts", failed.attempts).
			Time("first_failure", failed.firstFailure).
			Msg("journal record exceeded max retries")
		return
	}

	j.metrics.JournalWrite("retry")
	j.logger.Warn().
		Err(err).
		Str("event", "journal.write_failed").
		Int("attempt", failed.attempts).
		Int("max_retries", j.maxRetries).
		Msg("journal write failed, will retry")
}

func (j *Journal) retryFailed(ctx context.Context) {
	j.failedMu.RLock()
	retries := make([]*failedRecord, 0, len(j.failed))
	for _, failed := range j.failed {
		retries = append(retries, failed)
	}
	j.failedMu.RUnlock()

	for _, failed := range retries {
		if ctx.Err() != nil {
			return
		}
		if err := j.write(ctx, failed.record); err != nil {
			j.handleFailed(failed.record, err)
			continue
		}

		j.failedMu.Lock()
		delete(j.failed, recordKey(failed.record))
		j.failedMu.Unlock()
		j.logger.Info().
			Str("event", "journal.retry_ok").
			Int("attempts", failed.attempts+1).
			Msg("journal retry succeeded")
	}
}

func (j *Journal) close() error {
	j.logger.Info().
		Str("event", "journal.stop").
		Int("pending", j.Pending()).
		Msg("closing action journal")
	if err := j.writer.Close(); err != nil {
		return fmt.Errorf("close journal writer: %w", err)
	}
	return nil
}

func recordKey(rec types.JournalRecord) string {
	return fmt.Sprintf("%s-%d-%d", rec.Decision, rec.Timestamp, rec.ReceivedAt.UnixNano())
}
