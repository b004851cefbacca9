package journal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mqttaction/internal/metrics"
	"mqttaction/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	failures int // remaining writes to fail
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return errors.New("leader not available")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.messages...)
}

// resultRecorder keeps journal write outcomes in order.
type resultRecorder struct {
	metrics.Nop
	mu      sync.Mutex
	results []string
}

func (r *resultRecorder) JournalWrite(result string) {
	r.mu.Lock()
	r.results = append(r.results, result)
	r.mu.Unlock()
}

func (r *resultRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.results...)
}

func testConfig(interval time.Duration, maxRetries int) types.JournalConfig {
	var cfg types.JournalConfig
	cfg.Topic = "actions"
	cfg.Retry.Interval = interval
	cfg.Retry.MaxRetries = maxRetries
	cfg.Retry.MaxPending = 10
	return cfg
}

func record(text string) types.JournalRecord {
	return types.JournalRecord{
		Text:       text,
		Timestamp:  1000,
		ReceivedAt: time.UnixMilli(2000),
		AgeMillis:  1000,
		Decision:   "show_text",
	}
}

func runJournal(t *testing.T, j *Journal) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()
	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func TestRecordIsWrittenToKafka(t *testing.T) {
	w := &fakeWriter{}
	j := New(testConfig(time.Hour, 3), w, zerolog.Nop())
	stop := runJournal(t, j)

	j.Record(record("hello"))
	require.Eventually(t, func() bool { return len(w.written()) == 1 }, 2*time.Second, 5*time.Millisecond)
	stop()

	msg := w.written()[0]
	assert.Equal(t, "actions", msg.Topic)
	assert.Equal(t, []byte("show_text"), msg.Key)

	var got types.JournalRecord
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, int64(1000), got.AgeMillis)
	assert.True(t, w.closed, "writer not closed on shutdown")
}

func TestFailedWriteIsRetried(t *testing.T) {
	w := &fakeWriter{failures: 1}
	rec := &resultRecorder{}
	j := New(testConfig(10*time.Millisecond, 3), w, zerolog.Nop(), WithMetrics(rec))
	stop := runJournal(t, j)
	defer stop()

	j.Record(record("retry me"))

	require.Eventually(t, func() bool { return len(w.written()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return j.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"retry", "ok"}, rec.snapshot())
}

func TestRecordDroppedAfterMaxRetries(t *testing.T) {
	w := &fakeWriter{failures: 100}
	rec := &resultRecorder{}
	j := New(testConfig(50*time.Millisecond, 2), w, zerolog.Nop(), WithMetrics(rec))
	stop := runJournal(t, j)
	defer stop()

	j.Record(record("doomed"))

	// First failure queues it, the retry failure drops it
	require.Eventually(t, func() bool { return j.Pending() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return j.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, w.written())
	assert.Equal(t, []string{"retry", "dropped"}, rec.snapshot())
}

func TestRecordNeverBlocks(t *testing.T) {
	w := &fakeWriter{}
	j := New(testConfig(time.Hour, 3), w, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			j.Record(record("x"))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked without a running journal")
	}
	assert.Len(t, j.queue, 10)
}

func TestNewKafkaWriterRequiresBrokers(t *testing.T) {
	_, err := NewKafkaWriter(types.JournalConfig{})
	assert.Error(t, err)
}

func TestNewKafkaWriterBadTruststore(t *testing.T) {
	cfg := testConfig(time.Second, 1)
	cfg.Brokers = []string{"localhost:9092"}
	cfg.Security.Protocol = "SSL"
	cfg.Security.TruststorePath = "/nonexistent/truststore.p12"

	_, err := NewKafkaWriter(cfg)
	assert.ErrorContains(t, err, "truststore")
}

func TestNewKafkaWriterPlaintext(t *testing.T) {
	cfg := testConfig(time.Second, 1)
	cfg.Brokers = []string{"localhost:9092", "localhost:9093"}

	w, err := NewKafkaWriter(cfg)
	require.NoError(t, err)
	assert.Equal(t, "tcp,tcp", w.Addr.Network())
	assert.Equal(t, "localhost:9092,localhost:9093", w.Addr.String())
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
	require.NoError(t, w.Close())
}
