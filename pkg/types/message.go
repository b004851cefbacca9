package types

import (
	"math"
	"time"
)

// InboundMessage is a decoded broker payload. Timestamp is the sender's
// creation time in milliseconds since the Unix epoch.
type InboundMessage struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// CreatedAt returns the embedded creation time.
func (m InboundMessage) CreatedAt() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// AgeMillis returns how old the message is at now, in milliseconds. A
// timestamp in the future yields a negative age. The difference saturates
// instead of wrapping, so a far-past timestamp is always very old.
func (m InboundMessage) AgeMillis(now time.Time) int64 {
	n := now.UnixMilli()
	age := n - m.Timestamp
	switch {
	case m.Timestamp < 0 && age < n:
		return math.MaxInt64
	case m.Timestamp > 0 && age > n:
		return math.MinInt64
	}
	return age
}

// Age is AgeMillis as a Duration, clamped to the Duration range.
func (m InboundMessage) Age(now time.Time) time.Duration {
	const limit = math.MaxInt64 / int64(time.Millisecond)
	ms := m.AgeMillis(now)
	switch {
	case ms > limit:
		return time.Duration(math.MaxInt64)
	case ms < -limit:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(ms) * time.Millisecond
}

// JournalRecord describes one dispatch decision, as written to the journal
type JournalRecord struct {
	Text       string    `json:"text"`
	Timestamp  int64     `json:"timestamp"`
	ReceivedAt time.Time `json:"received_at"`
	AgeMillis  int64     `json:"age_ms"`
	Decision   string    `json:"decision"`
}
