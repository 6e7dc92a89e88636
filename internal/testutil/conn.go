package testutil

import (
	"encoding/json"
	"testing"
	"time"
)

// RecordingConn collects every JSON message written to it.
type RecordingConn struct {
	msgs chan []byte
}

func NewRecordingConn() *RecordingConn {
	return &RecordingConn{msgs: make(chan []byte, 64)}
}

func (c *RecordingConn) SetWriteDeadline(time.Time) error { return nil }

func (c *RecordingConn) WriteJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.msgs <- b
	return nil
}

// Next decodes the next message into out, failing the test after a second.
func (c *RecordingConn) Next(t *testing.T, out any) {
	t.Helper()
	select {
	case b := <-c.msgs:
		if err := json.Unmarshal(b, out); err != nil {
			t.Fatalf("Failed to decode message %s: %v", b, err)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for message")
	}
}

// Empty reports whether nothing arrives within d.
func (c *RecordingConn) Empty(d time.Duration) bool {
	select {
	case <-c.msgs:
		return false
	case <-time.After(d):
		return true
	}
}
