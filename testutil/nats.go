package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/c360/logstreams/message"
)

// MockNATSClient is an in-memory stand-in for the platform hand-off client.
// It satisfies the engine's Publisher interface and records every published
// message per subject for verification. Thread-safe for concurrent use from
// multiple goroutines.
type MockNATSClient struct {
	mu         sync.RWMutex
	messages   map[string][][]byte
	publishErr error
	closed     bool
}

// NewMockNATSClient creates a new mock NATS client.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{
		messages: make(map[string][][]byte),
	}
}

// Publish records a message on a subject (matches natsclient.Client's
// signature). Returns the injected error, if any, without recording.
func (c *MockNATSClient) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}
	if c.publishErr != nil {
		return c.publishErr
	}

	// Copy so callers can reuse their buffer after Publish returns
	stored := make([]byte, len(data))
	copy(stored, data)
	c.messages[subject] = append(c.messages[subject], stored)

	return nil
}

// SetPublishError makes every subsequent Publish fail with err until called
// again with nil. Used to exercise drop-and-continue forwarding paths.
func (c *MockNATSClient) SetPublishError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

// GetMessages returns all messages recorded for a subject.
func (c *MockNATSClient) GetMessages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := c.messages[subject]
	if msgs == nil {
		return nil
	}
	result := make([][]byte, len(msgs))
	copy(result, msgs)
	return result
}

// GetMessageCount returns the number of messages recorded on a subject.
func (c *MockNATSClient) GetMessageCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages[subject])
}

// TotalMessageCount returns the number of messages recorded across all
// subjects.
func (c *MockNATSClient) TotalMessageCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, msgs := range c.messages {
		total += len(msgs)
	}
	return total
}

// Subjects returns every subject that has received at least one message.
func (c *MockNATSClient) Subjects() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subjects := make([]string, 0, len(c.messages))
	for subject, msgs := range c.messages {
		if len(msgs) > 0 {
			subjects = append(subjects, subject)
		}
	}
	return subjects
}

// Clear clears all messages from a subject.
func (c *MockNATSClient) Clear(subject string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.messages, subject)
}

// ClearAll clears all messages from all subjects.
func (c *MockNATSClient) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make(map[string][][]byte)
}

// Close closes the mock client. Subsequent publishes fail.
func (c *MockNATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// IsClosed returns whether the client is closed.
func (c *MockNATSClient) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// DecodeEnvelopes unmarshals every message recorded on a subject into
// envelopes, failing the test on malformed payloads.
func DecodeEnvelopes(t *testing.T, client *MockNATSClient, subject string) []*message.Envelope {
	t.Helper()

	msgs := client.GetMessages(subject)
	envelopes := make([]*message.Envelope, 0, len(msgs))
	for i, data := range msgs {
		var env message.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("message %d on subject %s is not a valid envelope: %v", i, subject, err)
		}
		envelopes = append(envelopes, &env)
	}
	return envelopes
}

// WaitForMessage waits for a message on a subject and returns the latest one,
// failing the test on timeout.
func WaitForMessage(t *testing.T, client *MockNATSClient, subject string, timeout time.Duration) []byte {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("timeout waiting for message on subject %s", subject)
			return nil
		case <-ticker.C:
			messages := client.GetMessages(subject)
			if len(messages) > 0 {
				return messages[len(messages)-1]
			}
		}
	}
}

// WaitForMessageCount waits until a subject holds at least count messages,
// failing the test on timeout.
func WaitForMessageCount(t *testing.T, client *MockNATSClient, subject string, count int, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			got := client.GetMessageCount(subject)
			t.Fatalf("timeout waiting for %d messages on subject %s (got %d)", count, subject, got)
			return
		case <-ticker.C:
			if client.GetMessageCount(subject) >= count {
				return
			}
		}
	}
}

// AssertMessageReceived checks that at least one message was recorded on a
// subject.
func AssertMessageReceived(t *testing.T, client *MockNATSClient, subject string) {
	t.Helper()

	if client.GetMessageCount(subject) == 0 {
		t.Fatalf("expected message on subject %s, got none", subject)
	}
}

// AssertNoMessages checks that no messages were recorded on a subject.
func AssertNoMessages(t *testing.T, client *MockNATSClient, subject string) {
	t.Helper()

	if count := client.GetMessageCount(subject); count > 0 {
		t.Fatalf("expected no messages on subject %s, got %d", subject, count)
	}
}
