// Package sse provides Server-Sent Events streaming of session event
// logs.
package sse

import (
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/thebtf/conductor/pkg/models"
)

// BroadcasterSuite is a test suite for Broadcaster operations.
type BroadcasterSuite struct {
	suite.Suite
	broadcaster *Broadcaster
}

func TestBroadcasterSuite(t *testing.T) {
	suite.Run(t, new(BroadcasterSuite))
}

func (s *BroadcasterSuite) SetupTest() {
	s.broadcaster = NewBroadcaster()
}

// mockResponseWriter implements http.ResponseWriter and http.Flusher.
type mockResponseWriter struct {
	mu     sync.Mutex
	header http.Header
	body   []byte
	fail   bool
}

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{header: make(http.Header)}
}

func (m *mockResponseWriter) Header() http.Header { return m.header }

func (m *mockResponseWriter) Write(data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, http.ErrHandlerTimeout
	}
	m.body = append(m.body, data...)
	return len(data), nil
}

func (m *mockResponseWriter) WriteHeader(int) {}

func (m *mockResponseWriter) Flush() {}

func (m *mockResponseWriter) Body() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.body)
}

func (s *BroadcasterSuite) TestSubscribeAndCount() {
	s.Equal(0, s.broadcaster.ClientCount("sess-1"))

	w := newMockResponseWriter()
	client, err := s.broadcaster.Subscribe(w, "sess-1")
	s.Require().NoError(err)
	s.NotEmpty(client.ID)
	s.Equal(1, s.broadcaster.ClientCount("sess-1"))
	s.Equal(0, s.broadcaster.ClientCount("sess-2"))

	s.broadcaster.Unsubscribe(client)
	s.Equal(0, s.broadcaster.ClientCount("sess-1"))

	// Unsubscribing twice is a no-op.
	s.broadcaster.Unsubscribe(client)
}

func (s *BroadcasterSuite) TestSubscribeRequiresFlusher() {
	type plainWriter struct{ http.ResponseWriter }

	_, err := s.broadcaster.Subscribe(plainWriter{}, "sess-1")
	s.Error(err)
}

func (s *BroadcasterSuite) TestPublishReachesOnlySessionSubscribers() {
	w1 := newMockResponseWriter()
	w2 := newMockResponseWriter()
	c1, err := s.broadcaster.Subscribe(w1, "sess-1")
	s.Require().NoError(err)
	defer s.broadcaster.Unsubscribe(c1)
	c2, err := s.broadcaster.Subscribe(w2, "sess-2")
	s.Require().NoError(err)
	defer s.broadcaster.Unsubscribe(c2)

	s.broadcaster.Publish(&models.Event{
		SessionID: "sess-1",
		EventType: models.EventStepCompleted,
	})

	s.Contains(w1.Body(), "event: "+models.EventStepCompleted)
	s.Contains(w1.Body(), `"session_id":"sess-1"`)
	s.Empty(w2.Body())
}

func (s *BroadcasterSuite) TestPublishDropsFailingClients() {
	w := newMockResponseWriter()
	w.fail = true
	_, err := s.broadcaster.Subscribe(w, "sess-1")
	s.Require().NoError(err)

	s.broadcaster.Publish(&models.Event{SessionID: "sess-1", EventType: models.EventSessionCreated})
	s.Equal(0, s.broadcaster.ClientCount("sess-1"))
}

func (s *BroadcasterSuite) TestPublishWithNoSubscribers() {
	s.NotPanics(func() {
		s.broadcaster.Publish(&models.Event{SessionID: "nobody", EventType: models.EventSessionCreated})
	})
}
