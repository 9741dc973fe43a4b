// Package sse provides Server-Sent Events streaming of session event
// logs.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/conductor/pkg/models"
)

// WriteTimeout bounds a single write to a client. Prevents one stale
// connection from stalling a publish.
const WriteTimeout = 2 * time.Second

// Client is one subscriber to a session's event stream.
type Client struct {
	Writer    http.ResponseWriter
	Flusher   http.Flusher
	Done      chan struct{}
	ID        string
	SessionID string
}

// Broadcaster fans session events out to subscribed SSE clients.
// Clients subscribe to a single session; events for other sessions
// never reach them.
type Broadcaster struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Client
	nextID   int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		sessions: make(map[string]map[string]*Client),
	}
}

// Subscribe registers a client for one session's events.
func (b *Broadcaster) Subscribe(w http.ResponseWriter, sessionID string) (*Client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	b.mu.Lock()
	b.nextID++
	client := &Client{
		ID:        fmt.Sprintf("client-%d", b.nextID),
		SessionID: sessionID,
		Writer:    w,
		Flusher:   flusher,
		Done:      make(chan struct{}),
	}
	if b.sessions[sessionID] == nil {
		b.sessions[sessionID] = make(map[string]*Client)
	}
	b.sessions[sessionID][client.ID] = client
	total := len(b.sessions[sessionID])
	b.mu.Unlock()

	log.Debug().
		Str("clientId", client.ID).
		Str("sessionId", sessionID).
		Int("sessionClients", total).
		Msg("SSE client subscribed")

	return client, nil
}

// Unsubscribe removes a client and closes its Done channel.
func (b *Broadcaster) Unsubscribe(client *Client) {
	b.remove(client.SessionID, client.ID)
}

func (b *Broadcaster) remove(sessionID, clientID string) {
	b.mu.Lock()
	client, exists := b.sessions[sessionID][clientID]
	if exists {
		delete(b.sessions[sessionID], clientID)
		if len(b.sessions[sessionID]) == 0 {
			delete(b.sessions, sessionID)
		}
	}
	b.mu.Unlock()

	if !exists {
		return
	}
	select {
	case <-client.Done:
	default:
		close(client.Done)
	}

	log.Debug().
		Str("clientId", clientID).
		Str("sessionId", sessionID).
		Msg("SSE client unsubscribed")
}

// Publish sends an event to every client subscribed to its session.
// Writes run concurrently with individual timeouts; clients that fail
// or stall are dropped.
func (b *Broadcaster) Publish(event *models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal SSE event")
		return
	}
	message := fmt.Sprintf("event: %s\ndata: %s\n\n", event.EventType, payload)

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.sessions[event.SessionID]))
	for _, client := range b.sessions[event.SessionID] {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	deadCh := make(chan string, len(clients))
	var wg sync.WaitGroup
	for _, client := range clients {
		select {
		case <-client.Done:
			continue
		default:
			wg.Add(1)
			go func(c *Client) {
				defer wg.Done()
				b.write(c, message, deadCh)
			}(client)
		}
	}
	wg.Wait()
	close(deadCh)

	for clientID := range deadCh {
		b.remove(event.SessionID, clientID)
	}
}

func (b *Broadcaster) write(client *Client, message string, deadCh chan<- string) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := client.Writer.Write([]byte(message)); err != nil {
			log.Debug().
				Str("clientId", client.ID).
				Err(err).
				Msg("SSE write failed, dropping client")
			deadCh <- client.ID
			return
		}
		client.Flusher.Flush()
	}()

	select {
	case <-done:
	case <-time.After(WriteTimeout):
		log.Warn().
			Str("clientId", client.ID).
			Dur("timeout", WriteTimeout).
			Msg("SSE write timed out, dropping client")
		deadCh <- client.ID
	case <-client.Done:
	}
}

// ClientCount returns the number of clients subscribed to a session.
func (b *Broadcaster) ClientCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions[sessionID])
}

// Stream serves one SSE connection for a session until the request
// context ends.
func (b *Broadcaster) Stream(w http.ResponseWriter, r *http.Request, sessionID string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	client, err := b.Subscribe(w, sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer b.Unsubscribe(client)

	fmt.Fprintf(w, "data: {\"type\":\"connected\",\"clientId\":%q,\"sessionId\":%q}\n\n", client.ID, sessionID)
	client.Flusher.Flush()

	select {
	case <-r.Context().Done():
	case <-client.Done:
	}
}
