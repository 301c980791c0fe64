package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/r3labs/sse/v2"

	"github.com/Unleash/unleash-edge/internal/featurestore"
)

// StreamEvent is one decoded streaming update pushed by the upstream
// feature-management server's SSE channel.
type StreamEvent struct {
	Environment string
	Features    featurestore.ClientFeatures
	ETag        string
}

// StreamHandler is invoked for every decoded streaming event. Returning a
// non-nil error does not close the subscription; Run ignores it and keeps
// reading.
type StreamHandler func(StreamEvent) error

// Streamer subscribes to the upstream streaming endpoint for a single
// client token and feeds decoded events to a handler. It replays from the
// last seen event id across reconnects so an edge instance that briefly
// drops its connection does not miss an update.
type Streamer struct {
	client      *sse.Client
	environment string
	rawToken    string
	authHeader  string

	mu          sync.Mutex
	lastEventID string
}

// NewStreamer creates a Streamer against baseURL's streaming sub-path using
// rawToken for authentication.
func NewStreamer(baseURL, authHeaderName, rawToken, environment string) *Streamer {
	client := sse.NewClient(baseURL + "/client/streaming")
	client.Headers[authHeaderName] = rawToken
	return &Streamer{
		client:      client,
		environment: environment,
		rawToken:    rawToken,
		authHeader:  authHeaderName,
	}
}

// Run subscribes and blocks, invoking handler for every event, until ctx is
// canceled or the underlying client gives up reconnecting.
func (s *Streamer) Run(ctx context.Context, handler StreamHandler) error {
	events := make(chan *sse.Event)

	s.client.OnDisconnect(func(c *sse.Client) {})

	go func() {
		_ = s.client.SubscribeChanRawWithContext(ctx, events)
	}()

	for {
		select {
		case <-ctx.Done():
			s.client.Unsubscribe(events)
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if len(ev.ID) > 0 {
				s.mu.Lock()
				s.lastEventID = string(ev.ID)
				s.mu.Unlock()
			}
			if len(ev.Data) == 0 {
				continue
			}
			decoded, err := decodeStreamEvent(s.environment, ev.Data)
			if err != nil {
				continue
			}
			if err := handler(decoded); err != nil {
				continue
			}
		}
	}
}

func decodeStreamEvent(environment string, raw []byte) (StreamEvent, error) {
	var payload struct {
		Features featurestore.ClientFeatures `json:"features"`
		ETag     string                      `json:"etag"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return StreamEvent{}, fmt.Errorf("upstream: decode stream event: %w", err)
	}
	return StreamEvent{
		Environment: environment,
		Features:    payload.Features,
		ETag:        payload.ETag,
	}, nil
}

// LastEventID returns the most recently observed event id. The underlying
// SSE client keeps its own copy of this id for the Last-Event-ID header on
// reconnect; the value returned here is not fed back into it.
func (s *Streamer) LastEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventID
}
