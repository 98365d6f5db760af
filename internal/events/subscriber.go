package events

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/inficreator0/hello-mom/internal/domain"
)

const (
	reconnectDelay   = 5 * time.Second
	statsLogInterval = 30 * time.Second
)

// Sink receives the changes carried by push events. *store.Store implements
// it.
type Sink interface {
	ApplyRemote(post domain.Post) bool
	InsertRemote(post domain.Post) bool
	RemovePost(postID domain.ID) bool
}

// Subscriber connects to the posts event stream and applies events to a
// Sink.
type Subscriber struct {
	url    string
	sink   Sink
	token  func() string
	logger *slog.Logger
	dialer *websocket.Dialer
	delay  time.Duration
}

// NewSubscriber creates a subscriber for the stream at url. token is called
// on every connect; a non-empty result is sent as a bearer token.
func NewSubscriber(url string, sink Sink, token func() string, logger *slog.Logger) *Subscriber {
	if token == nil {
		token = func() string { return "" }
	}
	return &Subscriber{
		url:    url,
		sink:   sink,
		token:  token,
		logger: logger,
		dialer: websocket.DefaultDialer,
		delay:  reconnectDelay,
	}
}

// Start connects to the stream and applies events until the context is
// cancelled. It reconnects after connection errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("event stream error, reconnecting", "error", err, "delay", s.delay)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.delay):
				}
			}
		}
	}
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	header := http.Header{}
	if token := s.token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	s.logger.Info("connecting to event stream", "url", s.url)
	conn, _, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.Close()

	// ReadMessage does not watch ctx; closing the connection unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.logger.Info("connected to event stream")

	var eventsReceived, postsUpdated, postsInserted, postsRemoved int64
	lastStatsLog := time.Now()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		event, err := parseEvent(message)
		if err != nil {
			s.logger.Error("failed to parse event", "error", err, "message", truncate(string(message), 200))
			continue
		}
		eventsReceived++

		if s.apply(event) {
			switch event.Type {
			case TypePostUpdated:
				postsUpdated++
			case TypePostCreated:
				postsInserted++
			case TypePostDeleted:
				postsRemoved++
			}
		}

		if time.Since(lastStatsLog) >= statsLogInterval {
			s.logger.Info("event stream stats",
				"events_received", eventsReceived,
				"posts_updated", postsUpdated,
				"posts_inserted", postsInserted,
				"posts_removed", postsRemoved,
			)
			lastStatsLog = time.Now()
		}
	}
}

// apply hands event to the sink and reports whether the store changed.
func (s *Subscriber) apply(event *Event) bool {
	switch event.Type {
	case TypePostUpdated:
		return s.sink.ApplyRemote(*event.Post)
	case TypePostCreated:
		inserted := s.sink.InsertRemote(*event.Post)
		if inserted {
			s.logger.Info("new post", "post_id", event.PostID, "title_preview", truncate(event.Post.Title, 100))
		}
		return inserted
	case TypePostDeleted:
		return s.sink.RemovePost(event.PostID)
	default:
		s.logger.Debug("ignoring event", "type", event.Type)
		return false
	}
}

// truncate returns the first n bytes of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
