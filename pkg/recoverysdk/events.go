package recoverysdk

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// EventLevel is the severity of a server event.
type EventLevel string

const (
	EventLevelInfo     EventLevel = "info"
	EventLevelNotice   EventLevel = "notice"
	EventLevelWarning  EventLevel = "warning"
	EventLevelCritical EventLevel = "critical"
)

// rank orders levels for minimum-severity filtering. Unknown levels rank
// below info so they are only shown when no filter is active.
func (l EventLevel) rank() int {
	switch l {
	case EventLevelInfo:
		return 1
	case EventLevelNotice:
		return 2
	case EventLevelWarning:
		return 3
	case EventLevelCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether l is at least as severe as minimum.
func (l EventLevel) AtLeast(minimum EventLevel) bool {
	return l.rank() >= minimum.rank()
}

// ParseEventLevel normalizes a level string, defaulting to info.
func ParseEventLevel(s string) EventLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "notice":
		return EventLevelNotice
	case "warning", "warn":
		return EventLevelWarning
	case "critical":
		return EventLevelCritical
	default:
		return EventLevelInfo
	}
}

// Event is one entry of the server's live event feed.
type Event struct {
	ID        string     `json:"id"`
	Level     EventLevel `json:"level"`
	Type      string     `json:"typ"`
	Text      string     `json:"text,omitempty"`
	IP        string     `json:"ip,omitempty"`
	Timestamp int64      `json:"timestamp"` // unix millis
}

// MaxStreamLatest caps the number of replayed events a subscription may
// request.
const MaxStreamLatest = 1000

// StreamParams configure an event stream subscription.
type StreamParams struct {
	// Latest replays up to this many past events before live ones.
	// Capped at MaxStreamLatest.
	Latest int

	// Level asks the server to drop events below this severity.
	Level EventLevel

	// BearerToken authenticates the subscription.
	BearerToken string
}

// EventStream is an open server-sent-events subscription. Close it when done.
type EventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// ErrStreamClosed reports an event stream terminated by the server.
var ErrStreamClosed = errors.New("recoverysdk: event stream closed")

// StreamEvents opens the server-sent event feed. The returned stream delivers
// events until the context is cancelled, the connection drops or Close is
// called.
func (c *Client) StreamEvents(ctx context.Context, params StreamParams) (*EventStream, error) {
	q := url.Values{}
	if params.Latest > 0 {
		q.Set("latest", strconv.Itoa(min(params.Latest, MaxStreamLatest)))
	}
	if params.Level != "" {
		q.Set("level", string(params.Level))
	}

	endpoint := c.url("/events/stream")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if params.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+params.BearerToken)
	}

	// The configured client carries a per-request timeout that would cut a
	// long-lived subscription short; stream on its transport without it.
	streamClient := &http.Client{Transport: c.HTTPClient.Transport}

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, parseErrorResponse(resp, bodyBytes)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	return &EventStream{body: resp.Body, scanner: scanner}, nil
}

// Next blocks until the next event arrives. It returns ErrStreamClosed when
// the server ends the stream and the underlying read error when the
// connection drops.
func (s *EventStream) Next() (Event, error) {
	var data strings.Builder

	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case line == "":
			if data.Len() == 0 {
				continue // keep-alive separator
			}
			var ev Event
			if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
				return Event{}, fmt.Errorf("failed to decode event: %w", err)
			}
			return ev, nil
		default:
			// id:/event:/comment lines carry no payload we need
		}
	}

	if err := s.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, ErrStreamClosed
}

// Close terminates the subscription.
func (s *EventStream) Close() error {
	return s.body.Close()
}
