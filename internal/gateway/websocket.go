package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketTransport opens one websocket per topic against the backend's
// push endpoint, mirroring the backend's per-user, per-topic channels.
type WebsocketTransport struct {
	baseURL string
	tokens  *TokenSource
	dialer  *websocket.Dialer
}

// NewWebsocketTransport constructs a websocket transport. baseURL uses the
// ws:// or wss:// scheme.
func NewWebsocketTransport(baseURL string, tokens *TokenSource) (*WebsocketTransport, error) {
	if baseURL == "" {
		return nil, errors.New("gateway: empty websocket base url")
	}
	if tokens == nil {
		return nil, errors.New("gateway: nil token source")
	}
	return &WebsocketTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// Subscribe dials the topic channel for the user.
func (t *WebsocketTransport) Subscribe(ctx context.Context, topic Topic, userID string) (Subscription, error) {
	if userID == "" {
		return nil, errors.New("gateway: empty user id")
	}
	token, err := t.tokens.Token(userID)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/%s/%s", t.baseURL, topic, userID)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := t.dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("gateway: dial %s: %w", url, err)
	}
	return &websocketSubscription{conn: conn}, nil
}

type websocketSubscription struct {
	conn *websocket.Conn
}

// Next reads one JSON frame. Frames that do not decode as envelopes are
// returned as errors so the connection layer treats them as closes.
func (s *websocketSubscription) Next(ctx context.Context) (Envelope, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := s.conn.SetReadDeadline(deadline); err != nil {
			return Envelope{}, err
		}
	}
	done := make(chan struct{})
	var (
		payload []byte
		readErr error
	)
	go func() {
		defer close(done)
		_, payload, readErr = s.conn.ReadMessage()
	}()

	select {
	case <-ctx.Done():
		_ = s.conn.Close()
		<-done
		return Envelope{}, ctx.Err()
	case <-done:
	}
	if readErr != nil {
		return Envelope{}, readErr
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("gateway: malformed envelope: %w", err)
	}
	return env, nil
}

func (s *websocketSubscription) Close() error {
	return s.conn.Close()
}
