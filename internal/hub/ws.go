package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bastionhq/bastionctl/internal/eventlog"
	"github.com/bastionhq/bastionctl/internal/loggy"
	"github.com/bastionhq/bastionctl/internal/stream"
	"github.com/bastionhq/bastionctl/internal/ulid"
)

const wsHandshakeTimeout = 10 * time.Second

// EventDialer returns a stream.Dialer that opens the hub's WebSocket event
// feed for the target. The session token is re-resolved on every dial, so a
// reconnect after a token rotation authenticates with the fresh one.
func (c *Client) EventDialer(target Target) stream.Dialer {
	return stream.DialerFunc(func(ctx context.Context, afterSeq int64) (stream.Conn, error) {
		token, err := c.session.SessionToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving session token: %w", err)
		}

		socketURL, err := c.eventsSocketURL(target, afterSeq)
		if err != nil {
			return nil, err
		}

		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)
		header.Set("X-Request-ID", ulid.RequestID())

		c.logger.Debug("dialing hub event socket", "url", socketURL, "after_seq", afterSeq)

		dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
		conn, resp, err := dialer.DialContext(ctx, socketURL, header)
		if err != nil {
			if resp != nil {
				resp.Body.Close()
				return nil, fmt.Errorf("dialing event stream (status %d): %w", resp.StatusCode, err)
			}
			return nil, fmt.Errorf("dialing event stream: %w", err)
		}

		return &wsConn{conn: conn, logger: c.logger}, nil
	})
}

// eventsSocketURL maps the hub base URL onto the target's ws endpoint,
// carrying the resume cursor in the query string.
func (c *Client) eventsSocketURL(target Target, afterSeq int64) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing hub URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported hub URL scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + target.eventsPath() + "/ws"
	q := u.Query()
	q.Set("after_seq", strconv.FormatInt(afterSeq, 10))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// wsConn adapts a gorilla websocket connection to stream.Conn.
type wsConn struct {
	conn   *websocket.Conn
	logger *loggy.Logger
}

// ReadEvent blocks until the next well-formed event frame. Frames that fail
// to parse are logged and dropped, never surfaced to the caller.
func (c *wsConn) ReadEvent() (eventlog.Event, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return eventlog.Event{}, fmt.Errorf("reading event frame: %w", err)
		}

		ev, err := eventlog.ParseEvent(data)
		if err != nil {
			c.logger.Debug("dropping malformed event frame", "error", err, "frame", string(data))
			continue
		}

		return ev, nil
	}
}

// Close attempts the close handshake, then tears the connection down. The
// peer may already be gone; the write error is irrelevant.
func (c *wsConn) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}
