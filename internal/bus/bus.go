// Package bus publishes session events over a websocket so that other
// processes can follow what the assistant is doing.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"jarvis/internal/session"
)

type Message struct {
	From       string              `json:"from"`
	To         string              `json:"to,omitempty"`
	Kind       string              `json:"kind"`
	Content    string              `json:"content,omitempty"`
	Transition *session.Transition `json:"transition,omitempty"`
}

type Options struct {
	From      string
	Reconnect time.Duration
	Queue     int
}

// Client is a write-only bus connection. Messages are queued and sent by a
// single writer goroutine; when the queue is full new messages are dropped.
type Client struct {
	url string
	opt Options

	queue  chan Message
	done   chan struct{}
	exited chan struct{}
	once   sync.Once

	mu   sync.Mutex
	conn *ws.Conn
}

func Dial(ctx context.Context, rawURL string, opt Options) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse bus url: %w", err)
	}
	if opt.From == "" {
		opt.From = "jarvis"
	}
	if opt.Reconnect <= 0 {
		opt.Reconnect = 2 * time.Second
	}
	if opt.Queue <= 0 {
		opt.Queue = 64
	}

	conn, _, err := ws.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial bus: %w", err)
	}
	log.Info("Connected to bus", "url", u.String())

	c := &Client{
		url:    u.String(),
		opt:    opt,
		queue:  make(chan Message, opt.Queue),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		conn:   conn,
	}
	go c.writer()
	return c, nil
}

// Observe publishes a session transition.
func (c *Client) Observe(t session.Transition) {
	c.Publish(Message{Kind: "transition", Content: string(t.To), Transition: &t})
}

// Publish queues m and reports whether it was accepted.
func (c *Client) Publish(m Message) bool {
	if m.From == "" {
		m.From = c.opt.From
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.queue <- m:
		return true
	default:
		log.Debug("Bus queue full, dropping message", "kind", m.Kind)
		return false
	}
}

func (c *Client) writer() {
	defer close(c.exited)
	for {
		select {
		case <-c.done:
			c.drain()
			return
		case m := <-c.queue:
			c.send(m)
		}
	}
}

func (c *Client) drain() {
	for {
		select {
		case m := <-c.queue:
			c.send(m)
		default:
			return
		}
	}
}

func (c *Client) send(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		log.Error("Failed to encode bus message", "err", err)
		return
	}

	for attempt := 0; attempt < 2; attempt++ {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			if err = conn.WriteMessage(ws.TextMessage, data); err == nil {
				return
			}
			log.Warn("Bus write failed", "err", err)
			conn.Close()
		}
		if !c.reconnect() {
			return
		}
	}
}

// reconnect dials until it succeeds or the client is closed.
func (c *Client) reconnect() bool {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()

	for {
		select {
		case <-c.done:
			return false
		case <-time.After(c.opt.Reconnect):
		}

		conn, _, err := ws.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			log.Debug("Bus reconnect failed", "err", err)
			continue
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		log.Info("Reconnected to bus", "url", c.url)
		return true
	}
}

// Close flushes queued messages and closes the connection.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		<-c.exited

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn == nil {
			return
		}
		msg := ws.FormatCloseMessage(ws.CloseNormalClosure, "")
		c.conn.WriteControl(ws.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

// IsClosed reports whether err is an orderly or abrupt websocket close.
func IsClosed(err error) bool {
	var closeErr *ws.CloseError
	return errors.As(err, &closeErr) && ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
