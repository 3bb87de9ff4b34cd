// Package ami implements a client for the Asterisk Manager Interface, the
// TCP control protocol the dialer uses to originate calls. Frames are
// CRLF-separated Key: Value lines terminated by a blank line. One goroutine
// owns the read side of the connection and demultiplexes unsolicited events
// from command responses; responses are matched to waiting callers by
// ActionID.
package ami

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotConnected is returned when an action is issued before Connect
	// or after the connection failed.
	ErrNotConnected = errors.New("ami: not connected")

	// ErrProtocol marks a malformed or unexpected reply.
	ErrProtocol = errors.New("ami: protocol error")
)

const (
	defaultDialTimeout  = 10 * time.Second
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	eventBuffer         = 64
)

// Client is a connection to the AMI control port. It is safe for concurrent
// use; each in-flight action is correlated by its ActionID.
type Client struct {
	Host     string
	Port     int
	Username string
	Secret   string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	mu      sync.Mutex
	conn    net.Conn
	pending map[string]chan Message
	nextID  uint64
	err     error

	events chan Message
	done   chan struct{}
}

// Connect dials the control port, consumes the banner line and performs
// Login. It returns an error when the TCP dial or the login handshake fails.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	dialTimeout := c.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = defaultDialTimeout
	}
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(c.Host, strconv.Itoa(c.Port)))
	if err != nil {
		return fmt.Errorf("ami: dial: %w", err)
	}

	// The AMI greets with a single banner line before the first frame.
	_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout()))
	r := bufio.NewReader(conn)
	banner, err := r.ReadString('\n')
	if err != nil {
		conn.Close()
		return fmt.Errorf("ami: read banner: %w", err)
	}
	if !strings.Contains(banner, "/") {
		conn.Close()
		return fmt.Errorf("%w: unexpected banner %q", ErrProtocol, strings.TrimSpace(banner))
	}

	c.mu.Lock()
	c.conn = conn
	c.pending = make(map[string]chan Message)
	c.err = nil
	c.events = make(chan Message, eventBuffer)
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop(r)

	login := NewAction("Login").
		Set("Username", c.Username).
		Set("Secret", c.Secret)
	resp, err := c.Send(ctx, login)
	if err != nil {
		c.Close()
		return fmt.Errorf("ami: login: %w", err)
	}
	if !resp.Success() {
		c.Close()
		return fmt.Errorf("ami: login rejected: %s", resp["Message"])
	}
	return nil
}

// Send issues one action and waits for its correlated response. Events
// interleaved on the wire do not disturb the wait; they are delivered on
// Events().
func (c *Client) Send(ctx context.Context, a *Action) (Message, error) {
	c.mu.Lock()
	if c.conn == nil {
		err := c.err
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return nil, ErrNotConnected
	}
	c.nextID++
	id := strconv.FormatUint(c.nextID, 10)
	ch := make(chan Message, 8)
	c.pending[id] = ch
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout()))
	if _, err := conn.Write(a.Encode(id)); err != nil {
		c.fail(fmt.Errorf("ami: write: %w", err))
		return nil, fmt.Errorf("ami: write: %w", err)
	}

	select {
	case msg := <-ch:
		return msg, nil
	case <-done:
		c.mu.Lock()
		err := c.err
		c.mu.Unlock()
		if err == nil {
			err = ErrNotConnected
		}
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OriginateResult is the outcome of an Originate action.
type OriginateResult struct {
	Success  bool
	ActionID string
	Raw      Message
}

// Originate asks the PBX to place an outbound leg and connect it to the given
// dialplan position. The call itself proceeds asynchronously; Success only
// means the PBX accepted the request.
func (c *Client) Originate(ctx context.Context, channel, dialCtx, exten string, priority int, callerID string, timeout time.Duration, variables map[string]string) (OriginateResult, error) {
	a := NewAction("Originate").
		Set("Channel", channel).
		Set("Context", dialCtx).
		Set("Exten", exten).
		Set("Priority", strconv.Itoa(priority)).
		Set("CallerID", callerID).
		Set("Timeout", strconv.FormatInt(timeout.Milliseconds(), 10)).
		Set("Async", "true")
	for k, v := range variables {
		a.Set("Variable", k+"="+v)
	}
	resp, err := c.Send(ctx, a)
	if err != nil {
		return OriginateResult{}, err
	}
	return OriginateResult{
		Success:  resp.Success(),
		ActionID: resp.ActionID(),
		Raw:      resp,
	}, nil
}

// ListChannels returns the names of the currently active channels via
// CoreShowChannels. The channel list arrives as a series of events correlated
// by ActionID, closed by CoreShowChannelsComplete.
func (c *Client) ListChannels(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.nextID++
	id := strconv.FormatUint(c.nextID, 10)
	ch := make(chan Message, 64)
	c.pending[id] = ch
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	a := NewAction("CoreShowChannels")
	_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout()))
	if _, err := conn.Write(a.Encode(id)); err != nil {
		c.fail(fmt.Errorf("ami: write: %w", err))
		return nil, fmt.Errorf("ami: write: %w", err)
	}

	var channels []string
	for {
		select {
		case msg := <-ch:
			switch {
			case msg.IsEvent() && msg["Event"] == "CoreShowChannelsComplete":
				return channels, nil
			case msg.IsEvent():
				if name := msg["Channel"]; name != "" {
					channels = append(channels, name)
				}
			case !msg.Success():
				return nil, fmt.Errorf("%w: CoreShowChannels: %s", ErrProtocol, msg["Message"])
			}
		case <-done:
			return nil, ErrNotConnected
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Events exposes unsolicited events read from the connection. The channel is
// buffered; when nobody drains it, surplus events are dropped rather than
// stalling the reader.
func (c *Client) Events() <-chan Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// Close sends Logoff on a best-effort basis and tears the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, _ = conn.Write(NewAction("Logoff").Encode("logoff"))
	c.fail(ErrNotConnected)
	return nil
}

func (c *Client) readLoop(r *bufio.Reader) {
	var frame strings.Builder
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout()))
		line, err := r.ReadString('\n')
		if err != nil {
			c.fail(fmt.Errorf("ami: read: %w", err))
			return
		}
		if strings.TrimRight(line, "\r\n") != "" {
			frame.WriteString(line)
			continue
		}
		// Blank line: frame complete.
		msg := ParseMessage(frame.String())
		frame.Reset()
		if len(msg) == 0 {
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg Message) {
	c.mu.Lock()
	ch, waiting := c.pending[msg.ActionID()]
	events := c.events
	c.mu.Unlock()

	if waiting {
		select {
		case ch <- msg:
		default:
		}
		return
	}
	if msg.IsEvent() {
		select {
		case events <- msg:
		default: // drop when nobody listens
		}
	}
}

// fail marks the connection broken, wakes every waiter and closes the socket.
func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	c.err = err
	c.conn.Close()
	c.conn = nil
	close(c.done)
	c.pending = nil
}

func (c *Client) readTimeout() time.Duration {
	if c.ReadTimeout > 0 {
		return c.ReadTimeout
	}
	return defaultReadTimeout
}

func (c *Client) writeTimeout() time.Duration {
	if c.WriteTimeout > 0 {
		return c.WriteTimeout
	}
	return defaultWriteTimeout
}
