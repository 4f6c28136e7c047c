package camproto

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/actionrelay/actionrelay/pkg/core"
	"golang.org/x/sync/errgroup"
)

type State uint32

const (
	StateConnecting State = iota
	StateAwaitingLoginAck
	StateAlive
	StateStreamRequested
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingLoginAck:
		return "awaiting_login_ack"
	case StateAlive:
		return "alive"
	case StateStreamRequested:
		return "stream_requested"
	case StateStreaming:
		return "streaming"
	}
	return fmt.Sprintf("state(%d)", uint32(s))
}

const (
	DefaultPort              = 6666
	DefaultHeartbeatInterval = 3 * time.Second
	DefaultLoginTimeout      = 5 * time.Second

	writeTimeout = 5 * time.Second
)

var (
	ErrConnectionLost = errors.New("camproto: connection lost")
	ErrTimeout        = errors.New("camproto: read timeout")
	// ErrLoginRejected - the device already serves another client
	ErrLoginRejected = errors.New("camproto: login rejected")
)

type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return "camproto: connect " + e.Addr + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func Dial(ctx context.Context, address string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &ConnectionError{Addr: address, Err: err}
	}
	return conn, nil
}

// Client - control session with the device. Fires State on every transition
// and *Header for every frame that didn't change the state. Alive requests
// from the device are answered right away.
type Client struct {
	core.Listener
	core.Connection

	HeartbeatInterval time.Duration
	// LoginTimeout - read deadline while waiting for the login accept
	LoginTimeout time.Duration
	// ReadTimeout - read deadline after the login, zero disables it
	ReadTimeout time.Duration

	conn     net.Conn
	username string
	password string

	state atomic.Uint32
	wmu   sync.Mutex
}

func NewClient(conn net.Conn, username, password string) *Client {
	c := &Client{
		HeartbeatInterval: DefaultHeartbeatInterval,
		LoginTimeout:      DefaultLoginTimeout,
		conn:              conn,
		username:          username,
		password:          password,
	}
	c.ID = core.NewID()
	c.FormatName = "camproto"
	c.Protocol = "tcp"
	c.RemoteAddr = conn.RemoteAddr().String()
	return c
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) Login() error {
	b, err := EncodeLogin(c.username, c.password)
	if err != nil {
		return err
	}

	if _, err = c.write(b); err != nil {
		return lostError(err)
	}

	c.setState(StateAwaitingLoginAck)
	return nil
}

// Handle - run the reader and the heartbeat until the first failure.
// Always closes the connection.
func (c *Client) Handle(ctx context.Context) error {
	parent := ctx

	g, ctx := errgroup.WithContext(ctx)
	g.Go(c.readLoop)
	g.Go(func() error {
		return c.heartbeatLoop(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		_ = c.conn.Close()
		return nil
	})

	err := g.Wait()
	if parent.Err() != nil {
		return parent.Err()
	}
	return err
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) setState(state State) {
	c.state.Store(uint32(state))
	c.Fire(state)
}

func (c *Client) write(b []byte) (n int, err error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return
	}

	n, err = c.conn.Write(b)
	c.AddSend(n)
	return
}

func (c *Client) readLoop() error {
	b := make([]byte, HeaderSize)

	for {
		timeout := c.ReadTimeout
		if c.State() == StateAwaitingLoginAck {
			timeout = c.LoginTimeout
		}

		var deadline time.Time
		if timeout > 0 {
			deadline = time.Now().Add(timeout)
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return lostError(err)
		}

		n, err := io.ReadFull(c.conn, b)
		c.AddRecv(n)
		if err != nil {
			return lostError(err)
		}

		if c.State() == StateAwaitingLoginAck && bytes.Equal(b, LoginAccept[:]) {
			if err = c.startStream(); err != nil {
				return err
			}
			continue
		}

		h, _ := Decode(b)

		switch {
		case c.State() == StateAwaitingLoginAck && h.Magic == Magic && h.Type() == LoginRejected:
			return ErrLoginRejected
		case bytes.Equal(b, AliveRequestFrame[:]):
			if _, err = c.write(EncodeHeartbeat()); err != nil {
				return lostError(err)
			}
		}

		c.Fire(h)
	}
}

func (c *Client) startStream() error {
	c.setState(StateAlive)
	c.setState(StateStreamRequested)

	cmd := EncodeStartStream()
	n, err := c.write(cmd)
	if err != nil {
		return lostError(err)
	}

	// the media side starts only after the whole command went out
	if n == len(cmd) {
		c.setState(StateStreaming)
	}
	return nil
}

func (c *Client) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.HeartbeatInterval)
	defer ticker.Stop()

	for {
		if _, err := c.write(EncodeHeartbeat()); err != nil {
			return lostError(err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func lostError(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %s", ErrConnectionLost, err)
}
