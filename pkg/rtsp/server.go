package rtsp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/actionrelay/actionrelay/pkg/core"
)

const DefaultReadTimeout = 60 * time.Second

// MaxRequestSize - limit for one request block and for one line in it
const MaxRequestSize = 4096

var ErrRequestTooLarge = fmt.Errorf("%w: request too large", ErrProtocolMismatch)

// Conn - one viewer connection. Fires *tcp.Request for every parsed request
// and error for every rejected one.
type Conn struct {
	core.Listener
	core.Connection

	ReadTimeout time.Duration

	conn   net.Conn
	reader *bufio.Reader
}

func NewConn(conn net.Conn) *Conn {
	c := &Conn{
		ReadTimeout: DefaultReadTimeout,
		conn:        conn,
		reader:      bufio.NewReaderSize(conn, MaxRequestSize),
	}
	c.ID = core.NewID()
	c.FormatName = "rtsp"
	c.Protocol = "tcp"
	c.RemoteAddr = conn.RemoteAddr().String()
	return c
}

// Handle - answer requests until the viewer closes the connection.
// An oversized request is answered with 400 and ends the connection.
func (c *Conn) Handle() error {
	for {
		if c.ReadTimeout > 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(c.ReadTimeout)); err != nil {
				return closedOrErr(err)
			}
		}

		block, err := c.readBlock()
		if errors.Is(err, ErrRequestTooLarge) {
			n, _ := c.conn.Write(Respond(nil, err))
			c.AddSend(n)
			return err
		}
		if err != nil {
			return closedOrErr(err)
		}

		req, err := ParseRequest(block)
		if err != nil {
			c.Fire(err)
		} else {
			if c.UserAgent == "" {
				c.UserAgent = req.Header.Get("User-Agent")
			}
			c.Fire(req)
		}

		n, err := c.conn.Write(Respond(req, err))
		c.AddSend(n)
		if err != nil {
			return closedOrErr(err)
		}
	}
}

// closedOrErr - nil when the connection was closed by either side
func closedOrErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// readBlock - request text up to an empty line or the end of the stream
func (c *Conn) readBlock() (string, error) {
	var sb strings.Builder

	for {
		line, err := c.reader.ReadSlice('\n')
		c.AddRecv(len(line))

		if errors.Is(err, bufio.ErrBufferFull) || sb.Len()+len(line) > MaxRequestSize {
			return "", ErrRequestTooLarge
		}

		if len(bytes.TrimSpace(line)) != 0 {
			sb.Write(line)
		} else if sb.Len() > 0 && err == nil {
			return sb.String(), nil
		}

		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}
	}
}

// Server - accept loop for viewers, fires *Conn for every new connection
type Server struct {
	core.Listener

	ReadTimeout time.Duration

	ln    net.Listener
	conns map[*Conn]struct{}
	mu    sync.Mutex
}

func NewServer(ln net.Listener) *Server {
	return &Server{ReadTimeout: DefaultReadTimeout, ln: ln, conns: map[*Conn]struct{}{}}
}

func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve - accept viewers until ctx is done. Closes the listener and every
// open viewer connection on return.
func (s *Server) Serve(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = s.ln.Close()
		case <-done:
		}
	}()

	defer s.closeAll()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		c := NewConn(conn)
		c.ReadTimeout = s.ReadTimeout

		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.Fire(c)

		go func() {
			if err := c.Handle(); err != nil {
				c.Fire(err)
			}
			_ = c.Close()

			s.mu.Lock()
			delete(s.conns, c)
			s.mu.Unlock()
		}()
	}
}

func (s *Server) closeAll() {
	_ = s.ln.Close()

	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
}
