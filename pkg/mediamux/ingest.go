package mediamux

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/actionrelay/actionrelay/pkg/core"
)

const DefaultReadTimeout = 10 * time.Second

// max UDP payload plus the multiplex header
const bufferSize = 0xFFFF + HeaderSize

type PacketReader interface {
	Read(b []byte) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

type Sink interface {
	WritePacket(pkt *Packet) error
}

// Listen - bind local address and accept datagrams only from the device
func Listen(ctx context.Context, local, device string) (*net.UDPConn, error) {
	laddr, err := net.ResolveUDPAddr("udp", local)
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{LocalAddr: laddr}
	conn, err := dialer.DialContext(ctx, "udp", device)
	if err != nil {
		return nil, err
	}

	return conn.(*net.UDPConn), nil
}

// Ingest - reads device datagrams and passes assembled packets to sinks.
// Fires *Packet for every packet and error for every dropped datagram.
type Ingest struct {
	core.Listener
	core.Connection

	ReadTimeout time.Duration

	// Capture - optional mirror of raw video fragments
	Capture io.Writer

	conn  PacketReader
	demux Demuxer
	sinks []Sink
}

func NewIngest(conn PacketReader) *Ingest {
	i := &Ingest{ReadTimeout: DefaultReadTimeout, conn: conn}
	i.ID = core.NewID()
	i.FormatName = "mediamux"
	i.Protocol = "udp"
	if c, ok := conn.(net.Conn); ok && c.RemoteAddr() != nil {
		i.RemoteAddr = c.RemoteAddr().String()
	}
	return i
}

func (i *Ingest) AddSink(sink Sink) {
	i.sinks = append(i.sinks, sink)
}

// Run - loop until ctx is done or the socket fails. Timeouts and malformed
// datagrams don't stop the loop.
func (i *Ingest) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = i.conn.Close()
		case <-done:
		}
	}()

	b := make([]byte, bufferSize)

	for {
		if i.ReadTimeout > 0 {
			if err := i.conn.SetReadDeadline(time.Now().Add(i.ReadTimeout)); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
		}

		n, err := i.conn.Read(b)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				i.Fire(err)
				continue
			}
			return err
		}

		i.AddRecv(n)

		if err = i.handle(b[:n]); err != nil {
			i.Fire(err)
		}
	}
}

func (i *Ingest) handle(b []byte) error {
	pending := i.demux.Pending()

	pkt, err := i.demux.Handle(b)
	if err != nil {
		return err
	}

	if pkt == nil {
		if i.Capture != nil {
			if _, err = i.Capture.Write(b[HeaderSize : HeaderSize+i.demux.Pending()-pending]); err != nil {
				i.Fire(err)
			}
		}
		return nil
	}

	i.Fire(pkt)

	for _, sink := range i.sinks {
		if err = sink.WritePacket(pkt); err != nil {
			i.Fire(err)
		}
	}

	return nil
}

// UDPSink - relay packets in wire format to a fixed target
type UDPSink struct {
	conn net.Conn
}

func NewUDPSink(target string) (*UDPSink, error) {
	conn, err := net.Dial("udp", target)
	if err != nil {
		return nil, err
	}
	return &UDPSink{conn: conn}, nil
}

func (s *UDPSink) WritePacket(pkt *Packet) error {
	_, err := s.conn.Write(pkt.Marshal())
	return err
}

func (s *UDPSink) Close() error {
	return s.conn.Close()
}
