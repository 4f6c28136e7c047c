package camera

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/actionrelay/actionrelay/pkg/camproto"
	"github.com/actionrelay/actionrelay/pkg/mediamux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func init() {
	log = zerolog.Nop()
}

func freeUDPPort(t *testing.T) int {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.Nil(t, err)
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

// acceptLogin - play the device side of one handshake, returns after start-stream
func acceptLogin(t *testing.T, ln net.Listener) net.Conn {
	conn, err := ln.Accept()
	require.Nil(t, err)
	require.Nil(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	login := make([]byte, 136)
	_, err = io.ReadFull(conn, login)
	require.Nil(t, err)
	require.Equal(t, []byte("admin"), login[8:13])

	_, err = conn.Write(camproto.LoginAccept[:])
	require.Nil(t, err)

	b := make([]byte, 8)
	for {
		_, err = io.ReadFull(conn, b)
		require.Nil(t, err)
		if b[7] == 0xFF {
			_, err = io.ReadFull(conn, b)
			require.Nil(t, err)
			return conn
		}
	}
}

func TestService(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	defer ln.Close()

	device, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.Nil(t, err)
	defer device.Close()

	relay, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.Nil(t, err)
	defer relay.Close()

	mediaPort := freeUDPPort(t)

	conf := DefaultConfig()
	conf.Host = "127.0.0.1"
	conf.Port = ln.Addr().(*net.TCPAddr).Port
	conf.MediaPort = device.LocalAddr().(*net.UDPAddr).Port
	conf.MediaListen = net.JoinHostPort("127.0.0.1", strconv.Itoa(mediaPort))
	conf.Heartbeat = 50 * time.Millisecond
	conf.Relay = relay.LocalAddr().String()

	svc := NewService(conf)
	svc.MinBackoff = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	// the first session drops right after the stream request
	first := acceptLogin(t, ln)
	require.Nil(t, first.Close())

	// the client comes back and does the whole handshake again
	second := acceptLogin(t, ln)
	defer second.Close()

	target := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: mediaPort}

	fragment := []byte{0xBC, 0xDE, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01, 0x01, 0x02, 0x03}
	marker := make([]byte, 24)
	copy(marker, []byte{0xBC, 0xDE, 0x00, 0x10, 0x00, 0x00, 0x00, 0x02})
	binary.LittleEndian.PutUint16(marker[20:], 100)

	expected := (&mediamux.Packet{Timestamp: 9000, Payload: []byte{0x01, 0x02, 0x03}}).Marshal()

	b := make([]byte, 1500)

	// media socket is opened asynchronously, repeat the frame until it arrives
	for start := time.Now(); ; {
		require.True(t, time.Since(start) < 5*time.Second, "no packet on relay")

		_, err = device.WriteToUDP(fragment, target)
		require.Nil(t, err)
		_, err = device.WriteToUDP(marker, target)
		require.Nil(t, err)

		require.Nil(t, relay.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
		n, err := relay.Read(b)
		if err == nil {
			// the sequence number depends on how many markers were lost
			require.Equal(t, expected[:2], b[:2])
			require.Equal(t, expected[4:], b[4:n])
			break
		}
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("service didn't stop")
	}
}

func TestServiceConnectionError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.Nil(t, ln.Close())

	conf := DefaultConfig()
	conf.Host = "127.0.0.1"
	conf.Port = port

	svc := NewService(conf)
	svc.MinBackoff = time.Millisecond
	svc.MaxBackoff = 4 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// keeps retrying until the context ends
	svc.Run(ctx)
	require.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestServiceLongCredential(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	defer ln.Close()

	var buf bytes.Buffer
	log = zerolog.New(&buf)
	defer func() { log = zerolog.Nop() }()

	conf := DefaultConfig()
	conf.Host = "127.0.0.1"
	conf.Port = ln.Addr().(*net.TCPAddr).Port
	conf.Username = strings.Repeat("a", camproto.CredentialSize+1)

	svc := NewService(conf)
	svc.MinBackoff = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// stops on its own, long before the context ends
	svc.Run(ctx)
	require.Nil(t, ctx.Err())

	require.Contains(t, buf.String(), `"level":"error"`)
	require.Contains(t, buf.String(), camproto.ErrCredentialTooLong.Error())
}

func TestDefaultConfig(t *testing.T) {
	conf := DefaultConfig()
	svc := NewService(conf)
	require.Equal(t, "192.168.100.1:6666", svc.Addr())
	require.Equal(t, "192.168.100.1:6669", svc.MediaAddr())
	require.Equal(t, ":6669", conf.MediaListen)
	require.Equal(t, 3*time.Second, conf.Heartbeat)
}

func TestTracePacket(t *testing.T) {
	var buf bytes.Buffer

	pkt := &mediamux.Packet{
		SequenceNumber: 3,
		Timestamp:      9000,
		Payload:        []byte{0, 0, 0, 1, 0x67, 0x42, 0, 0, 1, 0x65, 0x88},
	}

	tracePacket(zerolog.New(&buf).Level(zerolog.DebugLevel), pkt)
	require.Empty(t, buf.String())

	tracePacket(zerolog.New(&buf).Level(zerolog.TraceLevel), pkt)
	require.Equal(t,
		`{"level":"trace","seq":3,"ts":9000,"size":11,"keyframe":true,"nalu":"0705","message":"[camera] packet"}`+"\n",
		buf.String(),
	)
}
