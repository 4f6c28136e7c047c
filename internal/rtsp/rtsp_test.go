package rtsp

import (
	"bytes"
	"fmt"
	"net"
	"testing"

	"github.com/actionrelay/actionrelay/pkg/rtsp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestHandleConn(t *testing.T) {
	var buf bytes.Buffer
	log = zerolog.New(&buf).Level(zerolog.DebugLevel)
	t.Cleanup(func() {
		log = zerolog.Nop()
	})

	viewer, server := net.Pipe()
	defer viewer.Close()

	conn := rtsp.NewConn(server)
	handleConn(conn)

	conn.Fire(fmt.Errorf("%w: 1 lines", rtsp.ErrProtocolMismatch))
	conn.Fire(net.ErrClosed)

	out := buf.String()
	require.Contains(t, out, `"message":"[rtsp] new viewer"`)
	require.Contains(t, out, `"message":"[rtsp] reject"`)
	require.Contains(t, out, `"level":"warn"`)
}
