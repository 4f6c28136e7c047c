package core

import (
	"sync/atomic"
)

func NewID() uint32 {
	return id.Add(1)
}

var id atomic.Uint32

// Connection - info about one socket of the relay
// - FormatName: camproto, mediamux, rtsp
// - Protocol: tcp, udp
type Connection struct {
	ID         uint32 `json:"id,omitempty"`
	FormatName string `json:"format_name,omitempty"`
	Protocol   string `json:"protocol,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`

	recv atomic.Int64
	send atomic.Int64
}

func (c *Connection) AddRecv(n int) {
	c.recv.Add(int64(n))
}

func (c *Connection) AddSend(n int) {
	c.send.Add(int64(n))
}

// Recv - total bytes received
func (c *Connection) Recv() int64 {
	return c.recv.Load()
}

// Send - total bytes sent
func (c *Connection) Send() int64 {
	return c.send.Load()
}
