package rtsp

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/actionrelay/actionrelay/internal/app"
	"github.com/actionrelay/actionrelay/pkg/rtsp"
	"github.com/actionrelay/actionrelay/pkg/tcp"
	"github.com/rs/zerolog"
)

func Init(ctx context.Context) {
	var conf struct {
		Mod struct {
			Listen      string        `yaml:"listen" json:"listen"`
			ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`
		} `yaml:"rtsp"`
	}

	// default config
	conf.Mod.Listen = ":8554"
	conf.Mod.ReadTimeout = rtsp.DefaultReadTimeout

	app.LoadConfig(&conf)
	app.Info["rtsp"] = conf.Mod

	log = app.GetLogger("rtsp")

	address := conf.Mod.Listen
	if address == "" {
		return
	}

	ln, err := net.Listen("tcp", address)
	if err != nil {
		log.Error().Err(err).Msg("[rtsp] listen")
		return
	}

	log.Info().Str("addr", address).Msg("[rtsp] listen")

	srv := rtsp.NewServer(ln)
	srv.ReadTimeout = conf.Mod.ReadTimeout
	srv.Listen(func(msg any) {
		if conn, ok := msg.(*rtsp.Conn); ok {
			handleConn(conn)
		}
	})

	go func() {
		if err := srv.Serve(ctx); err != nil {
			log.Error().Err(err).Msg("[rtsp] serve")
		}
	}()
}

var log zerolog.Logger

func handleConn(conn *rtsp.Conn) {
	log.Debug().Uint32("id", conn.ID).Str("remote", conn.RemoteAddr).Msg("[rtsp] new viewer")

	trace := log.Trace().Enabled()

	conn.Listen(func(msg any) {
		switch msg := msg.(type) {
		case *tcp.Request:
			if trace {
				log.Trace().Msgf("[rtsp] server request:\n%s", msg)
			}
		case error:
			switch {
			case errors.Is(msg, rtsp.ErrProtocolMismatch):
				log.Debug().Err(msg).Str("remote", conn.RemoteAddr).Msg("[rtsp] reject")
			case errors.Is(msg, os.ErrDeadlineExceeded):
				log.Debug().Str("remote", conn.RemoteAddr).Msg("[rtsp] viewer idle")
			default:
				log.Warn().Err(msg).Str("remote", conn.RemoteAddr).Msg("[rtsp] viewer")
			}
		}
	})
}
