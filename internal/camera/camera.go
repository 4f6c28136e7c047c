package camera

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/actionrelay/actionrelay/internal/app"
	"github.com/actionrelay/actionrelay/pkg/camproto"
	"github.com/actionrelay/actionrelay/pkg/h264"
	"github.com/actionrelay/actionrelay/pkg/mediamux"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Config struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	MediaPort    int           `yaml:"media_port"`
	MediaListen  string        `yaml:"media_listen"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	Heartbeat    time.Duration `yaml:"heartbeat"`
	LoginTimeout time.Duration `yaml:"login_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	MediaTimeout time.Duration `yaml:"media_timeout"`
	Relay        string        `yaml:"relay"`
	Capture      string        `yaml:"capture"`
}

func DefaultConfig() Config {
	return Config{
		Host:         "192.168.100.1",
		Port:         camproto.DefaultPort,
		MediaPort:    mediamux.DefaultPort,
		MediaListen:  ":" + strconv.Itoa(mediamux.DefaultPort),
		Username:     "admin",
		Password:     "12345",
		Heartbeat:    camproto.DefaultHeartbeatInterval,
		LoginTimeout: camproto.DefaultLoginTimeout,
		MediaTimeout: mediamux.DefaultReadTimeout,
		Relay:        "127.0.0.1:5220",
	}
}

func Init(ctx context.Context) {
	var conf struct {
		Mod Config `yaml:"camera"`
	}

	conf.Mod = DefaultConfig()

	app.LoadConfig(&conf)

	log = app.GetLogger("camera")

	if conf.Mod.Host == "" {
		return
	}

	go NewService(conf.Mod).Run(ctx)
}

var log zerolog.Logger

const (
	dialTimeout = 5 * time.Second
	minBackoff  = time.Second
	maxBackoff  = 30 * time.Second
)

// Service - keeps the control session alive and starts the media side once
type Service struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration

	conf  Config
	media sync.Once
}

func NewService(conf Config) *Service {
	return &Service{MinBackoff: minBackoff, MaxBackoff: maxBackoff, conf: conf}
}

func (s *Service) Addr() string {
	return net.JoinHostPort(s.conf.Host, strconv.Itoa(s.conf.Port))
}

func (s *Service) MediaAddr() string {
	return net.JoinHostPort(s.conf.Host, strconv.Itoa(s.conf.MediaPort))
}

// Run - reconnect with backoff until ctx is done or the config can't work
func (s *Service) Run(ctx context.Context) {
	backoff := s.MinBackoff

	for {
		streamed, err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}

		if streamed {
			backoff = s.MinBackoff
		}

		// bad credentials never pass, retrying won't help
		if errors.Is(err, camproto.ErrCredentialTooLong) {
			log.Error().Err(err).Msg("[camera] stop")
			return
		}

		var connErr *camproto.ConnectionError
		switch {
		case errors.As(err, &connErr):
			log.Error().Err(err).Dur("retry", backoff).Msg("[camera] connect")
		case errors.Is(err, camproto.ErrLoginRejected):
			log.Warn().Err(err).Dur("retry", backoff).Msg("[camera] another client is connected")
		case errors.Is(err, camproto.ErrTimeout):
			log.Warn().Err(err).Dur("retry", backoff).Msg("[camera] timeout")
		default:
			log.Warn().Err(err).Dur("retry", backoff).Msg("[camera] session")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if backoff *= 2; backoff > s.MaxBackoff {
			backoff = s.MaxBackoff
		}
	}
}

func (s *Service) session(ctx context.Context) (streamed bool, err error) {
	addr := s.Addr()
	log := log.With().Str("session", uuid.NewString()).Str("addr", addr).Logger()

	log.Debug().Msg("[camera] dial")

	conn, err := camproto.Dial(ctx, addr, dialTimeout)
	if err != nil {
		return false, err
	}

	client := camproto.NewClient(conn, s.conf.Username, s.conf.Password)
	client.HeartbeatInterval = s.conf.Heartbeat
	client.LoginTimeout = s.conf.LoginTimeout
	client.ReadTimeout = s.conf.ReadTimeout

	client.Listen(func(msg any) {
		switch msg := msg.(type) {
		case camproto.State:
			log.Debug().Stringer("state", msg).Msg("[camera] state")
			if msg == camproto.StateStreaming {
				streamed = true
				log.Info().Msg("[camera] streaming")
				s.media.Do(func() {
					go s.runMedia(ctx)
				})
			}
		case *camproto.Header:
			log.Trace().Stringer("frame", msg).Msg("[camera] skip")
		}
	})

	if err = client.Login(); err != nil {
		_ = client.Close()
		return false, err
	}

	err = client.Handle(ctx)

	log.Debug().Int64("recv", client.Recv()).Int64("send", client.Send()).Msg("[camera] closed")

	return
}

func (s *Service) runMedia(ctx context.Context) {
	conn, err := mediamux.Listen(ctx, s.conf.MediaListen, s.MediaAddr())
	if err != nil {
		log.Error().Err(err).Msg("[camera] media listen")
		return
	}

	ingest := mediamux.NewIngest(conn)
	ingest.ReadTimeout = s.conf.MediaTimeout

	if s.conf.Relay != "" {
		sink, err := mediamux.NewUDPSink(s.conf.Relay)
		if err != nil {
			log.Error().Err(err).Msg("[camera] relay")
		} else {
			defer sink.Close()
			ingest.AddSink(sink)
		}
	}

	if s.conf.Capture != "" {
		f, err := os.Create(s.conf.Capture)
		if err != nil {
			log.Error().Err(err).Msg("[camera] capture")
		} else {
			defer f.Close()
			ingest.Capture = f
		}
	}

	ingest.Listen(func(msg any) {
		switch msg := msg.(type) {
		case *mediamux.Packet:
			tracePacket(log, msg)
		case error:
			if errors.Is(msg, os.ErrDeadlineExceeded) {
				log.Debug().Msg("[camera] no media")
			} else {
				log.Warn().Err(msg).Msg("[camera] drop")
			}
		}
	})

	log.Info().Str("addr", conn.LocalAddr().String()).Str("device", s.MediaAddr()).Msg("[camera] media")

	if err = ingest.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("[camera] media stopped")
	}
}

func tracePacket(log zerolog.Logger, pkt *mediamux.Packet) {
	if e := log.Trace(); e.Enabled() {
		e.Uint16("seq", pkt.SequenceNumber).Uint32("ts", pkt.Timestamp).Int("size", len(pkt.Payload)).
			Bool("keyframe", h264.IsKeyframe(pkt.Payload)).Hex("nalu", h264.Types(pkt.Payload)).
			Msg("[camera] packet")
	}
}
