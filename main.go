package main

import (
	"context"

	"github.com/actionrelay/actionrelay/internal/app"
	"github.com/actionrelay/actionrelay/internal/camera"
	"github.com/actionrelay/actionrelay/internal/rtsp"
	"github.com/actionrelay/actionrelay/pkg/shell"
)

func main() {
	app.Init() // init config and logs

	ctx, cancel := context.WithCancel(context.Background())

	camera.Init(ctx) // control session, media ingest and relay
	rtsp.Init(ctx)   // viewer negotiation

	sig := shell.RunUntilSignal(cancel)
	app.Logger.Info().Stringer("signal", sig).Msg("exit")
}
