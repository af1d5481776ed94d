package app

import (
	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/seatlink/cmd/seatlink-simbot/app/options"
	"github.com/autopeer-io/seatlink/internal/simbot"
	"github.com/autopeer-io/seatlink/pkg/app"
	"github.com/autopeer-io/seatlink/pkg/log"
)

const commandName = "seatlink-simbot"

func NewApp() *app.App {
	opts := options.NewSimbotOptions()
	return app.NewApp(
		commandName,
		"Simulate a robot seat for local testing",
		app.WithDescription(`seatlink-simbot listens like a robot does, logs every actuator
command it receives and answers battery status requests with a slowly
discharging battery.`),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(func() error {
			log.Init(opts.Log)
			defer func() { _ = log.Sync() }()

			ctx := genericapiserver.SetupSignalContext()
			return simbot.New(opts.Config()).Start(ctx)
		}),
	)
}
