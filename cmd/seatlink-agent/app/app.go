package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/seatlink/cmd/seatlink-agent/app/options"
	"github.com/autopeer-io/seatlink/pkg/app"
	"github.com/autopeer-io/seatlink/pkg/log"
)

const (
	commandName = "seatlink-agent"
	commandDesc = `The seatlink agent connects to every robot seat of a session over TCP,
turns operator input into actuator frames, polls battery status and
reports it over MQTT, HTTP and gRPC health.

The session (robots list and current set) is read from --session-file and
re-applied whenever that file changes.`
)

func NewApp() *app.App {
	opts := options.NewAgentOptions()
	application := app.NewApp(
		commandName,
		"Launch the seatlink robot agent",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.AgentOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer func() { _ = log.Sync() }()

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewAgent()
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		return agent.Run(ctx)
	}
}
