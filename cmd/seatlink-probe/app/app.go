package app

import (
	"os"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/seatlink/cmd/seatlink-probe/app/options"
	"github.com/autopeer-io/seatlink/internal/controller"
	"github.com/autopeer-io/seatlink/internal/seat"
	"github.com/autopeer-io/seatlink/pkg/app"
	"github.com/autopeer-io/seatlink/pkg/log"
)

const commandName = "seatlink-probe"

func NewApp() *app.App {
	opts := options.NewProbeOptions()
	return app.NewApp(
		commandName,
		"Check which robots of a session are reachable",
		app.WithDescription(`seatlink-probe connects once to every robot of the session file,
requests battery status and prints a table of the results. With
--agent-addr it also shows the health a running agent reports.`),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(func() error {
			log.Init(opts.Log)
			defer func() { _ = log.Sync() }()

			local, err := controller.LoadLocalSeats(opts.SeatOptions.LocalConfig)
			if err != nil {
				return err
			}

			report, err := probe(genericapiserver.SetupSignalContext(), probeConfig{
				SessionFile: opts.SessionFile,
				Controller: controller.Config{
					Port: opts.SeatOptions.Port,
					Seat: seat.Config{
						ReadBufferSize: opts.SeatOptions.ReadBuffer,
						WriteTimeout:   opts.SeatOptions.WriteTimeout,
						ConnectTimeout: opts.SeatOptions.ConnectTimeout,
					},
					ReceiveTimeout: opts.SeatOptions.ReceiveTimeout,
					FrameTimeout:   opts.SeatOptions.FrameTimeout,
					LocalSeats:     local,
					SetFile:        opts.SeatOptions.SetFile,
				},
				Wait:         opts.Wait,
				AgentAddr:    opts.AgentAddr,
				AgentTimeout: opts.AgentTimeout,
				Logger:       log.Std(),
			})
			if err != nil {
				return err
			}
			return render(os.Stdout, report)
		}),
	)
}
