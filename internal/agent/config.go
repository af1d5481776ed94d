package agent

import (
	"fmt"
	"os"

	"github.com/autopeer-io/seatlink/internal/agent/server"
	grpcserver "github.com/autopeer-io/seatlink/internal/agent/server/grpc"
	httpserver "github.com/autopeer-io/seatlink/internal/agent/server/http"
	mqttserver "github.com/autopeer-io/seatlink/internal/agent/server/mqtt"
	"github.com/autopeer-io/seatlink/internal/controller"
	"github.com/autopeer-io/seatlink/internal/protocol"
	"github.com/autopeer-io/seatlink/internal/telemetry"
	"github.com/autopeer-io/seatlink/pkg/log"
	"github.com/autopeer-io/seatlink/pkg/mqtt"
	"github.com/autopeer-io/seatlink/pkg/mqtt/topic"
	"github.com/autopeer-io/seatlink/pkg/options"
)

// staleCycles is how many poll intervals a battery reading stays fresh.
const staleCycles = 3

type Config struct {
	Model       controller.Model
	Controller  controller.Config
	SessionFile string

	PollerEnabled bool
	Poller        telemetry.PollerConfig

	HttpOptions *options.HttpOptions
	GrpcOptions *options.GrpcOptions
	MqttOptions *options.MqttOptions

	Logger log.Logger
}

// NewAgent wires the controller, telemetry and every server together.
func (cfg *Config) NewAgent() (*Agent, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Std()
	}
	cfg.Controller.Logger = logger
	cfg.Poller.Logger = logger

	ctrl, err := controller.New(cfg.Model, cfg.Controller)
	if err != nil {
		return nil, fmt.Errorf("failed to init controller: %w", err)
	}

	interval := cfg.Poller.Interval
	if interval <= 0 {
		interval = telemetry.DefaultInterval
	}

	a := &Agent{
		ctrl:       ctrl,
		readings:   telemetry.NewReadings(nil),
		port:       cfg.Controller.Port,
		local:      cfg.Controller.LocalSeats,
		staleAfter: staleCycles * interval,
		log:        logger.WithName("agent"),
	}

	sinks := telemetry.MultiSink{telemetry.LogSink{Logger: logger.WithName("telemetry")}}
	a.servers = server.NewManager()

	if cfg.MqttOptions != nil && cfg.MqttOptions.Enabled {
		client, builder, clientID, err := cfg.initMqttClientAndTopicBuilder()
		if err != nil {
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
		a.mqttSink = telemetry.NewMQTTSink(client, builder, cfg.MqttOptions.QoS)
		sinks = append(sinks, a.mqttSink)
		a.servers.Add(mqttserver.NewServer(client, builder, ctrl, clientID, cfg.MqttOptions.QoS, logger))
	}

	battery := telemetry.NewBatteryListener(a.readings, sinks, logger)
	a.dispatcher, err = controller.NewDispatcher(map[protocol.CommandID]controller.Handler{
		protocol.BatteryStatus: battery.Handle,
	}, a.logAck)
	if err != nil {
		return nil, err
	}

	a.grpc = grpcserver.NewServer(cfg.GrpcOptions)
	a.servers.Add(a.grpc)
	a.servers.Add(httpserver.NewServer(cfg.HttpOptions, a))

	if cfg.PollerEnabled {
		a.servers.Add(telemetry.NewPoller(ctrl, cfg.Poller))
	}

	a.session = NewSessionSource(cfg.SessionFile, a.applySession, logger)
	a.servers.Add(a.session)

	ctrl.Observe(a.seatClosed)
	return a, nil
}

func (cfg *Config) initMqttClientAndTopicBuilder() (mqtt.Client, *topic.TopicBuilder, string, error) {
	builder := topic.NewTopicBuilder(cfg.MqttOptions.TopicRoot)

	clientID := cfg.MqttOptions.ClientID
	if clientID == "" {
		hostname, _ := os.Hostname()
		clientID = fmt.Sprintf("seatlink-agent-%s", hostname)
	}

	mqttConfig := cfg.MqttOptions.ToClientConfig(
		builder.Agent(clientID),
		mqttserver.AgentStatus(clientID, false, "UnexpectedDisconnect"),
	)
	mqttConfig.ClientID = clientID
	mqttConfig.OrderedHandlers = true
	mqttConfig.Logger = cfg.Logger

	client, err := mqtt.NewClient(mqttConfig)
	if err != nil {
		return nil, nil, "", err
	}
	return client, builder, clientID, nil
}
