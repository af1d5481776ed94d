package mqtt

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/autopeer-io/seatlink/internal/seat"
	"github.com/autopeer-io/seatlink/pkg/log"
	pkgmqtt "github.com/autopeer-io/seatlink/pkg/mqtt"
	"github.com/autopeer-io/seatlink/pkg/mqtt/topic"
)

// Controller is the part of the car controller operator input reaches.
type Controller interface {
	Send(ctx context.Context, id seat.ID, input string, value float32) error
	Drive(ctx context.Context, id seat.ID, throttle, steering float32) error
}

// Server is the MQTT ingress: it takes operator input from
// {root}/input/{seat} and keeps {root}/agent/{clientID} up to date.
type Server struct {
	client   pkgmqtt.Client
	topics   *topic.TopicBuilder
	ctrl     Controller
	clientID string
	qos      int
	log      log.Logger
}

func NewServer(client pkgmqtt.Client, builder *topic.TopicBuilder, ctrl Controller, clientID string, qos int, logger log.Logger) *Server {
	if logger == nil {
		logger = log.Std()
	}
	return &Server{
		client:   client,
		topics:   builder,
		ctrl:     ctrl,
		clientID: clientID,
		qos:      qos,
		log:      logger.WithName("mqtt-ingress"),
	}
}

// AgentStatus is the retained payload on the agent topic. With online false
// it doubles as the will message.
func AgentStatus(clientID string, online bool, reason string) []byte {
	st, _ := structpb.NewStruct(map[string]any{
		"clientId": clientID,
		"online":   online,
		"reason":   reason,
	})
	b, _ := protojson.Marshal(st)
	return b
}

// Start connects to the broker and subscribes to operator input.
func (s *Server) Start(ctx context.Context) error {
	// 1. Start the connection manager (Non-blocking)
	if err := s.client.Start(ctx); err != nil {
		return err
	}

	// Ensure MQTT disconnects when Start exits
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.client.Publish(shutdownCtx, s.topics.Agent(s.clientID), s.qos, true,
			AgentStatus(s.clientID, false, "Shutdown")); err != nil {
			s.log.Warn("Failed to publish offline status", "error", err)
		}
		s.client.Disconnect(shutdownCtx)
	}()

	// 2. Wait for the initial connection to be established
	s.log.Info("Waiting for MQTT connection...")
	if err := s.client.AwaitConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	s.log.Info("MQTT Connected")

	if err := s.client.Publish(ctx, s.topics.Agent(s.clientID), s.qos, true,
		AgentStatus(s.clientID, true, "")); err != nil {
		s.log.Warn("Failed to publish online status", "error", err)
	}

	filter := s.topics.InputWildcard()
	if err := s.client.Subscribe(ctx, filter, s.qos, s.handleInput); err != nil {
		return fmt.Errorf("failed to subscribe to topic: %s, err: %w", filter, err)
	}

	<-ctx.Done()
	return nil
}

// inputEvent is one decoded operator message. Either Input is set, or the
// message is a drive command carrying throttle and steer.
type inputEvent struct {
	Input    string
	Value    float32
	Throttle float32
	Steer    float32
}

func (e inputEvent) drive() bool { return e.Input == "" }

// decodeInput accepts {"input": "lift", "value": 0.5} or
// {"throttle": 0.5, "steer": -0.2}.
func decodeInput(payload []byte) (inputEvent, error) {
	var st structpb.Struct
	if err := protojson.Unmarshal(payload, &st); err != nil {
		return inputEvent{}, fmt.Errorf("malformed input payload: %w", err)
	}
	f := st.GetFields()

	if in, ok := f["input"]; ok {
		name := in.GetStringValue()
		if name == "" {
			return inputEvent{}, fmt.Errorf("input name must be a non-empty string")
		}
		v, ok := f["value"]
		if !ok {
			return inputEvent{}, fmt.Errorf("input %q has no value", name)
		}
		if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
			if _, isBool := v.GetKind().(*structpb.Value_BoolValue); !isBool {
				return inputEvent{}, fmt.Errorf("input %q value is not a number", name)
			}
			if v.GetBoolValue() {
				return inputEvent{Input: name, Value: 1}, nil
			}
			return inputEvent{Input: name}, nil
		}
		return inputEvent{Input: name, Value: float32(v.GetNumberValue())}, nil
	}

	th, hasTh := f["throttle"]
	sr, hasSr := f["steer"]
	if !hasTh && !hasSr {
		return inputEvent{}, fmt.Errorf("payload has neither input nor throttle/steer")
	}
	return inputEvent{
		Throttle: float32(th.GetNumberValue()),
		Steer:    float32(sr.GetNumberValue()),
	}, nil
}

func (s *Server) handleInput(ctx context.Context, t string, payload []byte) {
	n, err := s.topics.Seat(topic.SuffixInput, t)
	if err != nil {
		s.log.Warn("Ignoring input on unexpected topic", "topic", t, "error", err)
		return
	}
	ev, err := decodeInput(payload)
	if err != nil {
		s.log.Warn("Ignoring input", "seat", n, "error", err)
		return
	}

	id := seat.ID(n)
	if ev.drive() {
		err = s.ctrl.Drive(ctx, id, ev.Throttle, ev.Steer)
	} else {
		err = s.ctrl.Send(ctx, id, ev.Input, ev.Value)
	}
	if err != nil {
		s.log.Warn("Operator input rejected", "seat", n, "error", err)
	}
}
