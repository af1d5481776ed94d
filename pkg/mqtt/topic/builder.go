package topic

import (
	"fmt"
	"strconv"
	"strings"
)

// Topic segments. Changing these breaks every consumer of the telemetry stream.
const (
	// SuffixBattery carries battery readings (Agent -> Consumer).
	// Structure: {root}/battery/{seat}
	SuffixBattery = "battery"

	// SuffixOnline carries seat reachability, retained (Agent -> Consumer).
	// Structure: {root}/online/{seat}
	SuffixOnline = "online"

	// SuffixInput carries operator input events (Operator -> Agent).
	// Structure: {root}/input/{seat}
	SuffixInput = "input"

	// SuffixAgent carries the agent's own liveness, also used as its will topic.
	// Structure: {root}/agent/{clientID}
	SuffixAgent = "agent"
)

// TopicBuilder constructs topic strings under one root namespace.
type TopicBuilder struct {
	// root is the base namespace for all topics, e.g. "seatlink/v1".
	root string
}

// NewTopicBuilder creates a TopicBuilder for root.
func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: strings.TrimSuffix(root, "/")}
}

// Battery returns the topic for a seat's battery readings.
func (b *TopicBuilder) Battery(seat int) string {
	return b.build(SuffixBattery, strconv.Itoa(seat))
}

// Online returns the topic for a seat's reachability.
func (b *TopicBuilder) Online(seat int) string {
	return b.build(SuffixOnline, strconv.Itoa(seat))
}

// Input returns the topic operators publish input events for seat on.
func (b *TopicBuilder) Input(seat int) string {
	return b.build(SuffixInput, strconv.Itoa(seat))
}

// InputWildcard subscribes to input events for every seat.
// Result: {root}/input/+
func (b *TopicBuilder) InputWildcard() string {
	return b.build(SuffixInput, Wildcard)
}

// Agent returns the liveness topic of one agent instance.
func (b *TopicBuilder) Agent(clientID string) string {
	return b.build(SuffixAgent, clientID)
}

// Seat extracts the seat number from a {root}/{suffix}/{seat} topic.
func (b *TopicBuilder) Seat(suffix, topic string) (int, error) {
	prefix := b.root + "/" + suffix + "/"
	if !strings.HasPrefix(topic, prefix) {
		return 0, fmt.Errorf("topic %q is not under %q", topic, prefix)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(topic, prefix))
	if err != nil {
		return 0, fmt.Errorf("topic %q: seat is not a number", topic)
	}
	return n, nil
}

// build joins the parts as {root}/{suffix}/{identifier}.
func (b *TopicBuilder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
