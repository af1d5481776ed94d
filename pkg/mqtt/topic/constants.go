package topic

// MQTT wildcards.
const (
	// Wildcard matches exactly one topic level: "seatlink/input/+".
	Wildcard = "+"

	// MultiWildcard matches the remaining levels and must come last: "seatlink/#".
	MultiWildcard = "#"
)
