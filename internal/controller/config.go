package controller

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-viper/mapstructure/v2"

	"github.com/autopeer-io/seatlink/internal/seat"
	"github.com/autopeer-io/seatlink/pkg/log"
)

const (
	// DefaultPort is the robot firmware's TCP port.
	DefaultPort = 31338
	// DefaultSetFile holds the current set number when the session config has none.
	DefaultSetFile = "/var/lib/srtg/current_set"

	addressKey      = "address"
	addressAliasKey = "microcontroller_ip_addr"
)

// Robot is one entry of the session's robots list.
type Robot struct {
	Seat    *int         `mapstructure:"seat"`
	Set     int          `mapstructure:"set"`
	Enabled *bool        `mapstructure:"enabled"`
	Custom  *RobotCustom `mapstructure:"custom"`
}

// RobotCustom carries the per-robot settings supplied by the game engine.
type RobotCustom struct {
	Address               string `mapstructure:"address"`
	MicrocontrollerIPAddr string `mapstructure:"microcontroller_ip_addr"`
}

// IsEnabled treats a missing flag as enabled.
func (r Robot) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// SeatConfig is one resolved seat ready to be dialed.
type SeatConfig struct {
	Seat    seat.ID
	Address string
	Set     int
	Enabled bool
}

// Session is the parsed form of a session configuration.
type Session struct {
	Seats []SeatConfig
	// CurrentSet is nil when the configuration did not carry a usable value.
	CurrentSet *int
	// Declared is the number of robot entries, duplicates included.
	Declared int
}

func decode(input, output any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           output,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// ParseSession validates raw session configuration. local overrides the
// address of any seat it names. A robot without a seat number or without an
// address fails the whole configuration with ErrConfig.
func ParseSession(raw map[string]any, local map[seat.ID]string, port int, logger log.Logger) (*Session, error) {
	if logger == nil {
		logger = log.Std()
	}
	if port <= 0 {
		port = DefaultPort
	}

	rawRobots, ok := lookupKey(raw, "robots")
	if !ok || rawRobots == nil {
		return nil, fmt.Errorf("%w: missing robots list", ErrConfig)
	}

	var robots []Robot
	if err := decode(rawRobots, &robots); err != nil {
		return nil, fmt.Errorf("%w: robots: %v", ErrConfig, err)
	}

	s := &Session{Declared: len(robots)}

	if v, ok := lookupKey(raw, "currentSet"); ok {
		var set int
		if err := decode(v, &set); err != nil {
			logger.Warn("Failed to cast current set number to int", "value", fmt.Sprint(v))
		} else {
			s.CurrentSet = &set
		}
	}

	index := make(map[seat.ID]int, len(robots))
	for i, r := range robots {
		if r.Seat == nil {
			return nil, fmt.Errorf("%w: robot #%d has no seat", ErrConfig, i)
		}
		id := seat.ID(*r.Seat)

		addr, ok := local[id]
		if !ok {
			if r.Custom == nil {
				return nil, fmt.Errorf("%w: seat %d: no %q section", ErrConfig, id, "custom")
			}
			addr = r.Custom.Address
			if addr == "" {
				addr = r.Custom.MicrocontrollerIPAddr
			}
		}
		if addr == "" {
			return nil, fmt.Errorf("%w: seat %d: neither %q nor %q set", ErrConfig, id, addressKey, addressAliasKey)
		}

		sc := SeatConfig{
			Seat:    id,
			Address: withPort(addr, port),
			Set:     r.Set,
			Enabled: r.IsEnabled(),
		}

		if at, dup := index[id]; dup {
			logger.Info("Duplicate seat found in config, using the later address", "seat", int(id), "address", sc.Address)
			s.Seats[at] = sc
			continue
		}
		index[id] = len(s.Seats)
		s.Seats = append(s.Seats, sc)
	}

	return s, nil
}

// lookupKey finds key ignoring case; config loaders such as viper lowercase keys.
func lookupKey(raw map[string]any, key string) (any, bool) {
	if v, ok := raw[key]; ok {
		return v, true
	}
	for k, v := range raw {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// withPort appends the firmware port when addr is a bare host.
func withPort(addr string, port int) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(strings.Trim(addr, "[]"), strconv.Itoa(port))
}

// localFile is the on-disk layout of the local seat override file:
//
//	[seats]
//	1 = "192.168.1.21"
//	2 = "192.168.1.22:31338"
type localFile struct {
	Seats map[string]string `toml:"seats"`
}

// LoadLocalSeats reads seat address overrides. A missing path yields no overrides.
func LoadLocalSeats(path string) (map[seat.ID]string, error) {
	if path == "" {
		return nil, nil
	}

	var f localFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read local seat config %s: %w", path, err)
	}

	out := make(map[seat.ID]string, len(f.Seats))
	for k, v := range f.Seats {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("local seat config %s: seat %q is not a number", path, k)
		}
		out[seat.ID(n)] = v
	}
	return out, nil
}

// ReadSetFile returns the set number stored in path, or 0 when the file does not exist.
func ReadSetFile(path string, logger log.Logger) (int, error) {
	if logger == nil {
		logger = log.Std()
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Set file not found, defaulting set to 0", "path", path)
			return 0, nil
		}
		return 0, err
	}

	n, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("set file %s: %w", path, err)
	}
	return n, nil
}
