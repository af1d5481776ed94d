package actuator

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/autopeer-io/seatlink/internal/protocol"
)

var (
	// ErrUnknownInput is returned when encoding a name that was never bound.
	ErrUnknownInput = errors.New("actuator: unknown input")
	// ErrFrozen is returned by Bind once configuration has completed.
	ErrFrozen = errors.New("actuator: bindings are frozen")
	// ErrOutOfRange is returned for a normalized value outside [-1, 1].
	ErrOutOfRange = errors.New("actuator: value out of range")
)

// Binding maps one logical axis to a wire command and a scale factor.
type Binding struct {
	Command    protocol.CommandID
	Multiplier float32
}

// Encode scales v by the multiplier and builds the actuator frame. The
// multiplier is applied here and nowhere else.
func (b Binding) Encode(v float32) ([]byte, error) {
	if v < -1 || v > 1 {
		return nil, fmt.Errorf("%w: %v not in [-1, 1]", ErrOutOfRange, v)
	}
	return protocol.EncodeActuator(b.Command, v*b.Multiplier)
}

// Bindings is the registry of logical inputs for one robot model. It is
// populated during configuration and read-only after Freeze.
type Bindings struct {
	mu     sync.RWMutex
	byName map[string]Binding
	frozen bool
}

func NewBindings() *Bindings {
	return &Bindings{byName: make(map[string]Binding)}
}

// Bind registers name. Rebinding a name or binding after Freeze fails.
func (b *Bindings) Bind(name string, cmd protocol.CommandID, multiplier float32) error {
	if name == "" {
		return errors.New("actuator: empty input name")
	}
	if !cmd.Valid() {
		return fmt.Errorf("actuator: input %q: unregistered command %s", name, cmd)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return fmt.Errorf("%w: cannot bind %q", ErrFrozen, name)
	}
	if _, dup := b.byName[name]; dup {
		return fmt.Errorf("actuator: input %q already bound", name)
	}
	b.byName[name] = Binding{Command: cmd, Multiplier: multiplier}
	return nil
}

// Freeze ends registration.
func (b *Bindings) Freeze() {
	b.mu.Lock()
	b.frozen = true
	b.mu.Unlock()
}

func (b *Bindings) Frozen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frozen
}

// Lookup returns the binding registered under name.
func (b *Bindings) Lookup(name string) (Binding, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bd, ok := b.byName[name]
	return bd, ok
}

// Encode looks up name and builds the frame for the normalized value v.
func (b *Bindings) Encode(name string, v float32) ([]byte, error) {
	bd, ok := b.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInput, name)
	}
	return bd.Encode(v)
}

// Names returns the bound input names in sorted order.
func (b *Bindings) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.byName))
	for n := range b.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
