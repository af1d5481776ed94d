package app

import (
	cliflag "k8s.io/component-base/cli/flag"
)

// NamedFlagSetOptions is implemented by every command's options struct.
type NamedFlagSetOptions interface {
	// Flags returns the flags grouped by section for --help.
	Flags() cliflag.NamedFlagSets
	// Complete fills in values derived from other fields.
	Complete() error
	// Validate checks the final values; errors are aggregated.
	Validate() error
}
