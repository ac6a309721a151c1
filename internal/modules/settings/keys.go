package settings

import (
	"fmt"
	"strconv"
)

// Spec describes one recognized setting key: what it is for and what values
// it accepts. Writes to keys outside this table are rejected, which keeps
// the settings table from silently accumulating typos.
type Spec struct {
	Description string
	Validate    func(value string) error
}

// Specs is the set of recognized settings.
var Specs = map[string]Spec{
	"default_shots": {
		Description: "Shot count used when an experiment does not specify one",
		Validate:    intBetween(1, 1_000_000),
	},
	"default_backend": {
		Description: "Backend name used when an experiment does not specify one",
		Validate:    nonEmpty,
	},
	"default_clock_qubits": {
		Description: "Phase-estimation register width for experiments that do not choose one",
		Validate:    intBetween(1, 8),
	},
	"max_qubits": {
		Description: "Hard ceiling for circuit width",
		Validate:    intBetween(2, 24),
	},
	"history_retention_days": {
		Description: "Days archived outcome rows are kept before the cleanup job prunes them",
		Validate:    intBetween(1, 3650),
	},
	"sampler_seed": {
		Description: "Seed for the shot sampler, 0 derives one from the clock",
		Validate:    anyInt,
	},
	"backup_enabled": {
		Description: "Whether scheduled off-site backups run",
		Validate:    boolean,
	},
}

// Validate checks a key/value pair against the recognized-keys table.
func Validate(key, value string) error {
	spec, ok := Specs[key]
	if !ok {
		return fmt.Errorf("unknown setting: %s", key)
	}
	return spec.Validate(value)
}

func intBetween(min, max int) func(string) error {
	return func(value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("value %q is not an integer", value)
		}
		if n < min || n > max {
			return fmt.Errorf("value %d out of range [%d, %d]", n, min, max)
		}
		return nil
	}
}

func anyInt(value string) error {
	if _, err := strconv.ParseInt(value, 10, 64); err != nil {
		return fmt.Errorf("value %q is not an integer", value)
	}
	return nil
}

func boolean(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("value %q is not a boolean", value)
	}
	return nil
}

func nonEmpty(value string) error {
	if value == "" {
		return fmt.Errorf("value cannot be empty")
	}
	return nil
}
