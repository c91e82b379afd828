// Package command defines the serializable command set a remote client uses to
// query a scale, and a Dispatcher answering those commands
package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind denotes the type of a command
type Kind string

const (

	// KindGetWeight requests a single calibrated weight
	KindGetWeight Kind = "GetWeight"

	// KindGetMedianWeight requests the median of a number of weight samples
	KindGetMedianWeight Kind = "GetMedianWeight"

	// KindGetRawMedians requests per-channel medians of raw readings
	KindGetRawMedians Kind = "GetRawMedians"

	// KindShutdown requests the release of the scale
	KindShutdown Kind = "Shutdown"
)

// ErrInvalidCommand denotes a command that cannot be decoded
var ErrInvalidCommand = errors.New("invalid command")

// Command denotes a single remote command. It is encoded as a bare string for
// commands without arguments ("GetWeight", "Shutdown") and as a single-key object
// otherwise ({"GetMedianWeight":{"samples":5}})
type Command struct {
	Kind    Kind
	Samples int
}

type samplesArgs struct {
	Samples int `json:"samples"`
}

// GetWeight returns a GetWeight command
func GetWeight() Command {
	return Command{Kind: KindGetWeight}
}

// GetMedianWeight returns a GetMedianWeight command
func GetMedianWeight(samples int) Command {
	return Command{Kind: KindGetMedianWeight, Samples: samples}
}

// GetRawMedians returns a GetRawMedians command
func GetRawMedians(samples int) Command {
	return Command{Kind: KindGetRawMedians, Samples: samples}
}

// Shutdown returns a Shutdown command
func Shutdown() Command {
	return Command{Kind: KindShutdown}
}

// String returns a human-readable representation of the command
func (c Command) String() string {
	if c.hasSamples() {
		return fmt.Sprintf("%s{samples: %d}", c.Kind, c.Samples)
	}
	return string(c.Kind)
}

// MarshalJSON implements json.Marshaler
func (c Command) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case KindGetWeight, KindShutdown:
		return json.Marshal(string(c.Kind))
	case KindGetMedianWeight, KindGetRawMedians:
		return json.Marshal(map[Kind]samplesArgs{
			c.Kind: {Samples: c.Samples},
		})
	}

	return nil, fmt.Errorf("%w: unknown kind `%s`", ErrInvalidCommand, c.Kind)
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Command) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	// Commands without arguments
	if len(data) > 0 && data[0] == '"' {
		var kind Kind
		if err := json.Unmarshal(data, &kind); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		switch kind {
		case KindGetWeight, KindShutdown:
			*c = Command{Kind: kind}
			return nil
		}
		return fmt.Errorf("%w: unknown or incomplete command `%s`", ErrInvalidCommand, kind)
	}

	var tagged map[Kind]samplesArgs
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("%w: expected exactly one command, got %d", ErrInvalidCommand, len(tagged))
	}
	for kind, args := range tagged {
		switch kind {
		case KindGetMedianWeight, KindGetRawMedians:
			*c = Command{Kind: kind, Samples: args.Samples}
			return nil
		}
		return fmt.Errorf("%w: unknown command `%s`", ErrInvalidCommand, kind)
	}

	return nil
}

// Parse decodes a command from its JSON representation
func Parse(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		if errors.Is(err, ErrInvalidCommand) {
			return Command{}, err
		}
		return Command{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	return c, nil
}

func (c Command) hasSamples() bool {
	return c.Kind == KindGetMedianWeight || c.Kind == KindGetRawMedians
}
