package splitter

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenLength returns a LengthFunc counting tokens of the named tiktoken encoding.
func TokenLength(encoding string) (LengthFunc, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding %q: %w", encoding, err)
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}, nil
}

// LengthFor maps a configured unit ("chars" or "tokens") to a LengthFunc.
func LengthFor(unit, encoding string) (LengthFunc, error) {
	switch unit {
	case "", "chars":
		return RuneLength, nil
	case "tokens":
		return TokenLength(encoding)
	default:
		return nil, fmt.Errorf("unknown length unit %q", unit)
	}
}
