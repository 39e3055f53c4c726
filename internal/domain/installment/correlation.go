package installment

import (
	"fmt"
	"strconv"
	"strings"
)

// correlationSeparator joins the key and the period sequence.
const correlationSeparator = "_"

// Correlation addresses one period of one plan through a single gateway
// order-number field: "{key}_{sequence}". The key is the plan number for
// payments and the order refund tracking number for refunds.
type Correlation struct {
	Key      string
	Sequence int
}

// NewCorrelation creates a correlation token for a period.
func NewCorrelation(key string, sequence int) Correlation {
	return Correlation{Key: key, Sequence: sequence}
}

// String encodes the token.
func (c Correlation) String() string {
	return c.Key + correlationSeparator + strconv.Itoa(c.Sequence)
}

// ParseCorrelation decodes a "{key}_{sequence}" token. The split happens on
// the last separator; the sequence must be a non-negative decimal integer.
func ParseCorrelation(token string) (Correlation, error) {
	idx := strings.LastIndex(token, correlationSeparator)
	if idx <= 0 || idx == len(token)-1 {
		return Correlation{}, fmt.Errorf("%w: %q", ErrMalformedCorrelation, token)
	}

	key, seq := token[:idx], token[idx+1:]
	for _, r := range seq {
		if r < '0' || r > '9' {
			return Correlation{}, fmt.Errorf("%w: %q", ErrMalformedCorrelation, token)
		}
	}
	sequence, err := strconv.Atoi(seq)
	if err != nil {
		return Correlation{}, fmt.Errorf("%w: %q", ErrMalformedCorrelation, token)
	}

	return Correlation{Key: key, Sequence: sequence}, nil
}
