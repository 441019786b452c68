package quotes

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedNumber is returned when the latest stored number cannot be parsed.
var ErrMalformedNumber = errors.New("quotes: malformed quote number")

const numberPrefix = "DEVIS-"

// NumberPrefix returns the per-year prefix, e.g. "DEVIS-2025-".
func NumberPrefix(year int) string {
	return fmt.Sprintf("%s%d-", numberPrefix, year)
}

// FormatNumber builds a quote number. The sequence is padded to three digits
// and widens past 999.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("%s%03d", NumberPrefix(year), seq)
}

// NextNumber derives the number following latest within year. An empty latest
// starts the year at 001.
func NextNumber(year int, latest string) (string, error) {
	if latest == "" {
		return FormatNumber(year, 1), nil
	}
	prefix := NumberPrefix(year)
	if !strings.HasPrefix(latest, prefix) {
		return "", fmt.Errorf("%w: %q", ErrMalformedNumber, latest)
	}
	segment := latest[strings.LastIndexByte(latest, '-')+1:]
	seq, err := strconv.Atoi(segment)
	if err != nil || seq < 1 {
		return "", fmt.Errorf("%w: %q", ErrMalformedNumber, latest)
	}
	return FormatNumber(year, seq+1), nil
}
