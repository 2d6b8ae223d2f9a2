// internal/clock/timecontrol.go
package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadTimeControl indicates a time control string that could not be parsed.
var ErrBadTimeControl = errors.New("invalid time control string")

// TimeControl describes the clock settings for a session. The wire form is
// "<minutes>+<incrementSeconds>" (e.g. "5+0", "3+2") or the literal "untimed".
type TimeControl struct {
	Minutes      int  `json:"minutes"`
	IncrementSec int  `json:"increment_sec"`
	Untimed      bool `json:"untimed"`
}

// ParseTimeControl parses the "<minutes>+<incrementSeconds>" form, or "untimed".
func ParseTimeControl(s string) (TimeControl, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "untimed" || s == "" {
		return TimeControl{Untimed: true}, nil
	}
	parts := strings.SplitN(s, "+", 2)
	if len(parts) != 2 {
		return TimeControl{}, fmt.Errorf("%w: %q", ErrBadTimeControl, s)
	}
	mins, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || mins <= 0 {
		return TimeControl{}, fmt.Errorf("%w: %q", ErrBadTimeControl, s)
	}
	inc, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || inc < 0 {
		return TimeControl{}, fmt.Errorf("%w: %q", ErrBadTimeControl, s)
	}
	return TimeControl{Minutes: mins, IncrementSec: inc}, nil
}

// String renders the canonical wire form.
func (tc TimeControl) String() string {
	if tc.Untimed {
		return "untimed"
	}
	return fmt.Sprintf("%d+%d", tc.Minutes, tc.IncrementSec)
}

// InitialMs returns the starting time budget for each side, in milliseconds.
func (tc TimeControl) InitialMs() int64 {
	if tc.Untimed {
		return 0
	}
	return int64(tc.Minutes) * 60_000
}

// IncrementMs returns the per-move increment in milliseconds.
func (tc TimeControl) IncrementMs() int64 {
	if tc.Untimed {
		return 0
	}
	return int64(tc.IncrementSec) * 1000
}

// Bucket classifies the control for display and matchmaking grouping only;
// it plays no part in clock math.
func (tc TimeControl) Bucket() string {
	switch {
	case tc.Untimed:
		return "untimed"
	case tc.Minutes <= 2:
		return "bullet"
	case tc.Minutes <= 5:
		return "blitz"
	default:
		return "rapid"
	}
}
