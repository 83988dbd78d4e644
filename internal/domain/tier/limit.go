package tier

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const unlimitedText = "unlimited"

// Limit is a non-negative count or the Unlimited sentinel.
// The zero value is a finite limit of 0.
type Limit struct {
	n         int
	unlimited bool
}

// Unlimited is the sentinel for resources without a ceiling.
var Unlimited = Limit{unlimited: true}

// Finite returns a limit of n. Negative values clamp to 0.
func Finite(n int) Limit {
	if n < 0 {
		n = 0
	}
	return Limit{n: n}
}

// FromInt maps the config convention (-1 = unlimited) to a Limit.
func FromInt(n int) Limit {
	if n < 0 {
		return Unlimited
	}
	return Finite(n)
}

// IsUnlimited reports whether l is the Unlimited sentinel.
func (l Limit) IsUnlimited() bool { return l.unlimited }

// Value returns the finite count. It is 0 for Unlimited, check IsUnlimited first.
func (l Limit) Value() int {
	if l.unlimited {
		return 0
	}
	return l.n
}

// Int returns the count, or -1 for Unlimited.
func (l Limit) Int() int {
	if l.unlimited {
		return -1
	}
	return l.n
}

// Allows reports whether used+n stays within the limit.
func (l Limit) Allows(used, n int) bool {
	if l.unlimited {
		return true
	}
	// used <= l.n - n avoids overflow on used+n
	return n <= l.n && used <= l.n-n
}

// Sub returns max(0, l - used). Unlimited stays Unlimited.
func (l Limit) Sub(used int) Limit {
	if l.unlimited {
		return l
	}
	return Finite(l.n - used)
}

func (l Limit) String() string {
	if l.unlimited {
		return unlimitedText
	}
	return strconv.Itoa(l.n)
}

// MarshalJSON encodes Unlimited as "unlimited" and finite limits as numbers.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unlimited {
		return json.Marshal(unlimitedText)
	}
	return json.Marshal(l.n)
}

// UnmarshalJSON accepts a number (negative = unlimited) or "unlimited".
func (l *Limit) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != unlimitedText {
			return fmt.Errorf("tier: invalid limit %q", s)
		}
		*l = Unlimited
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("tier: invalid limit: %w", err)
	}
	*l = FromInt(n)
	return nil
}
