package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Cycles is the Cycles_Completed column. It keeps three states apart:
// absent (empty cell), zero, and a positive count.
type Cycles struct {
	n   int
	set bool
}

// NoCycles is the absent value.
func NoCycles() Cycles { return Cycles{} }

// CyclesOf records an explicit count, including zero.
func CyclesOf(n int) Cycles { return Cycles{n: n, set: true} }

// Value returns the count and whether one was recorded.
func (c Cycles) Value() (int, bool) { return c.n, c.set }

// IsSet reports whether a count was recorded.
func (c Cycles) IsSet() bool { return c.set }

// Equal reports whether both values are in the same state with the same count.
func (c Cycles) Equal(o Cycles) bool { return c == o }

// String renders the stored cell text: empty when absent.
func (c Cycles) String() string {
	if !c.set {
		return ""
	}
	return strconv.Itoa(c.n)
}

// ParseCycles reads a stored cell. Spreadsheets sometimes hand integers
// back as "50000.0", which is accepted when the fraction is zero.
func ParseCycles(s string) (Cycles, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoCycles(), nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return CyclesOf(n), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return Cycles{}, fmt.Errorf("cycles completed %q is not a whole number", s)
	}
	return CyclesOf(int(f)), nil
}

// MarshalJSON encodes an absent count as null and any other as a number.
func (c Cycles) MarshalJSON() ([]byte, error) {
	if !c.set {
		return []byte("null"), nil
	}
	return json.Marshal(c.n)
}

// UnmarshalJSON accepts null, a number, or a numeric string such as "25000".
func (c *Cycles) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*c = NoCycles()
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = str
	}
	parsed, err := ParseCycles(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
