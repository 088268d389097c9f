package types

import (
	"bytes"
	"fmt"
	"strconv"
)

// Count is an optional non-negative tally decoded from a JSON number or a
// numeric string. null and "" (an untouched form input) leave it unset; an
// explicit 0 is a real answer.
type Count struct {
	Value uint64
	Set   bool
}

// NewCount returns a set Count.
func NewCount(n uint64) Count { return Count{Value: n, Set: true} }

func (c *Count) UnmarshalJSON(data []byte) error {
	*c = Count{}
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		unquoted, err := strconv.Unquote(string(raw))
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		raw = bytes.TrimSpace([]byte(unquoted))
		if len(raw) == 0 {
			return nil
		}
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("count: %q is not a whole number", raw)
	}
	*c = NewCount(n)
	return nil
}

func (c Count) MarshalJSON() ([]byte, error) {
	if !c.Set {
		return []byte("null"), nil
	}
	return strconv.AppendUint(nil, c.Value, 10), nil
}

// Ptr returns the value, or nil when unset.
func (c Count) Ptr() *uint64 {
	if !c.Set {
		return nil
	}
	v := c.Value
	return &v
}
