package client

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// The remote finance API is loosely typed: amounts arrive as numbers,
// numeric strings or null depending on which backend version answered,
// and dates sometimes carry a full RFC 3339 timestamp. These wrapper
// types absorb that variance at the boundary so the rest of the code
// only ever sees clean values.

// looseAmount decodes a JSON number or numeric string into a float64.
// Anything unparseable, NaN or infinite collapses to 0.
type looseAmount float64

func (a *looseAmount) UnmarshalJSON(data []byte) error {
	*a = 0

	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			return nil
		}
		s = strings.TrimSpace(unquoted)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	*a = looseAmount(f)
	return nil
}

// looseDate decodes a JSON string into a bare YYYY-MM-DD calendar date,
// truncating any time suffix.
type looseDate string

func (d *looseDate) UnmarshalJSON(data []byte) error {
	*d = ""

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if len(s) > 10 {
		s = s[:10]
	}
	*d = looseDate(s)
	return nil
}
