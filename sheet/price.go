package sheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var priceCleaner = strings.NewReplacer("$", "", ",", "", " ", "", "MXN", "", "mxn", "")

// ParsePrice converts a price such as "1,234.50" or "$99" into cents.
func ParsePrice(raw string) (int64, error) {
	s := priceCleaner.Replace(strings.TrimSpace(raw))
	if s == "" {
		return 0, fmt.Errorf("invalid price %q", raw)
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("price %q must not be negative", raw)
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", raw)
	}
	if units > (math.MaxInt64-99)/100 {
		return 0, fmt.Errorf("price %q is too large", raw)
	}

	var cents int64
	if hasFrac {
		if len(frac) == 0 || len(frac) > 2 {
			return 0, fmt.Errorf("invalid price %q: use at most two decimals", raw)
		}
		if len(frac) == 1 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || strings.ContainsAny(frac, "+-") {
			return 0, fmt.Errorf("invalid price %q", raw)
		}
	}
	return units*100 + cents, nil
}
