package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/dosely/internal/medications/domain"
)

// ParseAt reads a moment given on the command line. It accepts RFC 3339,
// "YYYY-MM-DD HH:MM" and a bare "HH:MM" meaning today. Empty returns now.
func ParseAt(s string, now time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, loc); err == nil {
		return t, nil
	}
	if tod, err := domain.ParseTimeOfDay(s); err == nil {
		return domain.DateOf(now.In(loc)).At(tod, loc), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: use HH:MM, \"YYYY-MM-DD HH:MM\" or RFC 3339", s)
}

// SplitList splits a comma-separated flag value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
