package scraper

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FirstYear is the earliest year accepted by the year filter
const FirstYear = 2010

// ParseYear parses the --year argument. "" and "all" mean no filter (0).
func ParseYear(s string, now time.Time) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return 0, nil
	}

	year, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid year %q: expected a number or \"all\"", s)
	}
	if year < FirstYear || year > now.Year() {
		return 0, fmt.Errorf("year %d out of range %d-%d", year, FirstYear, now.Year())
	}
	return year, nil
}
