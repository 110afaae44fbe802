// Package period handles billing period labels of the form "Maret 2026".
package period

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// MonthNames are the Indonesian month names in calendar order.
var MonthNames = []string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

var (
	ErrEmptyLabel  = errors.New("period label is empty")
	ErrDuplicate   = errors.New("period already exists")
	ErrActive      = errors.New("period is in use as an active period")
	ErrUnknownYear = errors.New("invalid year")
)

// parse splits a label into a month index and year. Unknown month names and
// unparseable years map to 0 so they sort first.
func parse(label string) (month, year int) {
	name, rest, _ := strings.Cut(label, " ")
	month = slices.Index(MonthNames, name)
	if month < 0 {
		month = 0
	}
	yearStr, _, _ := strings.Cut(rest, " ")
	year, _ = strconv.Atoi(yearStr)
	return month, year
}

// Compare orders two labels by year, then month.
func Compare(a, b string) int {
	ma, ya := parse(a)
	mb, yb := parse(b)
	if ya != yb {
		return ya - yb
	}
	return ma - mb
}

// Sort orders labels chronologically. Labels that compare equal keep their
// relative order.
func Sort(labels []string) {
	slices.SortStableFunc(labels, Compare)
}

// Union returns the distinct non-empty labels of all lists in first-seen order.
func Union(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, l := range list {
			if l == "" {
				continue
			}
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}

// Label formats t as a period label.
func Label(t time.Time) string {
	return fmt.Sprintf("%s %d", MonthNames[t.Month()-1], t.Year())
}

// Year returns the twelve labels of the given year.
func Year(year int) ([]string, error) {
	if year <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownYear, year)
	}
	out := make([]string, 0, len(MonthNames))
	for m := time.January; m <= time.December; m++ {
		out = append(out, Label(time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)))
	}
	return out, nil
}

// Add appends label to known and returns the chronologically sorted result.
func Add(known []string, label string) ([]string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, ErrEmptyLabel
	}
	if slices.Contains(known, label) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, label)
	}
	out := append(slices.Clone(known), label)
	Sort(out)
	return out, nil
}

// AddYear merges all months of year into known, sorted chronologically.
func AddYear(known []string, year int) ([]string, error) {
	months, err := Year(year)
	if err != nil {
		return nil, err
	}
	out := Union(known, months)
	Sort(out)
	return out, nil
}

// Remove drops label from known. Labels listed in active cannot be removed.
func Remove(known []string, label string, active ...string) ([]string, error) {
	if slices.Contains(active, label) {
		return nil, fmt.Errorf("%w: %s", ErrActive, label)
	}
	return slices.DeleteFunc(slices.Clone(known), func(l string) bool { return l == label }), nil
}
