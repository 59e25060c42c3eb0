package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// returns slice removing duplicate elements
func UniqueSlice[T comparable](slice []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, elm := range slice {
		if _, ok := inResult[elm]; !ok {
			inResult[elm] = true
			result = append(result, elm)
		}
	}
	return result
}

// ConvertToDate returns the calendar date of t in loc, at midnight UTC.
// Dates are stored and compared as UTC midnights so that equality between a
// goods-issue date and a confirmed date does not depend on the server zone.
func ConvertToDate(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateOnly truncates a stored date to its calendar day without zone shifting.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ParseDateLayouts tries each layout in order and returns a UTC calendar date.
func ParseDateLayouts(value string, layouts ...string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty date string")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return DateOnly(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", value)
}

// ParseDecimal converts a string to a decimal.Decimal value.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}
	return decimal.NewFromString(value)
}

// PadItemNo renders a line item number the way the ERP does (6 digits, zero-padded).
func PadItemNo(itemNo string) string {
	itemNo = TrimItemNo(itemNo)
	if len(itemNo) >= 6 {
		return itemNo
	}
	return strings.Repeat("0", 6-len(itemNo)) + itemNo
}

// TrimItemNo strips the ERP zero padding; "000010" -> "10".
func TrimItemNo(itemNo string) string {
	itemNo = strings.TrimSpace(itemNo)
	trimmed := strings.TrimLeft(itemNo, "0")
	if trimmed == "" && itemNo != "" {
		return "0"
	}
	return trimmed
}
