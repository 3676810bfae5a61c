package validation

import (
	"strconv"
	"strings"
	"time"
)

// Messages reported when raw input cannot be converted.
const (
	MsgInvalidNumber = "must be a valid number"
	MsgInvalidDate   = "must be a valid date"
)

// Coercion selects how raw input is converted before rules run.
type Coercion int

const (
	CoerceNone Coercion = iota
	CoerceNumber
	CoerceDate
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04",
	time.DateOnly,
}

// Coerce converts raw input. Empty strings become nil so that Required rules
// report them. When conversion fails the raw value is returned together with
// the failure message.
func Coerce(value any, kind Coercion, layout string) (any, string) {
	switch kind {
	case CoerceNumber:
		return coerceNumber(value)
	case CoerceDate:
		return coerceDate(value, layout)
	default:
		return value, ""
	}
}

func coerceNumber(value any) (any, string) {
	switch v := value.(type) {
	case nil:
		return nil, ""
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, ""
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return value, MsgInvalidNumber
		}
		return f, ""
	}
	if f, ok := toNumber(value); ok {
		return f, ""
	}
	return value, MsgInvalidNumber
}

func coerceDate(value any, layout string) (any, string) {
	switch v := value.(type) {
	case nil:
		return nil, ""
	case time.Time:
		return v, ""
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, ""
		}
		layouts := dateLayouts
		if layout != "" {
			layouts = append([]string{layout}, dateLayouts...)
		}
		for _, l := range layouts {
			if t, err := time.Parse(l, trimmed); err == nil {
				return t, ""
			}
		}
		return value, MsgInvalidDate
	default:
		return value, MsgInvalidDate
	}
}
