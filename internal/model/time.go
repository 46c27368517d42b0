package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// storageFormat is the ISO-8601 UTC layout persisted columns use.
const storageFormat = time.RFC3339Nano

// Time wraps time.Time so it round-trips through SQLite as an ISO-8601 string
// regardless of whether the driver hands back a time.Time or a string.
type Time struct {
	time.Time
}

// NewTime normalizes t to UTC.
func NewTime(t time.Time) Time {
	return Time{Time: t.UTC()}
}

// NewTimePtr returns a pointer to a normalized Time.
func NewTimePtr(t time.Time) *Time {
	nt := NewTime(t)
	return &nt
}

func (t *Time) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case time.Time:
		*t = NewTime(v)
	case string:
		parsed, err := time.Parse(storageFormat, v)
		if err != nil {
			return fmt.Errorf("error parsing stored time %q: %w", v, err)
		}
		*t = Time{Time: parsed.UTC()}
	default:
		return fmt.Errorf("unsupported type for time column: %[1]T (%[1]v)", src)
	}
	return nil
}

func (t Time) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.Format(storageFormat), nil
}
