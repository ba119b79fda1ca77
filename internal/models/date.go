package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// NullDate is a nullable calendar date serialised as YYYY-MM-DD.
type NullDate struct {
	Time  time.Time
	Valid bool
}

// NewDate wraps t truncated to its calendar day.
func NewDate(t time.Time) NullDate {
	y, m, d := t.Date()
	return NullDate{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}

// ParseDate accepts a strict YYYY-MM-DD calendar date.
func ParseDate(raw string) (NullDate, error) {
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return NullDate{}, err
	}
	return NewDate(t), nil
}

// String renders the date or an empty string.
func (d NullDate) String() string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format(DateLayout)
}

// Scan implements sql.Scanner.
func (d *NullDate) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = NullDate{}
	case time.Time:
		*d = NewDate(v)
	case string:
		return d.scanText(v)
	case []byte:
		return d.scanText(string(v))
	default:
		return fmt.Errorf("scan date: unsupported type %T", src)
	}
	return nil
}

func (d *NullDate) scanText(raw string) error {
	if len(raw) > len(DateLayout) {
		raw = raw[:len(DateLayout)]
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return fmt.Errorf("scan date: %w", err)
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer.
func (d NullDate) Value() (driver.Value, error) {
	if !d.Valid {
		return nil, nil
	}
	return d.Time, nil
}

// MarshalJSON renders null or "YYYY-MM-DD".
func (d NullDate) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts null, "" or "YYYY-MM-DD".
func (d *NullDate) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = NullDate{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*d = NullDate{}
		return nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
