package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Row is one loosely typed backend record. Numbers keep their json.Number
// form so ids and money never pass through float64.
type Row map[string]any

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DecodeRows decodes an envelope's data into a list. A bare object becomes a
// one-element list; null or empty input becomes an empty list.
func DecodeRows(raw json.RawMessage) ([]Row, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Row{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	switch trimmed[0] {
	case '[':
		var rows []Row
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("decode rows: %w", err)
		}
		out := rows[:0]
		for _, r := range rows {
			if r != nil {
				out = append(out, r)
			}
		}
		return out, nil
	case '{':
		var row Row
		if err := dec.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		return []Row{row}, nil
	default:
		return nil, fmt.Errorf("decode rows: unexpected json %q", string(trimmed[:1]))
	}
}

// ErrNoRecord is returned by DecodeRow when the data holds no record
var ErrNoRecord = errors.New("no record in response")

// DecodeRow decodes an envelope's data into a single record, taking the first
// element when the backend wraps it in an array.
func DecodeRow(raw json.RawMessage) (Row, error) {
	rows, err := DecodeRows(raw)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRecord
	}
	return rows[0], nil
}

// CanonicalID renders an id the same way whether it arrived as 7, 7.0 or "7".
func CanonicalID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return canonicalNumeric(strings.TrimSpace(id))
	case json.Number:
		return canonicalNumeric(id.String())
	case float32, float64:
		return canonicalNumeric(cast.ToString(id))
	default:
		s, err := cast.ToStringE(id)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
}

// canonicalNumeric strips a zero fraction ("7.0" -> "7") and leaves anything else alone.
func canonicalNumeric(s string) string {
	if s == "" {
		return s
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return s
	}
	if strings.ContainsAny(s, ".eE") {
		return d.String()
	}
	return s
}

// Lookup returns the first present, non-null, non-blank value among keys.
func (r Row) Lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// Has reports whether key is present at all, even when null
func (r Row) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// String returns the first non-blank value among keys as a trimmed string
func (r Row) String(keys ...string) string {
	v, ok := r.Lookup(keys...)
	if !ok {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// ID returns the first non-blank value among keys in canonical id form
func (r Row) ID(keys ...string) string {
	v, ok := r.Lookup(keys...)
	if !ok {
		return ""
	}
	return CanonicalID(v)
}

// Decimal returns the first value among keys that parses as a number
func (r Row) Decimal(keys ...string) (decimal.Decimal, bool) {
	for _, k := range keys {
		v, ok := r.Lookup(k)
		if !ok {
			continue
		}
		if d, err := ToDecimal(v); err == nil {
			return d, true
		}
	}
	return decimal.Zero, false
}

// Bool interprets boolean-like flags: true/false, 1/0, "1"/"0", "true"/"false", "Y"/"N"
func (r Row) Bool(keys ...string) bool {
	v, ok := r.Lookup(keys...)
	if !ok {
		return false
	}
	if s, isString := v.(string); isString {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
	}
	if n, isNumber := v.(json.Number); isNumber {
		d, err := decimal.NewFromString(n.String())
		return err == nil && !d.IsZero()
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false
	}
	return b
}

// Time parses the first value among keys using the backend's date layouts
func (r Row) Time(keys ...string) *time.Time {
	s := r.String(keys...)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// ToDecimal converts a loosely typed numeric value without going through float64
// when the source is textual.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(n))
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	default:
		i, err := cast.ToInt64E(v)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromInt(i), nil
	}
}
