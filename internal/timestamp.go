package internal

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// millisThreshold separates epoch milliseconds from epoch seconds.
const millisThreshold = 1e12

// Timestamp keeps a source timestamp exactly as it was stored (epoch
// seconds, epoch milliseconds or an ISO-8601 string). Sorting and display
// are derived from it on demand.
type Timestamp struct {
	raw interface{}
}

// NewTimestamp wraps a raw JSON value. It returns nil for values that carry
// no time information (nil, empty strings, booleans, objects).
func NewTimestamp(v interface{}) *Timestamp {
	switch x := v.(type) {
	case nil:
		return nil
	case *Timestamp:
		return x
	case string:
		if strings.TrimSpace(x) == "" {
			return nil
		}
		return &Timestamp{raw: x}
	case float64:
		return &Timestamp{raw: x}
	case float32:
		return &Timestamp{raw: float64(x)}
	case int:
		return &Timestamp{raw: float64(x)}
	case int64:
		return &Timestamp{raw: float64(x)}
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return &Timestamp{raw: f}
		}
		return nil
	default:
		return nil
	}
}

// Raw returns the stored value.
func (t *Timestamp) Raw() interface{} {
	if t == nil {
		return nil
	}
	return t.raw
}

// Unix returns the timestamp as epoch seconds.
func (t *Timestamp) Unix() (float64, bool) {
	if t == nil {
		return 0, false
	}
	return SortTime(t.raw)
}

// String returns the display form.
func (t *Timestamp) String() string {
	if t == nil {
		return "?"
	}
	return FormatTime(t.raw)
}

func (t *Timestamp) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}
	return json.Marshal(t.raw)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	t.raw = v
	return nil
}

func (t *Timestamp) MarshalYAML() (interface{}, error) {
	if t == nil {
		return nil, nil
	}
	return t.raw, nil
}

// isoLayouts are tried in order. The bool marks layouts that carry a zone.
var isoLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04:05.999999999Z0700", true},
	{"2006-01-02 15:04:05.999999999Z07:00", true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02 15:04:05.999999999", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02", false},
}

func parseISO(s string) (time.Time, bool, bool) {
	for _, l := range isoLayouts {
		if l.zoned {
			if t, err := time.Parse(l.layout, s); err == nil {
				return t, true, true
			}
			continue
		}
		if t, err := time.ParseInLocation(l.layout, s, time.Local); err == nil {
			return t, false, true
		}
	}
	return time.Time{}, false, false
}

func numberValue(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

// SortTime converts a raw timestamp to epoch seconds. Numbers above 1e12 are
// epoch milliseconds; strings are ISO-8601 with an optional trailing Z.
func SortTime(v interface{}) (float64, bool) {
	if t, ok := v.(*Timestamp); ok {
		return t.Unix()
	}
	if f, ok := numberValue(v); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		if f > millisThreshold {
			return f / 1000.0, true
		}
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	t, _, ok := parseISO(s)
	if !ok {
		return 0, false
	}
	return float64(t.UnixNano()) / 1e9, true
}

// FormatTime renders a raw timestamp at seconds precision. Zoned values at
// UTC render with a Z suffix; unparseable strings are returned unchanged and
// missing values render as "?".
func FormatTime(v interface{}) string {
	if t, ok := v.(*Timestamp); ok {
		return t.String()
	}
	if v == nil {
		return "?"
	}
	if f, ok := numberValue(v); ok {
		secs := f
		if secs > millisThreshold {
			secs = secs / 1000.0
		}
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		sec, frac := math.Modf(secs)
		return time.Unix(int64(sec), int64(frac*1e9)).Local().Format("2006-01-02T15:04:05")
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprint(v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "?"
	}
	t, zoned, ok := parseISO(s)
	if !ok {
		return s
	}
	t = t.Truncate(time.Second)
	if !zoned {
		return t.Format("2006-01-02T15:04:05")
	}
	if _, offset := t.Zone(); offset == 0 {
		return t.UTC().Format("2006-01-02T15:04:05") + "Z"
	}
	return t.Format("2006-01-02T15:04:05-07:00")
}

// MillisToTimestamp converts epoch milliseconds stored under a JSON number
// into a Timestamp, ignoring zero and negative values.
func MillisToTimestamp(v interface{}) *Timestamp {
	f, ok := numberValue(v)
	if !ok || f <= 0 {
		return nil
	}
	return &Timestamp{raw: f}
}
