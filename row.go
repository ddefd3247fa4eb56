package bolock

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Row is a persisted row as returned by a RecordFetcher, keyed by column.
// Accessors accept the representations returned by the supported drivers.
type Row map[string]any

// timeLayouts are tried in order when a timestamp column holds text.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Int64 returns an integer column. ok is false for NULL or missing columns.
func (r Row) Int64(col string) (v int64, ok bool, err error) {
	switch x := r[col].(type) {
	case nil:
		return 0, false, nil
	case int64:
		return x, true, nil
	case int:
		return int64(x), true, nil
	case int8:
		return int64(x), true, nil
	case int16:
		return int64(x), true, nil
	case int32:
		return int64(x), true, nil
	case uint8:
		return int64(x), true, nil
	case uint16:
		return int64(x), true, nil
	case uint32:
		return int64(x), true, nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, false, fmt.Errorf("bolock: column %q: %d overflows int64", col, x)
		}
		return int64(x), true, nil
	case float64:
		if x != math.Trunc(x) {
			return 0, false, fmt.Errorf("bolock: column %q: %v is not an integer", col, x)
		}
		return int64(x), true, nil
	case []byte:
		return r.parseInt(col, string(x))
	case string:
		return r.parseInt(col, x)
	default:
		return 0, false, fmt.Errorf("bolock: column %q: unexpected type %T for integer", col, x)
	}
}

func (r Row) parseInt(col, s string) (int64, bool, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("bolock: column %q: %w", col, err)
	}
	return n, true, nil
}

// Bool returns a boolean column. Integers are true when non-zero.
func (r Row) Bool(col string) (v bool, ok bool, err error) {
	switch x := r[col].(type) {
	case nil:
		return false, false, nil
	case bool:
		return x, true, nil
	case []byte:
		return r.parseBool(col, string(x))
	case string:
		return r.parseBool(col, x)
	}
	n, ok, err := r.Int64(col)
	if err != nil {
		return false, false, fmt.Errorf("bolock: column %q: unexpected type %T for boolean", col, r[col])
	}
	return n != 0, ok, nil
}

func (r Row) parseBool(col, s string) (bool, bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, false, fmt.Errorf("bolock: column %q: %w", col, err)
	}
	return b, true, nil
}

// Time returns a timestamp column. Text that matches none of the known
// layouts yields a *TimestampError.
func (r Row) Time(col string) (v time.Time, ok bool, err error) {
	var s string
	switch x := r[col].(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return x, true, nil
	case []byte:
		s = string(x)
	case string:
		s = x
	default:
		return time.Time{}, false, &TimestampError{Column: col, Value: x, Err: fmt.Errorf("unexpected type %T", x)}
	}
	s = strings.TrimSpace(s)
	var perr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, true, nil
		}
		if perr == nil {
			perr = err
		}
	}
	return time.Time{}, false, &TimestampError{Column: col, Value: s, Err: perr}
}

// Text returns a text column.
func (r Row) Text(col string) (v string, ok bool) {
	switch x := r[col].(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(x), true
	}
}

// Editor reads the editor columns of a row. Empty column names are skipped.
func (r Row) Editor(userCol, machineCol, timeCol string) (Editor, error) {
	var e Editor
	if userCol != "" {
		e.User, _ = r.Text(userCol)
	}
	if machineCol != "" {
		e.Machine, _ = r.Text(machineCol)
	}
	if timeCol != "" {
		t, _, err := r.Time(timeCol)
		if err != nil {
			return Editor{}, err
		}
		e.Time = t
	}
	return e, nil
}
