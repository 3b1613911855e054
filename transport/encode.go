package transport

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// isoLayout is the wire format for date and time values: second precision,
// no timezone suffix. Date-only values get a midnight time component.
const isoLayout = "2006-01-02T15:04:05"

// Date is a calendar date without a time component. It encodes as an
// ISO-8601 timestamp at midnight.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the Date on which t falls.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}

// Set is an ordered set of values. It encodes as a JSON array in element
// order; deduplication is the caller's concern.
type Set []any

// EncodeBody converts a value into its JSON wire representation.
//
// JSON-native values (nil, bool, string, integers, floats, []any,
// map[string]any) pass through unchanged. time.Time encodes as an ISO-8601
// string with second precision and no timezone suffix; Date encodes the
// same way at midnight. decimal.Decimal encodes losslessly as a JSON
// number. Set encodes as an array. json.RawMessage is emitted verbatim.
// Anything else is an EncodingError: silent stringification would mean
// silent data loss in the index.
func EncodeBody(v any) ([]byte, error) {
	wire, err := toWire(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wire)
}

func toWire(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		json.Number, json.RawMessage:
		return x, nil
	case time.Time:
		return x.Format(isoLayout), nil
	case Date:
		return x.String() + "T00:00:00", nil
	case decimal.Decimal:
		// Raw message keeps the full precision; a float round trip would not.
		return json.RawMessage(x.String()), nil
	case Set:
		return wireSlice(x)
	case []any:
		return wireSlice(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, elem := range x {
			w, err := toWire(elem)
			if err != nil {
				return nil, err
			}
			out[k] = w
		}
		return out, nil
	default:
		return nil, NewEncodingError(v)
	}
}

func wireSlice(in []any) (any, error) {
	out := make([]any, len(in))
	for i, elem := range in {
		w, err := toWire(elem)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

// EncodeScalar converts a value into its query-string text representation.
//
// Booleans become the literals "true"/"false", strings pass through,
// integers and floats become decimal text, slices become their elements
// comma-joined, and date values follow the same ISO rule as EncodeBody.
// Anything else is an EncodingError naming the offending value.
func EncodeScalar(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		if x {
			return "true", nil
		}
		return "false", nil
	case int:
		return strconv.Itoa(x), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		// Shortest representation that round-trips; fixed precision loses it.
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case decimal.Decimal:
		return x.String(), nil
	case time.Time:
		return x.Format(isoLayout), nil
	case Date:
		return x.String() + "T00:00:00", nil
	case []string:
		return strings.Join(x, ","), nil
	case []any:
		parts := make([]string, len(x))
		for i, elem := range x {
			s, err := EncodeScalar(elem)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ","), nil
	case Set:
		return EncodeScalar([]any(x))
	default:
		return "", NewEncodingError(v)
	}
}
