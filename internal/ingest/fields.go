package ingest

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lox/aurorawatch/internal/models"
)

// Field aliases, most preferred first. Upstream products rename columns
// between spacecraft and product versions.
var (
	timeFields    = []string{"time_tag", "time", "timestamp", "date"}
	bxFields      = []string{"bx_gsm", "gsm_bx", "bx", "Bx", "bx (nT)"}
	byFields      = []string{"by_gsm", "gsm_by", "by", "By", "by (nT)"}
	bzFields      = []string{"bz_gsm", "gsm_bz", "bz", "Bz", "bz (nT)"}
	btFields      = []string{"bt", "Btotal", "btotal", "Bt", "b", "bt (nT)"}
	speedFields   = []string{"speed", "flow_speed", "V", "speed (km/s)"}
	densityFields = []string{"density", "proton_density", "Np", "density (1/cm^3)"}
)

// record is one row of a provider payload keyed by field name.
type record map[string]gjson.Result

// objectRecord exposes a JSON object as a record.
func objectRecord(obj gjson.Result) record {
	r := make(record)
	obj.ForEach(func(k, v gjson.Result) bool {
		r[strings.TrimSpace(k.String())] = v
		return true
	})
	return r
}

// matrixRecords turns a header-row matrix ([[h1, h2], [v1, v2], ...]) into records.
func matrixRecords(body []byte) []record {
	rows := gjson.ParseBytes(body).Array()
	if len(rows) < 2 {
		return nil
	}
	header := rows[0].Array()
	out := make([]record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cells := row.Array()
		r := make(record, len(header))
		for i, h := range header {
			if i < len(cells) {
				r[strings.TrimSpace(h.String())] = cells[i]
			}
		}
		out = append(out, r)
	}
	return out
}

// firstString returns the first alias present with a non-empty value.
func (r record) firstString(keys []string) string {
	for _, k := range keys {
		if v, ok := r[k]; ok && v.Type != gjson.Null {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// firstNumber returns the first alias that holds a finite number. Numeric
// strings are accepted since several products quote every cell.
func (r record) firstNumber(keys []string) *float64 {
	for _, k := range keys {
		v, ok := r[k]
		if !ok {
			continue
		}
		if f := number(v); f != nil {
			return f
		}
	}
	return nil
}

// number converts a JSON value to a finite float, or nil.
func number(v gjson.Result) *float64 {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return models.Ptr(f)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z",
	"2006-01-02T15:04",
}

// parseTime reads the timestamp formats seen across providers. Values
// without a zone are UTC.
func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// floorHour truncates t to the start of its UTC hour.
func floorHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}
