package reqlog

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// Level is the severity of a request record.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// TimestampLayout is the ISO-8601 UTC layout with millisecond precision used
// for the timestamp field.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Record is one logged request. It is built once by the Assembler and not
// modified afterwards.
type Record struct {
	Timestamp       time.Time
	Level           Level
	Method          string
	Path            string
	Status          int
	DurationMs      float64
	UserEmail       string
	UserID          string
	Referer         string
	Error           string
	ErrorID         string
	ErrorStackTrace string
	// Params holds query parameters extracted from the request URL. Keys that
	// collide with a fixed field are dropped by the Assembler.
	Params map[string]string
}

// reserved lists the fixed JSON keys in serialization order.
var reserved = map[string]bool{
	"timestamp": true, "level": true, "method": true, "path": true,
	"status": true, "durationMs": true, "userEmail": true, "userId": true,
	"referer": true, "error": true, "errorId": true, "errorStackTrace": true,
}

// MarshalJSON writes the fixed fields in a stable order, omits empty optional
// fields and appends Params sorted by key.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	field := func(key string, v any) error {
		val, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}
	optional := func(key, v string) error {
		if v == "" {
			return nil
		}
		return field(key, v)
	}

	steps := []func() error{
		func() error { return field("timestamp", r.Timestamp.UTC().Format(TimestampLayout)) },
		func() error { return field("level", r.Level) },
		func() error { return field("method", r.Method) },
		func() error { return field("path", r.Path) },
		func() error { return field("status", r.Status) },
		func() error { return field("durationMs", r.DurationMs) },
		func() error { return optional("userEmail", r.UserEmail) },
		func() error { return optional("userId", r.UserID) },
		func() error { return optional("referer", r.Referer) },
		func() error { return optional("error", r.Error) },
		func() error { return optional("errorId", r.ErrorID) },
		func() error { return optional("errorStackTrace", r.ErrorStackTrace) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		if !reserved[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := field(k, r.Params[k]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
