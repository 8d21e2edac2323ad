package app

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// Fields is a partial object sent by a client. Only present keys are applied.
type Fields map[string]json.RawMessage

// FieldsFromForm converts form values into Fields. Every value is a string.
func FieldsFromForm(values url.Values) Fields {
	f := make(Fields, len(values))
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		raw, _ := json.Marshal(vals[0])
		f[key] = raw
	}
	return f
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeString(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

func decodeOptString(raw json.RawMessage) (*string, bool) {
	if isNull(raw) {
		return nil, true
	}
	s, ok := decodeString(raw)
	if !ok {
		return nil, false
	}
	return &s, true
}

// decodeOptInt accepts numbers and numeric strings; null and "" clear.
func decodeOptInt(raw json.RawMessage) (*int, bool) {
	if isNull(raw) {
		return nil, true
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		v := int(f)
		return &v, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, false
	}
	return &v, true
}

func decodeFloat(raw json.RawMessage) (float64, bool) {
	if isNull(raw) {
		return 0, true
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}
