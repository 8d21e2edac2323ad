package assistant

import (
	"encoding/json"
	"strings"
)

// DataCategory names a slice of the library the assistant may read.
type DataCategory string

const (
	CategoryBooks           DataCategory = "books"
	CategoryReadingProgress DataCategory = "reading_progress"
)

// QueryType narrows how book rows are selected.
type QueryType string

const (
	QuerySingleBook      QueryType = "single_book"
	QueryAllBooks        QueryType = "all_books"
	QueryReadingProgress QueryType = "reading_progress"
)

// Classification is the routing decision for one question.
// When NeedsDB is false RequiredData is empty and QueryType is "".
type Classification struct {
	NeedsDB      bool           `json:"needs_db"`
	RequiredData []DataCategory `json:"required_data"`
	QueryType    QueryType      `json:"query_type,omitempty"`
}

// Requires reports whether cat is among the requested categories.
func (c Classification) Requires(cat DataCategory) bool {
	for _, have := range c.RequiredData {
		if have == cat {
			return true
		}
	}
	return false
}

// parseClassification turns raw model output into a Classification.
// Anything it cannot make sense of yields the zero value.
func parseClassification(raw string) Classification {
	object, ok := extractJSONObject(stripCodeFences(raw))
	if !ok {
		return Classification{}
	}
	var loose struct {
		NeedsDB      any `json:"needs_db"`
		RequiredData any `json:"required_data"`
		QueryType    any `json:"query_type"`
	}
	if err := json.Unmarshal([]byte(object), &loose); err != nil {
		return Classification{}
	}
	if !truthy(loose.NeedsDB) {
		return Classification{}
	}
	return Classification{
		NeedsDB:      true,
		RequiredData: categories(loose.RequiredData),
		QueryType:    queryType(loose.QueryType),
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "1":
			return true
		}
	}
	return false
}

func categories(v any) []DataCategory {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case string:
		items = []any{t}
	default:
		return nil
	}
	var out []DataCategory
	seen := make(map[DataCategory]bool, 2)
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		cat := DataCategory(strings.ToLower(strings.TrimSpace(s)))
		if cat != CategoryBooks && cat != CategoryReadingProgress {
			continue
		}
		if !seen[cat] {
			seen[cat] = true
			out = append(out, cat)
		}
	}
	return out
}

func queryType(v any) QueryType {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	switch qt := QueryType(strings.ToLower(strings.TrimSpace(s))); qt {
	case QuerySingleBook, QueryAllBooks, QueryReadingProgress:
		return qt
	}
	return ""
}

// stripCodeFences removes a surrounding markdown fence such as ```json ... ```.
func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// extractJSONObject returns the first balanced {...} in s that is valid
// JSON, so braces in a preamble do not hide the real object. Braces inside
// string literals are ignored.
func extractJSONObject(s string) (string, bool) {
	for offset := 0; offset < len(s); {
		start := strings.IndexByte(s[offset:], '{')
		if start < 0 {
			return "", false
		}
		start += offset
		if candidate, ok := balancedObject(s[start:]); ok && json.Valid([]byte(candidate)) {
			return candidate, true
		}
		offset = start + 1
	}
	return "", false
}

// balancedObject returns the prefix of s, which starts with '{', up to the
// matching closing brace.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
