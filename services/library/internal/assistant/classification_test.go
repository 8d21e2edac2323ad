package assistant

import (
	"reflect"
	"testing"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Classification
	}{
		{
			name: "fenced",
			raw:  "```json\n{\"needs_db\": true, \"required_data\": [\"books\"], \"query_type\": \"all_books\"}\n```",
			want: Classification{NeedsDB: true, RequiredData: []DataCategory{CategoryBooks}, QueryType: QueryAllBooks},
		},
		{
			name: "bare object",
			raw:  `{"needs_db": true, "required_data": ["reading_progress"], "query_type": "reading_progress"}`,
			want: Classification{NeedsDB: true, RequiredData: []DataCategory{CategoryReadingProgress}, QueryType: QueryReadingProgress},
		},
		{
			name: "preamble and trailing text",
			raw:  "Sure! Here is the analysis: {\"needs_db\": true, \"required_data\": [\"books\"], \"query_type\": \"single_book\"} Hope it helps.",
			want: Classification{NeedsDB: true, RequiredData: []DataCategory{CategoryBooks}, QueryType: QuerySingleBook},
		},
		{
			name: "braces in preamble before fenced object",
			raw:  "Decision for {user}:\n```json\n{\"needs_db\": true, \"required_data\": [\"books\"], \"query_type\": \"all_books\"}\n```",
			want: Classification{NeedsDB: true, RequiredData: []DataCategory{CategoryBooks}, QueryType: QueryAllBooks},
		},
		{
			name: "braces inside strings",
			raw:  `{"note": "a } tricky \" { value", "needs_db": true, "required_data": ["books"], "query_type": "all_books"}`,
			want: Classification{NeedsDB: true, RequiredData: []DataCategory{CategoryBooks}, QueryType: QueryAllBooks},
		},
		{
			name: "unknown categories and query type dropped",
			raw:  `{"needs_db": "true", "required_data": ["books", "authors", "books", "READING_PROGRESS"], "query_type": "everything"}`,
			want: Classification{NeedsDB: true, RequiredData: []DataCategory{CategoryBooks, CategoryReadingProgress}},
		},
		{
			name: "needs_db false clears the rest",
			raw:  `{"needs_db": false, "required_data": ["books"], "query_type": "all_books"}`,
			want: Classification{},
		},
		{
			name: "not json",
			raw:  "I cannot help with that.",
			want: Classification{},
		},
		{
			name: "unbalanced",
			raw:  `{"needs_db": true, "required_data": ["books"]`,
			want: Classification{},
		},
		{
			name: "invalid json inside braces",
			raw:  `{needs_db: yes}`,
			want: Classification{},
		},
		{
			name: "empty",
			raw:  "",
			want: Classification{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := parseClassification(tc.raw)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("parseClassification() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: `x {"a": {"b": 1}} y {"c": 2}`, want: `{"a": {"b": 1}}`, wantOK: true},
		{in: `{"a": "\\"}`, want: `{"a": "\\"}`, wantOK: true},
		{in: `{"a": "}"`, wantOK: false},
		{in: `see {note} then {"a": 1}`, want: `{"a": 1}`, wantOK: true},
		{in: `{oops} {"a": {"b": "}"}}`, want: `{"a": {"b": "}"}}`, wantOK: true},
		{in: `no object`, wantOK: false},
	}
	for _, tc := range tests {
		got, ok := extractJSONObject(tc.in)
		if ok != tc.wantOK || got != tc.want {
			t.Fatalf("extractJSONObject(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestStripCodeFences(t *testing.T) {
	if got := stripCodeFences("```json\n{\"a\":1}\n```"); got != `{"a":1}` {
		t.Fatalf("stripCodeFences = %q", got)
	}
	if got := stripCodeFences("  {\"a\":1}  "); got != `{"a":1}` {
		t.Fatalf("stripCodeFences = %q", got)
	}
}
