package workers

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExtractTags(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{
			name: "frequency ordering",
			text: "kubernetes kubernetes kubernetes deploy deploy cluster",
			max:  5,
			want: []string{"kubernetes", "deploy", "cluster"},
		},
		{
			name: "ties break alphabetically",
			text: "zebra apple zebra apple",
			max:  5,
			want: []string{"apple", "zebra"},
		},
		{
			name: "stopwords and short words dropped",
			text: "the report and the report is at hq",
			max:  5,
			want: []string{"report"},
		},
		{
			name: "case folded and punctuation split",
			text: "Invoice, INVOICE! invoice-2024",
			max:  5,
			want: []string{"invoice", "2024"},
		},
		{
			name: "max caps result",
			text: "alpha alpha alpha beta beta gamma delta",
			max:  2,
			want: []string{"alpha", "beta"},
		},
		{
			name: "empty text",
			text: "",
			max:  5,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractTags(tt.text, tt.max)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("extractTags(%q, %d) = %v, want %v", tt.text, tt.max, got, tt.want)
			}
		})
	}
}

func TestExtractTagsDefaultMax(t *testing.T) {
	got := extractTags("one two2 three four five sixes seven eight nine", 0)
	if len(got) != 5 {
		t.Errorf("expected default max of 5 tags, got %d: %v", len(got), got)
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		maxLines int
		want     string
	}{
		{
			name:     "first n sentences",
			content:  "First. Second. Third. Fourth.",
			maxLines: 2,
			want:     "First. Second.",
		},
		{
			name:     "newlines terminate sentences",
			content:  "Line one\nLine two\nLine three",
			maxLines: 2,
			want:     "Line one Line two",
		},
		{
			name:     "question and exclamation marks",
			content:  "Really? Yes! Done.",
			maxLines: 3,
			want:     "Really? Yes! Done.",
		},
		{
			name:     "trailing fragment without terminator",
			content:  "Complete sentence. trailing fragment",
			maxLines: 3,
			want:     "Complete sentence. trailing fragment",
		},
		{
			name:     "empty content",
			content:  "",
			maxLines: 3,
			want:     "",
		},
		{
			name:     "zero maxLines falls back to three",
			content:  "A one. B two. C three. D four.",
			maxLines: 0,
			want:     "A one. B two. C three.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := summarize(tt.content, tt.maxLines); got != tt.want {
				t.Errorf("summarize(%q, %d) = %q, want %q", tt.content, tt.maxLines, got, tt.want)
			}
		})
	}
}

func TestSummarizeCapsLength(t *testing.T) {
	content := strings.Repeat("word ", 400) + "."
	got := summarize(content, 1)
	if len(got) > 1000 {
		t.Errorf("summary length %d exceeds cap", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected truncated summary to end with ellipsis, got %q", got[len(got)-10:])
	}
}

func TestSummarizeTruncatesOnRuneBoundary(t *testing.T) {
	// Multi-byte runes positioned across the cut must not be split.
	content := strings.Repeat("héllö wörld ", 120) + "."
	got := summarize(content, 1)
	if len(got) > 1000 {
		t.Errorf("summary length %d exceeds cap", len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncated summary is not valid UTF-8: %q", got[990:])
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected truncated summary to end with ellipsis")
	}
}
