package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nao1215/sitesnap/internal/model"
)

func TestConsoleObserver(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		verbose bool
		message string
		want    string
	}{
		{name: "fetch hidden", message: "Fetching: https://example.com/a"},
		{name: "fetch shown when verbose", verbose: true, message: "Fetching: https://example.com/a", want: "https://example.com/a"},
		{name: "queued url hidden", message: "Queued: https://example.com/b"},
		{name: "chunk progress shown", message: "Queued: 4, Processed: 10", want: "processed 10"},
		{name: "failure", message: "Failed: https://example.com/c: timeout", want: "✗"},
		{name: "nothing to stop", message: "Nothing to stop", want: "⚠"},
		{name: "completed", message: "Completed: 3 pages, 1 archives", want: "✓"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			NewConsoleObserver(&buf, tt.verbose).Observe(model.ProgressEvent{
				Message:   tt.message,
				Queued:    4,
				Processed: 10,
			})

			if tt.want == "" {
				if buf.Len() != 0 {
					t.Errorf("printed %q, want nothing", buf.String())
				}
				return
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q lacks %q", buf.String(), tt.want)
			}
		})
	}
}
