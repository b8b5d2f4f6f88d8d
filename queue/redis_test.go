package queue

import (
	"testing"

	"github.com/use-agent/prospect/models"
)

func TestKeyBuilders(t *testing.T) {
	if got := jobKey("abc"); got != "scrape:job:abc" {
		t.Errorf("jobKey = %q", got)
	}
	if got := outKey("abc"); got != "scrape:out:abc" {
		t.Errorf("outKey = %q", got)
	}
}

func TestDecodeOutcome(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantState State
	}{
		{
			"completed with document",
			`{"state":"completed","document":{"url":"https://go.dev","content":"body"}}`,
			StateCompleted,
		},
		{"timed out", `{"state":"timed_out"}`, StateTimedOut},
		{"failed", `{"state":"failed","error":"nav error"}`, StateFailed},
		{"unknown state", `{"state":"half-done"}`, StateFailed},
		{"garbage", `{{{`, StateFailed},
		{"empty", ``, StateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := decodeOutcome([]byte(tt.payload))
			if out.State != tt.wantState {
				t.Errorf("state = %q, want %q", out.State, tt.wantState)
			}
		})
	}
}

func TestDecodeOutcome_DocumentRoundTrip(t *testing.T) {
	out := decodeOutcome([]byte(`{"state":"completed","document":{"url":"https://go.dev","title":"Go","content":"hello","metadata":{"source_url":"https://go.dev","status_code":200}}}`))
	if out.State != StateCompleted {
		t.Fatalf("state = %q", out.State)
	}
	want := models.Document{
		URL: "https://go.dev", Title: "Go", Content: "hello",
		Metadata: models.DocumentMetadata{SourceURL: "https://go.dev", StatusCode: 200},
	}
	if out.Document == nil || *out.Document != want {
		t.Errorf("document = %+v, want %+v", out.Document, want)
	}
}
