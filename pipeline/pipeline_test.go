package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/prospect/billing"
	"github.com/use-agent/prospect/blocklist"
	"github.com/use-agent/prospect/models"
	"github.com/use-agent/prospect/provider"
	"github.com/use-agent/prospect/queue"
)

// fakeResolver returns a fixed result list and records the requested limit.
type fakeResolver struct {
	results        []models.SerpResult
	requestedLimit int
}

func (f *fakeResolver) Search(_ context.Context, q provider.Query) []models.SerpResult {
	f.requestedLimit = q.Limit
	if len(f.results) > q.Limit {
		return f.results[:q.Limit]
	}
	return f.results
}

func (f *fakeResolver) ProviderName() string { return "fake" }

// fakeQueue is an in-memory queue.Client. Outcomes and completion
// delays are keyed by task URL.
type fakeQueue struct {
	mu        sync.Mutex
	tasks     map[string]queue.Task // by id
	admitted  []queue.Task
	released  []string
	outcomes  map[string]queue.Outcome // by url
	delays    map[string]time.Duration // by url
	admitErrs map[string]error         // by url
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		tasks:     make(map[string]queue.Task),
		outcomes:  make(map[string]queue.Outcome),
		delays:    make(map[string]time.Duration),
		admitErrs: make(map[string]error),
	}
}

func (f *fakeQueue) Admit(_ context.Context, task queue.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.admitErrs[task.URL]; ok {
		return err
	}
	f.tasks[task.ID] = task
	f.admitted = append(f.admitted, task)
	return nil
}

func (f *fakeQueue) Await(_ context.Context, id string, timeout time.Duration) queue.Outcome {
	f.mu.Lock()
	task, ok := f.tasks[id]
	f.mu.Unlock()
	if !ok {
		return queue.Outcome{State: queue.StateFailed, Err: "unknown task"}
	}
	if d := f.delays[task.URL]; d > 0 {
		time.Sleep(d)
	}
	if out, ok := f.outcomes[task.URL]; ok {
		return out
	}
	return queue.Outcome{State: queue.StateTimedOut}
}

func (f *fakeQueue) Release(_ context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, id)
}

func completed(url, content string) queue.Outcome {
	return queue.Outcome{
		State: queue.StateCompleted,
		Document: &models.Document{
			URL:     url,
			Content: content,
			Metadata: models.DocumentMetadata{
				SourceURL:  url,
				StatusCode: 200,
			},
		},
	}
}

func serpN(n int) []models.SerpResult {
	results := make([]models.SerpResult, n)
	for i := range results {
		results[i] = models.SerpResult{
			URL:         fmt.Sprintf("https://example.com/%d", i),
			Title:       fmt.Sprintf("Result %d", i),
			Description: fmt.Sprintf("Description %d", i),
		}
	}
	return results
}

func newPipeline(r Resolver, q queue.Client, overrides map[string]int) *Pipeline {
	return New(r, q, blocklist.New(nil), billing.NewCharger("", ""), overrides)
}

var tenant = models.Tenant{ID: "tenant-1", Tier: "standard"}

func searchReq(limit int, formats ...string) *models.SearchRequest {
	req := &models.SearchRequest{Query: "rust ownership", Limit: limit, Formats: formats}
	req.Defaults()
	req.ScrapeTimeout = 1 // keep tests fast
	return req
}

func TestOverFetch(t *testing.T) {
	tests := []struct{ limit, want int }{
		{1, 2}, {2, 3}, {3, 5}, {4, 6}, {5, 8}, {10, 15}, {20, 30},
	}
	for _, tt := range tests {
		if got := overFetch(tt.limit); got != tt.want {
			t.Errorf("overFetch(%d) = %d, want %d", tt.limit, got, tt.want)
		}
	}
}

// The worked example: limit=3 → fetch 5, one blocked, four admitted,
// one times out → exactly 3 documents, success.
func TestRun_WorkedExample(t *testing.T) {
	serp := serpN(4)
	serp = append(serp[:1], append([]models.SerpResult{{
		URL: "https://facebook.com/page", Title: "Blocked", Description: "nope",
	}}, serp[1:]...)...)
	if len(serp) != 5 {
		t.Fatalf("setup: expected 5 serp results, got %d", len(serp))
	}

	fq := newFakeQueue()
	fq.outcomes["https://example.com/0"] = completed("https://example.com/0", "content 0")
	fq.outcomes["https://example.com/1"] = completed("https://example.com/1", "content 1")
	fq.outcomes["https://example.com/2"] = completed("https://example.com/2", "content 2")
	// example.com/3 has no outcome → times out.

	fr := &fakeResolver{results: serp}
	p := newPipeline(fr, fq, nil)

	resp, perr := p.Run(context.Background(), tenant, searchReq(3, "markdown"))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}

	if fr.requestedLimit != 5 {
		t.Errorf("over-fetch: provider asked for %d, want 5", fr.requestedLimit)
	}
	if len(fq.admitted) != 4 {
		t.Errorf("expected 4 admitted tasks (blocked URL skipped), got %d", len(fq.admitted))
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if len(resp.Data) != 3 {
		t.Fatalf("expected 3 documents after trim, got %d", len(resp.Data))
	}
	for _, d := range resp.Data {
		if strings.TrimSpace(d.Content) == "" {
			t.Errorf("document %s in trimmed output has no content", d.URL)
		}
	}
}

func TestRun_BlockedURLNeverAdmitted(t *testing.T) {
	fq := newFakeQueue()
	fr := &fakeResolver{results: []models.SerpResult{
		{URL: "https://tiktok.com/@someone", Title: "Social", Description: "d"},
	}}
	p := newPipeline(fr, fq, nil)

	resp, perr := p.Run(context.Background(), tenant, searchReq(1, "markdown"))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if len(fq.admitted) != 0 {
		t.Errorf("blocked URL must not produce an admitted task, admitted %d", len(fq.admitted))
	}
	if len(resp.Data) != 1 {
		t.Fatalf("expected the rejection document, got %d docs", len(resp.Data))
	}
	doc := resp.Data[0]
	if doc.Metadata.StatusCode != 403 {
		t.Errorf("rejection status = %d, want 403", doc.Metadata.StatusCode)
	}
	if doc.Metadata.Error != blocklist.RejectionMessage {
		t.Errorf("rejection message = %q", doc.Metadata.Error)
	}
}

func TestRun_SerpOnlyFastPath(t *testing.T) {
	charges := make(chan billing.Charge, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c billing.Charge
		json.NewDecoder(r.Body).Decode(&c)
		charges <- c
	}))
	defer srv.Close()

	fq := newFakeQueue()
	fr := &fakeResolver{results: serpN(8)}
	p := New(fr, fq, blocklist.New(nil), billing.NewCharger(srv.URL, ""), nil)

	resp, perr := p.Run(context.Background(), tenant, searchReq(5)) // no formats
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if len(fq.admitted) != 0 {
		t.Errorf("fast path must not admit tasks, admitted %d", len(fq.admitted))
	}
	if len(resp.Data) != 5 {
		t.Fatalf("expected 5 SERP documents, got %d", len(resp.Data))
	}
	for _, d := range resp.Data {
		if d.Content != "" {
			t.Errorf("fast-path document %s must not carry content", d.URL)
		}
		if d.URL == "" || d.Title == "" {
			t.Errorf("fast-path document missing SERP metadata: %+v", d)
		}
	}

	select {
	case c := <-charges:
		if c.Units != 5 {
			t.Errorf("billed %d units, want the SERP result count 5", c.Units)
		}
		if c.TenantID != tenant.ID {
			t.Errorf("charge tenant = %q", c.TenantID)
		}
	case <-time.After(2 * time.Second):
		t.Error("billing charge was never dispatched")
	}
}

func TestRun_AllTimeoutsStillSuccess(t *testing.T) {
	fq := newFakeQueue() // no outcomes → everything times out
	fr := &fakeResolver{results: serpN(4)}
	p := newPipeline(fr, fq, nil)

	resp, perr := p.Run(context.Background(), tenant, searchReq(4, "markdown"))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if !resp.Success {
		t.Error("an all-timeout batch must still report success")
	}
	if resp.Warning == "" {
		t.Error("expected a non-empty warning for a degraded batch")
	}
	if len(resp.Data) == 0 {
		t.Error("degraded list should be preserved for diagnostic visibility")
	}
	for _, d := range resp.Data {
		if d.Metadata.StatusCode != 408 || d.Metadata.Error == "" {
			t.Errorf("degraded document missing timeout metadata: %+v", d.Metadata)
		}
		if d.Title == "" {
			t.Errorf("degraded document lost its SERP metadata: %+v", d)
		}
	}
}

func TestRun_OrderPreservedUnderShuffledCompletion(t *testing.T) {
	fq := newFakeQueue()
	serp := serpN(5)
	// Completion order is roughly reversed relative to provider order.
	delays := []time.Duration{250, 180, 120, 60, 10}
	for i, r := range serp {
		fq.outcomes[r.URL] = completed(r.URL, "content "+r.URL)
		fq.delays[r.URL] = delays[i] * time.Millisecond
	}

	fr := &fakeResolver{results: serp}
	p := newPipeline(fr, fq, nil)

	resp, perr := p.Run(context.Background(), tenant, searchReq(5, "markdown"))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if len(resp.Data) != 5 {
		t.Fatalf("expected 5 documents, got %d", len(resp.Data))
	}
	for i, d := range resp.Data {
		want := fmt.Sprintf("https://example.com/%d", i)
		if d.URL != want {
			t.Errorf("position %d: got %s, want %s (completion order leaked into output)", i, d.URL, want)
		}
	}
}

func TestRun_QueueUnavailableIsFatalAndReleasesAdmitted(t *testing.T) {
	fq := newFakeQueue()
	fq.admitErrs["https://example.com/2"] = queue.ErrQueueUnavailable

	fr := &fakeResolver{results: serpN(4)}
	p := newPipeline(fr, fq, nil)

	_, perr := p.Run(context.Background(), tenant, searchReq(4, "markdown"))
	if perr == nil {
		t.Fatal("expected a pipeline error")
	}
	if perr.Code != models.ErrCodeQueueUnavailable {
		t.Errorf("error code = %q, want %q", perr.Code, models.ErrCodeQueueUnavailable)
	}
	if len(fq.released) != len(fq.admitted) {
		t.Errorf("admitted %d tasks but released %d; entries leaked", len(fq.admitted), len(fq.released))
	}
}

func TestRun_ReleasesEveryAdmittedTask(t *testing.T) {
	fq := newFakeQueue()
	serp := serpN(3)
	fq.outcomes[serp[0].URL] = completed(serp[0].URL, "c")
	// serp[1] times out, serp[2] fails.
	fq.outcomes[serp[2].URL] = queue.Outcome{State: queue.StateFailed, Err: "boom"}

	fr := &fakeResolver{results: serp}
	p := newPipeline(fr, fq, nil)

	if _, perr := p.Run(context.Background(), tenant, searchReq(3, "markdown")); perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if len(fq.released) != 3 {
		t.Errorf("expected all 3 receipts released regardless of outcome, got %d", len(fq.released))
	}
}

func TestRun_NoResultsIsNormalTermination(t *testing.T) {
	fq := newFakeQueue()
	fr := &fakeResolver{results: nil}
	p := newPipeline(fr, fq, nil)

	resp, perr := p.Run(context.Background(), tenant, searchReq(5, "markdown"))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if !resp.Success {
		t.Error("empty provider results are a normal terminal state, not a failure")
	}
	if resp.Warning == "" {
		t.Error("expected a warning explaining the empty result set")
	}
	if len(fq.admitted) != 0 {
		t.Error("no tasks may be admitted when there is nothing to scrape")
	}
}

func TestRun_TenantOverrideForcesLimit(t *testing.T) {
	fq := newFakeQueue()
	fr := &fakeResolver{results: serpN(10)}
	p := newPipeline(fr, fq, map[string]int{tenant.ID: 1})

	resp, perr := p.Run(context.Background(), tenant, searchReq(5)) // SERP-only
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if len(resp.Data) != 1 {
		t.Errorf("tenant override should force 1 result, got %d", len(resp.Data))
	}
	if fr.requestedLimit != overFetch(1) {
		t.Errorf("over-fetch should follow the overridden limit, asked for %d", fr.requestedLimit)
	}
}

func TestRun_BillingFailureDoesNotChangeResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ledger down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	fq := newFakeQueue()
	fr := &fakeResolver{results: serpN(3)}
	p := New(fr, fq, blocklist.New(nil), billing.NewCharger(srv.URL, ""), nil)

	resp, perr := p.Run(context.Background(), tenant, searchReq(3))
	if perr != nil {
		t.Fatalf("unexpected error: %v", perr)
	}
	if !resp.Success || len(resp.Data) != 3 {
		t.Errorf("billing failure must not alter the computed response: %+v", resp)
	}
}

func TestMergeOutcome_SerpMetadataWins(t *testing.T) {
	serp := models.SerpResult{URL: "https://go.dev", Title: "SERP Title", Description: "SERP Desc"}
	out := completed("https://go.dev", "body text")
	out.Document.Title = "Scraped Title"
	out.Document.Description = "Scraped Desc"

	doc := mergeOutcome(serp, out)
	if doc.Title != "SERP Title" || doc.Description != "SERP Desc" {
		t.Errorf("SERP metadata must take precedence, got %+v", doc)
	}
	if doc.Content != "body text" {
		t.Errorf("scrape content missing: %+v", doc)
	}
}

func TestMergeOutcome_ScrapeFillsMissingSerpFields(t *testing.T) {
	serp := models.SerpResult{URL: "https://go.dev"}
	out := completed("https://go.dev", "body")
	out.Document.Title = "Scraped Title"

	doc := mergeOutcome(serp, out)
	if doc.Title != "Scraped Title" {
		t.Errorf("scrape title should fill empty SERP title, got %q", doc.Title)
	}
}

func TestAggregate_EmptyContentFiltered(t *testing.T) {
	docs := []models.Document{
		{URL: "a", Content: "real content"},
		{URL: "b", Content: "   \n\t "},
		{URL: "c", Content: "more content"},
	}
	resp := aggregate(docs, 10)
	if len(resp.Data) != 2 {
		t.Fatalf("expected whitespace-only document filtered, got %d docs", len(resp.Data))
	}
	if resp.Data[0].URL != "a" || resp.Data[1].URL != "c" {
		t.Errorf("unexpected order after filtering: %+v", resp.Data)
	}
}
