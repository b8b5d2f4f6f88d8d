// Package pipeline orchestrates one search request end to end: provider
// resolution, blocklist screening, scrape task admission, bounded
// fan-in, aggregation and the billing side effect.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/prospect/billing"
	"github.com/use-agent/prospect/blocklist"
	"github.com/use-agent/prospect/metrics"
	"github.com/use-agent/prospect/models"
	"github.com/use-agent/prospect/priority"
	"github.com/use-agent/prospect/provider"
	"github.com/use-agent/prospect/queue"
)

// searchLedgerID is the billing sub-ledger for search usage.
const searchLedgerID = "search"

// Resolver is the provider-facing slice of provider.Resolver the
// pipeline needs. It fails open: provider trouble yields empty results.
type Resolver interface {
	Search(ctx context.Context, q provider.Query) []models.SerpResult
	ProviderName() string
}

// Pipeline wires the search pipeline's collaborators together. Safe for
// concurrent use; all per-request state lives on the stack.
type Pipeline struct {
	resolver  Resolver
	queue     queue.Client
	block     *blocklist.List
	charger   *billing.Charger
	overrides map[string]int // tenant id → forced result limit
}

// New creates a Pipeline. overrides may be nil.
func New(r Resolver, q queue.Client, block *blocklist.List, charger *billing.Charger, overrides map[string]int) *Pipeline {
	return &Pipeline{
		resolver:  r,
		queue:     q,
		block:     block,
		charger:   charger,
		overrides: overrides,
	}
}

// overFetch returns ceil(limit * 1.5), the provider request size that
// absorbs expected filtering loss.
func overFetch(limit int) int {
	return (limit*3 + 1) / 2
}

// Run executes one search request. Every terminal state returns a
// well-formed response; a non-nil error is returned only for faults
// that are fatal for the request (queue unavailable).
func (p *Pipeline) Run(ctx context.Context, tenant models.Tenant, req *models.SearchRequest) (*models.SearchResponse, *models.PipelineError) {
	start := time.Now()
	jobID := uuid.NewString()

	limit := req.Limit
	if forced, ok := p.overrides[tenant.ID]; ok && forced > 0 && forced < limit {
		limit = forced
	}

	q := provider.Query{
		Term:     req.Query,
		Limit:    overFetch(limit),
		TBS:      req.TBS,
		Lang:     req.Lang,
		Country:  req.Country,
		Location: req.Location,
		Filter:   req.Filter,
	}

	serp := p.resolver.Search(ctx, q)
	if len(serp) == 0 {
		metrics.SearchRequests.WithLabelValues("no_results").Inc()
		p.logCompletion(jobID, tenant, req, true, 0, "no_results", start)
		return &models.SearchResponse{
			Success: true,
			Data:    []models.Document{},
			Warning: "no search results found for this query",
		}, nil
	}

	if !req.WantsScrape() {
		resp := p.serpOnly(serp, limit)
		p.charger.Dispatch(billing.Charge{
			TenantID: tenant.ID,
			LedgerID: searchLedgerID,
			Units:    len(resp.Data),
			JobID:    jobID,
			At:       time.Now().Unix(),
		})
		metrics.SearchRequests.WithLabelValues("serp_only").Inc()
		p.logCompletion(jobID, tenant, req, true, len(resp.Data), "serp_only", start)
		return resp, nil
	}

	docs, perr := p.scrapeAll(ctx, tenant, req, serp)
	if perr != nil {
		metrics.SearchRequests.WithLabelValues("scrape").Inc()
		p.logCompletion(jobID, tenant, req, false, 0, "scrape", start)
		return nil, perr
	}

	resp := aggregate(docs, limit)
	p.charger.Dispatch(billing.Charge{
		TenantID: tenant.ID,
		LedgerID: searchLedgerID,
		Units:    len(resp.Data),
		JobID:    jobID,
		At:       time.Now().Unix(),
	})
	metrics.SearchRequests.WithLabelValues("scrape").Inc()
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	p.logCompletion(jobID, tenant, req, true, len(resp.Data), "scrape", start)
	return resp, nil
}

// serpOnly builds the fast-path response: URL/title/description only,
// no scrape tasks ever created.
func (p *Pipeline) serpOnly(serp []models.SerpResult, limit int) *models.SearchResponse {
	if len(serp) > limit {
		serp = serp[:limit]
	}
	docs := make([]models.Document, len(serp))
	for i, r := range serp {
		docs[i] = models.Document{
			URL:         r.URL,
			Title:       r.Title,
			Description: r.Description,
			Metadata:    models.DocumentMetadata{SourceURL: r.URL},
		}
	}
	return &models.SearchResponse{Success: true, Data: docs}
}

// scrapeAll admits one task per non-blocked result, awaits all of them
// concurrently under the per-task deadline, releases every admitted
// entry, and returns documents in the original provider order.
func (p *Pipeline) scrapeAll(ctx context.Context, tenant models.Tenant, req *models.SearchRequest, serp []models.SerpResult) ([]models.Document, *models.PipelineError) {
	docs := make([]models.Document, len(serp))
	taskIDs := make([]string, len(serp)) // "" where no task was admitted
	prio := priority.For(tenant.Tier, priority.BaseSearch)

	var admitted []string
	for i, r := range serp {
		if p.block.Blocked(r.URL) {
			metrics.BlockedURLs.Inc()
			docs[i] = models.Document{
				URL:         r.URL,
				Title:       r.Title,
				Description: r.Description,
				Metadata: models.DocumentMetadata{
					SourceURL:  r.URL,
					StatusCode: 403,
					Error:      blocklist.RejectionMessage,
				},
			}
			continue
		}

		task := queue.Task{
			ID:       uuid.NewString(),
			URL:      r.URL,
			TenantID: tenant.ID,
			Priority: prio,
			Origin:   req.Origin,
			Formats:  req.Formats,
			Timeout:  req.ScrapeTimeout,
		}
		if err := p.queue.Admit(ctx, task); err != nil {
			// Queue trouble is fatal for the request. Clean up anything
			// already admitted so no entries leak.
			for _, id := range admitted {
				p.queue.Release(ctx, id)
			}
			return nil, models.NewPipelineError(models.ErrCodeQueueUnavailable,
				"scrape queue is unavailable", err)
		}
		metrics.TasksAdmitted.Inc()
		taskIDs[i] = task.ID
		admitted = append(admitted, task.ID)
	}

	deadline := time.Duration(req.ScrapeTimeout) * time.Second

	var wg sync.WaitGroup
	for i := range serp {
		if taskIDs[i] == "" {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome := p.queue.Await(ctx, taskIDs[i], deadline)
			docs[i] = mergeOutcome(serp[i], outcome)
		}(i)
	}
	wg.Wait()

	// Release everything we admitted regardless of outcome, so no queue
	// entries are leaked. Redundant removal is safe.
	for _, id := range admitted {
		p.queue.Release(ctx, id)
	}

	return docs, nil
}

// mergeOutcome combines one SERP result with its scrape outcome. SERP
// title and description always win; scrape output fills content.
func mergeOutcome(serp models.SerpResult, outcome queue.Outcome) models.Document {
	doc := models.Document{
		URL:         serp.URL,
		Title:       serp.Title,
		Description: serp.Description,
		Metadata:    models.DocumentMetadata{SourceURL: serp.URL},
	}

	switch outcome.State {
	case queue.StateCompleted:
		if outcome.Document != nil {
			doc.Content = outcome.Document.Content
			doc.Metadata.StatusCode = outcome.Document.Metadata.StatusCode
			if doc.Title == "" {
				doc.Title = outcome.Document.Title
			}
			if doc.Description == "" {
				doc.Description = outcome.Document.Description
			}
		}
	case queue.StateTimedOut:
		metrics.TaskTimeouts.Inc()
		doc.Metadata.StatusCode = 408
		doc.Metadata.Error = "scrape timed out"
	case queue.StateFailed:
		doc.Metadata.StatusCode = 500
		doc.Metadata.Error = outcome.Err
	}
	return doc
}

// aggregate applies the empty-content filter and trims to the requested
// limit. When filtering would remove every document, the degraded list
// is returned instead, with its metadata intact, under a warning —
// a no-content batch is not a request failure.
func aggregate(docs []models.Document, limit int) *models.SearchResponse {
	filtered := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Content) != "" {
			filtered = append(filtered, d)
		}
	}

	if len(filtered) == 0 {
		if len(docs) > limit {
			docs = docs[:limit]
		}
		return &models.SearchResponse{
			Success: true,
			Data:    docs,
			Warning: "no page content could be retrieved; returning search metadata only",
		}
	}

	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return &models.SearchResponse{Success: true, Data: filtered}
}

// logCompletion emits the per-request structured log record.
func (p *Pipeline) logCompletion(jobID string, tenant models.Tenant, req *models.SearchRequest, success bool, count int, mode string, start time.Time) {
	slog.Info("search request completed",
		"job_id", jobID,
		"success", success,
		"docs", count,
		"elapsed_ms", time.Since(start).Milliseconds(),
		"tenant", tenant.ID,
		"mode", mode,
		"origin", req.Origin,
		"provider", p.resolver.ProviderName(),
	)
}
