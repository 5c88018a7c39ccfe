// Package harvest scrapes schema.org metadata for whitelisted DOIs and
// saves one product record per DOI.
package harvest

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"obiscatalog/internal/fetch"
	"obiscatalog/internal/logging"
)

// DefaultResolver is prefixed to every DOI to build the landing page URL.
const DefaultResolver = "https://doi.org/"

// Fetcher returns the HTML of a landing page.
type Fetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches pages with a plain HTTP client.
type HTTPFetcher struct {
	Client *fetch.Client
}

// FetchHTML implements Fetcher.
func (f *HTTPFetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	body, err := f.Client.Get(ctx, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Recorder keeps a durable record of harvest runs.
type Recorder interface {
	StartRun(ctx context.Context, force bool) (string, error)
	RecordItem(ctx context.Context, runID, doi, status, errMsg string) error
	FinishRun(ctx context.Context, runID string, saved, unchanged, missing, failed int) error
}

// Outcome is the result of harvesting one DOI.
type Outcome string

const (
	OutcomeSaved      Outcome = "saved"
	OutcomeUnchanged  Outcome = "unchanged"
	OutcomeNoMetadata Outcome = "no-metadata"
	OutcomeFailed     Outcome = "failed"
)

// Item is the outcome of one DOI.
type Item struct {
	DOI     string
	Outcome Outcome
	Path    string
	Err     error
}

// Report summarizes a run.
type Report struct {
	RunID     string
	Items     []Item
	Saved     int
	Unchanged int
	Missing   int
	Failed    int
	Duration  time.Duration
}

func (r *Report) add(it Item) {
	r.Items = append(r.Items, it)
	switch it.Outcome {
	case OutcomeSaved:
		r.Saved++
	case OutcomeUnchanged:
		r.Unchanged++
	case OutcomeNoMetadata:
		r.Missing++
	case OutcomeFailed:
		r.Failed++
	}
}

// Harvester processes DOIs one after another.
type Harvester struct {
	Fetcher     Fetcher
	ProductsDir string
	Mappings    []Mapping
	Force       bool
	// Resolver defaults to DefaultResolver.
	Resolver string
	// Limiter paces page fetches when the Fetcher does not pace itself.
	Limiter *rate.Limiter
	// Recorder is optional.
	Recorder Recorder
}

// Run harvests every DOI. Fetch failures and pages without metadata are
// logged, recorded and counted. Write errors, a canceled context or a failing
// recorder stop the run.
func (h *Harvester) Run(ctx context.Context, dois []string) (*Report, error) {
	start := time.Now()
	report := &Report{}
	if h.Force {
		logging.Harvest("force mode: re-harvesting all products")
	}
	logging.Harvest("harvesting %d DOIs with %d mappings", len(dois), len(h.Mappings))

	if h.Recorder != nil {
		id, err := h.Recorder.StartRun(ctx, h.Force)
		if err != nil {
			return nil, fmt.Errorf("start ledger run: %w", err)
		}
		report.RunID = id
	}
	audit := logging.AuditWithRun(report.RunID)
	audit.HarvestStart(len(dois), h.Force)

	for i, doi := range dois {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		logging.HarvestDebug("[%d/%d] processing %s", i+1, len(dois), doi)

		it, err := h.harvestOne(ctx, doi)
		if err != nil {
			return report, err
		}
		report.add(it)
		audit.HarvestItem(doi, string(it.Outcome), it.Err)

		if h.Recorder != nil {
			errMsg := ""
			if it.Err != nil {
				errMsg = it.Err.Error()
			}
			if err := h.Recorder.RecordItem(ctx, report.RunID, doi, string(it.Outcome), errMsg); err != nil {
				return report, fmt.Errorf("record %s: %w", doi, err)
			}
		}
	}

	report.Duration = time.Since(start)
	audit.HarvestComplete(report.Saved, report.Unchanged, report.Missing, report.Failed, report.Duration)
	if h.Recorder != nil {
		if err := h.Recorder.FinishRun(ctx, report.RunID, report.Saved, report.Unchanged, report.Missing, report.Failed); err != nil {
			return report, fmt.Errorf("finish ledger run: %w", err)
		}
	}
	logging.Harvest("harvest complete: %d saved, %d unchanged, %d without metadata, %d failed in %s",
		report.Saved, report.Unchanged, report.Missing, report.Failed, report.Duration)
	return report, nil
}

func (h *Harvester) harvestOne(ctx context.Context, doi string) (Item, error) {
	if h.Limiter != nil {
		if err := h.Limiter.Wait(ctx); err != nil {
			return Item{}, err
		}
	}

	resolver := h.Resolver
	if resolver == "" {
		resolver = DefaultResolver
	}
	page, err := h.Fetcher.FetchHTML(ctx, resolver+doi)
	if err != nil {
		if ctx.Err() != nil {
			return Item{}, ctx.Err()
		}
		logging.HarvestWarn("error fetching schema.org from %s: %v", doi, err)
		return Item{DOI: doi, Outcome: OutcomeFailed, Err: err}, nil
	}

	data, ok := ExtractSchemaOrg(page)
	if !ok {
		logging.HarvestWarn("no schema.org found for %s", doi)
		return Item{DOI: doi, Outcome: OutcomeNoMetadata}, nil
	}

	record := BuildRecord(doi, data, h.Mappings)
	res, path, err := SaveProduct(h.ProductsDir, SafeID(doi), record, h.Force)
	if err != nil {
		return Item{}, fmt.Errorf("save %s: %w", doi, err)
	}
	if res == Unchanged {
		logging.HarvestDebug("skipped (unchanged): %s", path)
		return Item{DOI: doi, Outcome: OutcomeUnchanged, Path: path}, nil
	}
	logging.Harvest("saved: %s", path)
	return Item{DOI: doi, Outcome: OutcomeSaved, Path: path}, nil
}
