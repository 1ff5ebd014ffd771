// Package pipeline sequences one integration run: fetch, process,
// reconcile, optional publish, summarize. Steps run linearly; a failed
// step produces a terminal error status, never a partial success report.
package pipeline

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/stlgis/stl311/internal/config"
	"github.com/stlgis/stl311/internal/open311"
	"github.com/stlgis/stl311/internal/process"
	"github.com/stlgis/stl311/internal/publish"
	"github.com/stlgis/stl311/internal/reconcile"
	"github.com/stlgis/stl311/internal/store"
)

// Terminal statuses of a run.
const (
	StatusSuccess     = "success"
	StatusNoData      = "no_data"
	StatusNoValidData = "no_valid_data"
	StatusError       = "error"
)

// Options are the per-run parameters.
type Options struct {
	StartDate    time.Time
	EndDate      time.Time
	Status       string
	Publish      bool
	ServiceName  string
	UpdateMethod string
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the outcome of a full run.
type Result struct {
	Status   string
	Message  string
	Steps    []StepResult
	Stats    *process.ValidationStats
	Fetched  int
	Inserted int
	Updated  int
}

// Pipeline wires the integration components over one open store.
type Pipeline struct {
	cfg       *config.Config
	db        *store.DB
	client    *open311.Client
	processor *process.Processor
	publisher *publish.Client
}

// New creates a pipeline. Opening the store beforehand is the ensure-store
// step: store.Open performs the idempotent schema setup.
func New(cfg *config.Config, db *store.DB) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		db:        db,
		client:    open311.NewClient(cfg),
		processor: process.NewProcessor(cfg),
		publisher: publish.NewClient(cfg),
	}
}

// Run executes one integration run.
func (p *Pipeline) Run(opts Options) *Result {
	r := &Result{}
	started := time.Now()

	// Step 1: fetch
	log.Println("Step 1/4: Fetching service requests...")
	raws := p.client.Fetch(opts.StartDate, opts.EndDate, opts.Status)
	r.Fetched = len(raws)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("Fetched %d raw requests", len(raws)),
	})
	if len(raws) == 0 {
		r.Status = StatusNoData
		r.Message = "No service requests found"
		p.recordRun(r, started)
		return r
	}

	// Step 2: process
	log.Println("Step 2/4: Processing and validating...")
	records, stats := p.processor.Process(raws)
	r.Stats = stats
	r.Steps = append(r.Steps, StepResult{
		Name: "Process",
		Summary: fmt.Sprintf("Processed %d of %d (missing coords %d, invalid dates %d)",
			stats.Processed, stats.Total, stats.MissingCoordinates, stats.InvalidDates),
	})
	if len(records) == 0 {
		r.Status = StatusNoValidData
		r.Message = "No valid service requests after processing"
		p.recordRun(r, started)
		return r
	}

	// Step 3: reconcile
	log.Println("Step 3/4: Reconciling with store...")
	recResult, err := reconcile.New(p.db).Reconcile(records)
	if err != nil {
		r.Status = StatusError
		r.Message = err.Error()
		r.Steps = append(r.Steps, StepResult{Name: "Reconcile", Err: err})
		p.recordRun(r, started)
		return r
	}
	r.Inserted = recResult.Inserted
	r.Updated = recResult.Updated
	r.Steps = append(r.Steps, StepResult{
		Name:    "Reconcile",
		Summary: fmt.Sprintf("Inserted %d, updated %d", recResult.Inserted, recResult.Updated),
	})

	// Step 4: publish (optional)
	if opts.Publish {
		log.Println("Step 4/4: Publishing to hosted service...")
		step := p.runPublish(opts)
		r.Steps = append(r.Steps, step)
		if step.Err != nil {
			r.Status = StatusError
			r.Message = step.Err.Error()
			p.recordRun(r, started)
			return r
		}
	}

	r.Status = StatusSuccess
	r.Message = fmt.Sprintf("Processed %d requests: %d inserted, %d updated",
		stats.Processed, recResult.Inserted, recResult.Updated)
	p.recordRun(r, started)
	return r
}

func (p *Pipeline) runPublish(opts Options) StepResult {
	if !p.publisher.IsConfigured() {
		return StepResult{Name: "Publish", Err: fmt.Errorf("portal token not set (%s)", p.cfg.Publish.TokenEnv)}
	}

	rows, err := p.db.AllRequests()
	if err != nil {
		return StepResult{Name: "Publish", Err: fmt.Errorf("reading store for publish: %w", err)}
	}
	feats := publish.FeaturesFromStore(rows)

	name := opts.ServiceName
	if name == "" {
		name = p.cfg.Publish.ServiceName
	}
	method := opts.UpdateMethod
	if method == "" {
		method = p.cfg.Publish.UpdateMethod
	}

	if method == "incremental" {
		res, err := p.publisher.IncrementalUpdate(name, feats, "REQUESTID")
		if err != nil {
			return StepResult{Name: "Publish", Err: err}
		}
		return StepResult{
			Name:    "Publish",
			Summary: fmt.Sprintf("Incremental update: %d new of %d local (%d already online)", res.NewRecords, res.TotalLocal, res.ExistingRecords),
		}
	}

	res, err := p.publisher.Update(name, feats, method)
	if err != nil {
		return StepResult{Name: "Publish", Err: err}
	}
	return StepResult{
		Name:    "Publish",
		Summary: fmt.Sprintf("%s via %s: %d features processed", res.Status, res.UpdateMethod, res.FeaturesProcessed),
	}
}

// recordRun persists the run summary for the status command and dashboard.
// Bookkeeping only: a failure here is logged, not surfaced.
func (p *Pipeline) recordRun(r *Result, started time.Time) {
	run := store.SyncRun{
		Status:          r.Status,
		StartedAt:       started.UTC().Format("2006-01-02 15:04:05"),
		FinishedAt:      time.Now().UTC().Format("2006-01-02 15:04:05"),
		Fetched:         r.Fetched,
		Inserted:        r.Inserted,
		Updated:         r.Updated,
		SummaryMarkdown: r.Markdown(),
	}
	if r.Stats != nil {
		run.Processed = r.Stats.Processed
	}
	if _, err := p.db.InsertSyncRun(run); err != nil {
		log.Printf("Failed to record sync run: %v", err)
	}
}

// Markdown renders the run as a markdown summary for storage and display.
func (r *Result) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Sync run: %s\n\n", r.Status)
	if r.Message != "" {
		fmt.Fprintf(&b, "%s\n\n", r.Message)
	}
	for _, s := range r.Steps {
		if s.Err != nil {
			fmt.Fprintf(&b, "- **%s**: error: %v\n", s.Name, s.Err)
			continue
		}
		fmt.Fprintf(&b, "- **%s**: %s\n", s.Name, s.Summary)
	}
	if r.Stats != nil {
		fmt.Fprintf(&b, "\nValidation: %d/%d with coordinates, %d invalid dates\n",
			r.Stats.ValidCoordinates, r.Stats.Total, r.Stats.InvalidDates)
	}
	return b.String()
}
