package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/formworks/pdf-form-filler/internal/facts"
	"github.com/formworks/pdf-form-filler/internal/fetch"
	"github.com/formworks/pdf-form-filler/internal/llm"
	"github.com/formworks/pdf-form-filler/internal/pdf"
	"github.com/formworks/pdf-form-filler/internal/storage"
)

var (
	// ErrInvalidFormURL is returned when the form URL is not an absolute
	// http(s) URL.
	ErrInvalidFormURL = errors.New("invalid form URL")

	// ErrNoUploads is returned when the user has no uploaded documents to
	// draw facts from.
	ErrNoUploads = errors.New("no uploaded documents for user")
)

// FieldDecider decides one form field from the aggregated facts.
type FieldDecider interface {
	DecideField(ctx context.Context, field pdf.FormField, documentDescription, factsText string) (*llm.FieldDecision, error)
}

// Deps are the collaborators an Orchestrator needs.
type Deps struct {
	Blobs         storage.BlobStore
	Manifests     *storage.ManifestStore
	Fetcher       fetch.Fetcher
	Aggregator    *facts.Aggregator
	Decider       FieldDecider
	Registry      *Registry
	Logger        *slog.Logger
	Concurrency   int
	MaxFormSize   int64
	BucketBaseURL string
}

// Orchestrator runs the form-fill pipeline: download, schema extraction,
// per-field decisions, value injection and result publication.
type Orchestrator struct {
	blobs         storage.BlobStore
	manifests     *storage.ManifestStore
	fetcher       fetch.Fetcher
	aggregator    *facts.Aggregator
	decider       FieldDecider
	registry      *Registry
	logger        *slog.Logger
	concurrency   int
	maxFormSize   int64
	bucketBaseURL string
}

// NewOrchestrator wires an orchestrator from its dependencies.
func NewOrchestrator(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := deps.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		blobs:         deps.Blobs,
		manifests:     deps.Manifests,
		fetcher:       deps.Fetcher,
		aggregator:    deps.Aggregator,
		decider:       deps.Decider,
		registry:      deps.Registry,
		logger:        logger,
		concurrency:   concurrency,
		maxFormSize:   deps.MaxFormSize,
		bucketBaseURL: deps.BucketBaseURL,
	}
}

// Start validates the request, aggregates the user's facts and registers a
// queued job whose pipeline runs in the background. Validation and fact
// aggregation happen before the job exists: a request that cannot possibly
// succeed never produces a job id.
func (o *Orchestrator) Start(ctx context.Context, userID, formURL string) (Snapshot, error) {
	if err := validateFormURL(formURL); err != nil {
		return Snapshot{}, err
	}

	userID = storage.SanitizeUserID(userID)

	manifest, err := o.manifests.Load(ctx, userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading manifest: %w", err)
	}
	if len(manifest.Files) == 0 {
		return Snapshot{}, ErrNoUploads
	}

	factsCtx, err := o.aggregator.Aggregate(ctx, manifest)
	if err != nil {
		return Snapshot{}, err
	}

	formSlug := slugFromURL(formURL)
	job := o.registry.Create(userID, formSlug, formURL)

	o.logger.Info("form-fill job accepted",
		"jobId", job.ID, "user", userID, "formSlug", formSlug, "facts", factsCtx.FactCount)

	go o.runJob(context.Background(), job, factsCtx)

	return job.Snapshot(), nil
}

// Get returns the current snapshot of a job.
func (o *Orchestrator) Get(jobID string) (Snapshot, error) {
	job, err := o.registry.Get(jobID)
	if err != nil {
		return Snapshot{}, err
	}
	return job.Snapshot(), nil
}

func (o *Orchestrator) runJob(ctx context.Context, job *Job, factsCtx *facts.Context) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("form-fill pipeline panicked", "jobId", job.ID, "panic", r)
			o.failJob(ctx, job, "internal error while filling the form")
		}
	}()

	data, contentType, err := o.fetcher.Fetch(ctx, job.FormURL)
	if err != nil {
		o.failJob(ctx, job, fmt.Sprintf("downloading form: %v", err))
		return
	}
	if contentType == "" {
		contentType = "application/pdf"
	}

	sourceKey := storage.FormSourceKey(job.UserID, job.FormSlug)
	if err := o.blobs.Put(ctx, sourceKey, data, contentType); err != nil {
		o.failJob(ctx, job, fmt.Sprintf("storing form source: %v", err))
		return
	}

	if err := pdf.Validate(data, o.maxFormSize); err != nil {
		o.failJob(ctx, job, fmt.Sprintf("validating form: %v", err))
		return
	}

	schema, err := pdf.ExtractSchema(data, job.FormSlug)
	if err != nil {
		o.failJob(ctx, job, fmt.Sprintf("extracting form schema: %v", err))
		return
	}

	schemaKey := storage.FormSchemaKey(job.UserID, job.FormSlug)
	if err := o.persistSchema(ctx, schemaKey, schema); err != nil {
		o.failJob(ctx, job, err.Error())
		return
	}

	job.SeedFields(schema.Fields)
	o.publishManifest(ctx, job, storage.FormEntry{
		FormURL:   job.FormURL,
		SourceKey: sourceKey,
		SchemaKey: schemaKey,
		Status:    StatusFilling,
		LastJobID: job.ID,
	})

	if len(schema.Fields) == 0 {
		o.failJob(ctx, job, "form contains no fillable text fields")
		return
	}

	job.SetStatus(StatusFilling, "")
	o.fillFields(ctx, job, schema.Fields, factsCtx)

	// Re-persist the schema with per-field outcomes now that the fan-in
	// barrier has passed.
	recordOutcomes(schema, job.Snapshot())
	if err := o.persistSchema(ctx, schemaKey, schema); err != nil {
		o.failJob(ctx, job, err.Error())
		return
	}

	fills := collectFills(job)
	filled, err := pdf.InjectValues(data, fills)
	if err != nil {
		o.failJob(ctx, job, fmt.Sprintf("writing filled form: %v", err))
		return
	}

	filledKey := storage.FormFilledKey(job.UserID, job.FormSlug)
	if err := o.blobs.Put(ctx, filledKey, filled, "application/pdf"); err != nil {
		o.failJob(ctx, job, fmt.Sprintf("storing filled form: %v", err))
		return
	}

	job.SetFilledFormURL(storage.FilledFormURL(o.bucketBaseURL, job.UserID, job.FormSlug))

	total, filledCount, skipped, errored := job.Counters()
	job.SetStatus(StatusComplete,
		fmt.Sprintf("filled %d of %d fields (%d skipped, %d errors)", filledCount, total, skipped, errored))

	snap := job.Snapshot()
	o.publishManifest(ctx, job, storage.FormEntry{
		FormURL:       job.FormURL,
		SourceKey:     sourceKey,
		SchemaKey:     schemaKey,
		FilledKey:     filledKey,
		FilledFormURL: snap.FilledFormURL,
		Status:        StatusComplete,
		TotalFields:   total,
		FilledFields:  filledCount,
		SkippedFields: skipped,
		ErrorFields:   errored,
		LastJobID:     job.ID,
		Message:       snap.Message,
	})

	o.logger.Info("form-fill job complete",
		"jobId", job.ID, "filled", filledCount, "skipped", skipped, "errors", errored)
}

// fillFields fans the schema's fields out to the decider under a bounded
// worker pool. A failed field is recorded on the job and never cancels its
// siblings, so the group error is always nil.
func (o *Orchestrator) fillFields(ctx context.Context, job *Job, fields []pdf.FormField, factsCtx *facts.Context) {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(o.concurrency)

	for _, field := range fields {
		eg.Go(func() error {
			job.SetFieldStatus(field.Name, FieldState{Status: FieldPrompting})

			decision, err := o.decider.DecideField(egCtx, field, factsCtx.DocumentDescription, factsCtx.FactsText)
			if err != nil {
				o.logger.Warn("field decision failed", "jobId", job.ID, "field", field.Name, "error", err)
				job.SetFieldStatus(field.Name, FieldState{Status: FieldError, Reason: err.Error()})
				return nil
			}

			switch decision.Action {
			case llm.ActionFill:
				value := strings.TrimSpace(decision.Value)
				if value == "" {
					job.SetFieldStatus(field.Name, FieldState{
						Status:     FieldSkipped,
						Reason:     "model chose fill without a value",
						Confidence: decision.Confidence,
					})
					return nil
				}
				job.SetFieldStatus(field.Name, FieldState{
					Status:     FieldFilled,
					Value:      value,
					Reason:     decision.Reason,
					Confidence: decision.Confidence,
				})
			default:
				job.SetFieldStatus(field.Name, FieldState{
					Status:     FieldSkipped,
					Reason:     decision.Reason,
					Confidence: decision.Confidence,
				})
			}
			return nil
		})
	}

	// Workers always return nil; Wait is purely the fan-in barrier.
	_ = eg.Wait()
}

// persistSchema stores the field schema JSON for a form.
func (o *Orchestrator) persistSchema(ctx context.Context, key string, schema *pdf.FormSchema) error {
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding form schema: %v", err)
	}
	if err := o.blobs.Put(ctx, key, schemaJSON, "application/json"); err != nil {
		return fmt.Errorf("storing form schema: %v", err)
	}
	return nil
}

// recordOutcomes copies each field's terminal decision and filled value from
// the job snapshot onto the schema's field descriptors.
func recordOutcomes(schema *pdf.FormSchema, snap Snapshot) {
	for i := range schema.Fields {
		fs, ok := snap.Field(schema.Fields[i].Name)
		if !ok {
			continue
		}
		switch fs.Status {
		case FieldFilled:
			schema.Fields[i].Decision = llm.ActionFill
			schema.Fields[i].FilledValue = fs.Value
		case FieldSkipped:
			schema.Fields[i].Decision = llm.ActionSkip
		case FieldError:
			schema.Fields[i].Decision = FieldError
		}
	}
}

func collectFills(job *Job) map[string]string {
	snap := job.Snapshot()
	fills := make(map[string]string)
	for _, fs := range snap.Fields {
		if fs.Status == FieldFilled && fs.Value != "" {
			fills[fs.FieldName] = fs.Value
		}
	}
	return fills
}

func (o *Orchestrator) failJob(ctx context.Context, job *Job, message string) {
	o.logger.Error("form-fill job failed", "jobId", job.ID, "reason", message)
	job.SetStatus(StatusError, message)
	o.publishManifest(ctx, job, storage.FormEntry{
		FormURL:   job.FormURL,
		Status:    StatusError,
		LastJobID: job.ID,
		Message:   message,
	})
}

// publishManifest merges a form entry into the user's manifest. Concurrent
// jobs for the same user race last-write-wins; the job registry remains the
// authoritative record for in-flight state.
func (o *Orchestrator) publishManifest(ctx context.Context, job *Job, entry storage.FormEntry) {
	manifest, err := o.manifests.Load(ctx, job.UserID)
	if err != nil {
		o.logger.Warn("loading manifest for update", "jobId", job.ID, "error", err)
		return
	}
	manifest.UpsertForm(job.FormSlug, entry)
	if err := o.manifests.Save(ctx, job.UserID, manifest); err != nil {
		o.logger.Warn("saving manifest", "jobId", job.ID, "error", err)
	}
}

func validateFormURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidFormURL, raw)
	}
	return nil
}

// slugFromURL derives the storage slug for a form from its whole URL, so two
// forms that happen to share a filename never collide on storage keys or
// manifest entries. The same URL always yields the same slug.
func slugFromURL(raw string) string {
	return storage.Slugify(raw)
}
