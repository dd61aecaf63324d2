package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"invoicebot/internal/delegate"
	"invoicebot/internal/engine"
	"invoicebot/internal/ingest"
	"invoicebot/internal/logger"
	"invoicebot/internal/slack"
	"invoicebot/internal/store"
	"invoicebot/pkg/models"
)

// State tracks an inbound event through the pipeline.
type State string

const (
	StateReceived     State = "received"
	StateVerified     State = "verified"
	StateAcknowledged State = "acknowledged"
	StateProcessing   State = "processing"
	StateDelivered    State = "delivered"
	StateRejected     State = "rejected"
	StateFailed       State = "failed"
)

// ErrQueueFull is returned by Dispatch when the worker queue is saturated;
// the caller should push back on the sender instead of blocking.
var ErrQueueFull = errors.New("dispatch queue is full")

// User-facing replies for background failures. Raw delegate errors are never
// exposed to the conversation.
const (
	replyIngestFailed   = "Sorry, I couldn't read that invoice file: %v"
	replyDelegateFailed = "Sorry, I couldn't produce insights right now. Please try again in a moment."
	replyUnknown        = "Sorry, something went wrong while processing that request."
)

// MessagePoster posts replies into the originating conversation.
type MessagePoster interface {
	PostMessage(ctx context.Context, channel, text, threadTS string) error
	FileDownloadURL(ctx context.Context, fileID string) (string, error)
}

// Ingestor turns a hosted file into invoice records.
type Ingestor interface {
	FetchInvoices(ctx context.Context, url string) ([]models.Invoice, error)
}

// Deps wires the dispatcher's collaborators.
type Deps struct {
	Poster   MessagePoster
	Ingestor Ingestor
	Engine   *engine.Engine
	Store    *store.Store
	Delegate delegate.InsightService

	// Workers is the pool size; Queue is the pending-job buffer.
	Workers int
	Queue   int
}

type job struct {
	id    string
	event slack.Event
	state State
}

// Dispatcher runs one background job per verified inbound event on a bounded
// worker pool. The acknowledgment path never blocks on ingestion, the engine,
// or the delegate.
//
// Replies into the same thread are not ordered: two events for one
// conversation processed concurrently may deliver in either order.
type Dispatcher struct {
	deps Deps
	jobs chan *job
	wg   sync.WaitGroup
	log  zerolog.Logger
}

// New creates a stopped Dispatcher; call Start before dispatching.
func New(deps Deps) *Dispatcher {
	if deps.Workers < 1 {
		deps.Workers = 1
	}
	if deps.Queue < 1 {
		deps.Queue = 1
	}
	return &Dispatcher{
		deps: deps,
		jobs: make(chan *job, deps.Queue),
		log:  logger.WithComponent("dispatcher"),
	}
}

// Start launches the worker pool. Workers run until Stop closes the queue.
// Background work is never canceled: a job already queued at shutdown still
// runs to completion and delivers its reply.
func (d *Dispatcher) Start() {
	for i := 0; i < d.deps.Workers; i++ {
		d.wg.Add(1)
		go func(worker int) {
			defer d.wg.Done()
			for j := range d.jobs {
				d.process(context.Background(), worker, j)
			}
		}(i)
	}
	d.log.Info().
		Int("workers", d.deps.Workers).
		Int("queue", cap(d.jobs)).
		Msg("Dispatcher started")
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (d *Dispatcher) Stop() {
	close(d.jobs)
	d.wg.Wait()
	d.log.Info().Msg("Dispatcher stopped")
}

// Dispatch enqueues a verified event for background processing. It never
// blocks: when the queue is full it returns ErrQueueFull so the webhook
// endpoint can apply backpressure.
func (d *Dispatcher) Dispatch(event slack.Event) error {
	j := &job{id: uuid.NewString(), event: event, state: StateReceived}
	d.transition(j, StateVerified)

	select {
	case d.jobs <- j:
		d.transition(j, StateAcknowledged)
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) process(ctx context.Context, worker int, j *job) {
	defer func() {
		if r := recover(); r != nil {
			// A panicking job must not take down the process or its worker.
			d.log.Error().
				Str("job_id", j.id).
				Int("worker", worker).
				Interface("panic", r).
				Msg("Job panicked")
			d.transition(j, StateFailed)
		}
	}()

	d.transition(j, StateProcessing)

	switch event := j.event.(type) {
	case slack.MessageEvent:
		d.finish(ctx, j, event.Channel, event.ThreadTS, d.handleMessage(ctx, event))
	case slack.FileSharedEvent:
		d.finish(ctx, j, event.Channel, event.ThreadTS, d.handleFileShared(ctx, event))
	default:
		d.log.Debug().Str("job_id", j.id).Msg("Ignoring unhandled event variant")
		d.transition(j, StateDelivered)
	}
}

// finish posts either the result or a readable failure message, so the
// requester is never left without a reply.
func (d *Dispatcher) finish(ctx context.Context, j *job, channel, threadTS string, result resultOrError) {
	text := result.text
	if result.err != nil {
		text = userFacingError(result.err)
		d.transition(j, StateFailed)
		d.log.Warn().
			Err(result.err).
			Str("job_id", j.id).
			Str("channel", channel).
			Msg("Job failed, replying with error message")
	}

	if err := d.deps.Poster.PostMessage(ctx, channel, text, threadTS); err != nil {
		d.transition(j, StateFailed)
		d.log.Error().
			Err(err).
			Str("job_id", j.id).
			Str("channel", channel).
			Msg("Failed to deliver reply")
		return
	}

	if result.err == nil {
		d.transition(j, StateDelivered)
	}
}

type resultOrError struct {
	text string
	err  error
}

func (d *Dispatcher) handleMessage(ctx context.Context, event slack.MessageEvent) resultOrError {
	text := strings.TrimSpace(event.Text)
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "analyze invoices"):
		analysis := d.deps.Engine.Analyze(d.deps.Store.Snapshot())
		return resultOrError{text: formatAnalysis(analysis)}

	case strings.Contains(lower, "invoice insights"):
		insights, err := d.deps.Delegate.InvoiceInsights(ctx, d.deps.Store.Snapshot())
		if err != nil {
			return resultOrError{err: err}
		}
		return resultOrError{text: insights}

	case strings.HasPrefix(lower, "pay invoice"):
		fields := strings.Fields(text)
		if len(fields) < 3 {
			return resultOrError{text: "Usage: pay invoice <id>"}
		}
		id := fields[2]
		if err := d.deps.Store.Pay(id); err != nil {
			if errors.Is(err, store.ErrNotFoundOrAlreadyPaid) {
				return resultOrError{text: "Invoice not found or already paid."}
			}
			return resultOrError{err: err}
		}
		return resultOrError{text: fmt.Sprintf("Invoice %s marked as paid.", id)}

	default:
		insights, err := d.deps.Delegate.Insights(ctx, text)
		if err != nil {
			return resultOrError{err: err}
		}
		return resultOrError{text: insights}
	}
}

func (d *Dispatcher) handleFileShared(ctx context.Context, event slack.FileSharedEvent) resultOrError {
	url, err := d.deps.Poster.FileDownloadURL(ctx, event.FileID)
	if err != nil {
		return resultOrError{err: fmt.Errorf("%w: resolving file %s: %v", ingest.ErrDownloadFailed, event.FileID, err)}
	}

	invoices, err := d.deps.Ingestor.FetchInvoices(ctx, url)
	if err != nil {
		return resultOrError{err: err}
	}

	analysis := d.deps.Engine.Analyze(invoices)
	return resultOrError{text: formatAnalysis(analysis)}
}

func formatAnalysis(analysis engine.Analysis) string {
	var sb strings.Builder

	sb.WriteString("*Payment prioritization*\n")
	if len(analysis.Recommendations) == 0 {
		sb.WriteString("No invoices to prioritize.\n")
	}
	for i, rec := range analysis.Recommendations {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, rec)
	}

	sb.WriteString("\n*Anomalies*\n")
	if len(analysis.Anomalies) == 0 {
		sb.WriteString("No anomalies detected.")
	}
	for _, anomaly := range analysis.Anomalies {
		fmt.Fprintf(&sb, "- %s\n", anomaly)
	}

	return strings.TrimRight(sb.String(), "\n")
}

func userFacingError(err error) string {
	var rowErr *ingest.RowError
	switch {
	case errors.As(err, &rowErr):
		return fmt.Sprintf(replyIngestFailed, rowErr)
	case errors.Is(err, ingest.ErrDownloadFailed), errors.Is(err, ingest.ErrMissingColumn):
		return fmt.Sprintf(replyIngestFailed, err)
	case errors.Is(err, delegate.ErrDelegateFailed):
		return replyDelegateFailed
	default:
		return replyUnknown
	}
}

func (d *Dispatcher) transition(j *job, to State) {
	d.log.Debug().
		Str("job_id", j.id).
		Str("from", string(j.state)).
		Str("to", string(to)).
		Msg("Job state transition")
	j.state = to
}
