package firehose

import (
	"context"

	"github.com/lixenwraith/log"
	"golang.org/x/sync/errgroup"

	"github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/transform"
)

// BucketEnvVar is the environment variable the deployment uses to name the
// destination bucket.
const BucketEnvVar = "DATA_BUCKET_NAME"

// Handler is the batch orchestrator. It owns no transform logic; it walks
// the batch, invokes the transformer per record, and assembles the response
// in input order.
type Handler struct {
	transformer *transform.Transformer
	bucket      string
	workers     int
	logger      *log.Logger

	// observer, when set, is called once per transformed record in input
	// order. Used for progress reporting.
	observer func(TransformedRecord)
}

// Option configures a Handler.
type Option func(*Handler)

// WithWorkers sets the number of concurrent record workers. Values below 2
// keep processing sequential. Output order is always input order.
func WithWorkers(n int) Option {
	return func(h *Handler) {
		h.workers = n
	}
}

// WithObserver registers a per-record callback, invoked in input order
// after each record's outcome is known.
func WithObserver(fn func(TransformedRecord)) Option {
	return func(h *Handler) {
		h.observer = fn
	}
}

// NewHandler creates a batch handler bound to a destination bucket name.
// The bucket is a deployment precondition; it is never read by the
// transform path itself.
func NewHandler(t *transform.Transformer, bucket string, logger *log.Logger, opts ...Option) *Handler {
	h := &Handler{
		transformer: t,
		bucket:      bucket,
		workers:     1,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle transforms every record in the event and returns the assembled
// response. A missing destination bucket fails the whole batch before any
// record is touched. Record failures never propagate: they surface as
// ResultProcessingFailed entries carrying the original payload.
func (h *Handler) Handle(ctx context.Context, event Event) (Response, error) {
	if h.bucket == "" {
		return Response{}, errors.MissingBucket(BucketEnvVar)
	}

	var out []TransformedRecord
	if h.workers > 1 && len(event.Records) > 1 {
		var err error
		out, err = h.handleParallel(ctx, event.Records)
		if err != nil {
			return Response{}, err
		}
	} else {
		out = make([]TransformedRecord, len(event.Records))
		for i, rec := range event.Records {
			out[i] = h.transformRecord(rec)
		}
	}

	if h.observer != nil {
		for _, rec := range out {
			h.observer(rec)
		}
	}

	if h.logger != nil {
		h.logger.Info("msg", "Processed batch",
			"component", "firehose",
			"records", len(out))
	}

	return Response{Records: out}, nil
}

// handleParallel fans records out over a bounded worker group and
// reassembles results by input index, so observable output matches the
// sequential path exactly.
func (h *Handler) handleParallel(ctx context.Context, records []Record) ([]TransformedRecord, error) {
	out := make([]TransformedRecord, len(records))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)

	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return errors.ContextCanceled("transform batch")
			default:
			}
			out[i] = h.transformRecord(rec)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// transformRecord applies the transformer to one record. It never returns
// an error: every failure, including a panic inside the transform, is
// reported as ResultProcessingFailed with the original payload preserved.
func (h *Handler) transformRecord(rec Record) (out TransformedRecord) {
	defer func() {
		if r := recover(); r != nil {
			h.logFailure(rec.RecordID, errors.PanicRecovered(rec.RecordID, r))
			out = TransformedRecord{
				RecordID: rec.RecordID,
				Result:   ResultProcessingFailed,
				Data:     rec.Data,
			}
		}
	}()

	if h.logger != nil {
		h.logger.Debug("msg", "Processing record",
			"component", "firehose",
			"record_id", rec.RecordID)
	}

	data, err := h.transformer.ReshapePayload(rec.Data)
	if err != nil {
		h.logFailure(rec.RecordID, err)
		return TransformedRecord{
			RecordID: rec.RecordID,
			Result:   ResultProcessingFailed,
			Data:     rec.Data,
		}
	}

	return TransformedRecord{
		RecordID: rec.RecordID,
		Result:   ResultOk,
		Data:     data,
	}
}

func (h *Handler) logFailure(recordID string, err error) {
	if h.logger == nil {
		return
	}
	h.logger.Error("msg", "Record transform failed",
		"component", "firehose",
		"record_id", recordID,
		"code", string(errors.GetCode(err)),
		"error", err)
}
