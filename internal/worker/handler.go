// Package worker implements the pull loop and lifecycle controller of
// spec.md §4.G/§4.H: fetch batches, spawn a bounded number of detached
// per-message handlers, extract trace context, decode/validate, run the
// orchestrator, publish a terminal status, and ack/nak accordingly.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/estuary/vizwork/internal/broker"
	vizerrors "github.com/estuary/vizwork/internal/errors"
	"github.com/estuary/vizwork/internal/jobs"
	"github.com/estuary/vizwork/internal/logging"
	"github.com/estuary/vizwork/internal/metrics"
	"github.com/estuary/vizwork/internal/objectstore"
	"github.com/estuary/vizwork/internal/pipeline"
	"github.com/estuary/vizwork/internal/status"
	"github.com/estuary/vizwork/internal/tracing"
)

// ObjectStore is the narrow object-store surface the handler needs.
type ObjectStore interface {
	Upload(ctx context.Context, html []byte, meta objectstore.Metadata) (string, error)
}

// Handler processes exactly one inbound message to completion, per §4.G.
type Handler struct {
	Orchestrator *pipeline.Orchestrator
	ObjectStore  ObjectStore
	Broker       status.Broker
	Log          logging.Logger
	Metrics      *metrics.Sink
}

// Handle decodes, validates, runs the pipeline, uploads the artifact,
// publishes a terminal status, and returns the ack/nak disposition the
// caller should apply to msg (it never calls msg.Ack/Nak itself, so
// callers retain control over broker interaction and can test this
// function without a real broker.Msg).
func (h *Handler) Handle(ctx context.Context, msg broker.Msg) (ack bool) {
	start := time.Now()

	spanCtx, span := tracing.StartConsumerSpan(ctx, msg.Headers(), "", 0, 0)
	defer span.End()

	var env jobs.Envelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		tracing.RecordError(span, err)
		h.Metrics.JobsFailed.WithLabelValues(string(vizerrors.KindJSONDecode)).Inc()
		h.Log.WithFields(logging.Fields{"error": err}).Warn("worker: poison-pill message, json decode failed")
		return true
	}

	if err := env.Validate(); err != nil {
		tracing.RecordError(span, err)
		h.Metrics.JobsFailed.WithLabelValues(string(vizerrors.KindValidation)).Inc()
		h.Log.WithFields(logging.Fields{"error": err, "job_id": env.JobID}).Warn("worker: poison-pill message, validation failed")
		return true
	}
	env.VisualizationConfig.ApplyDefaults()
	tracing.SetJobAttributes(span, env.JobID.String(), env.TransformID, env.VisualizationID)

	h.Metrics.JobsStarted.Inc()
	h.Metrics.ActiveJobs.Inc()
	defer h.Metrics.ActiveJobs.Dec()

	publisher := status.NewPublisher(h.Broker, h.Log, &env)
	publisher.Starting(spanCtx)

	result, err := h.Orchestrator.Run(spanCtx, &env, publisher)
	durationMs := time.Since(start).Milliseconds()

	if err != nil {
		tracing.RecordError(span, err)
		kind, underlying := vizerrors.As(err)
		h.Metrics.JobsFailed.WithLabelValues(string(kind)).Inc()
		h.Log.WithFields(logging.Fields{"job_id": env.JobID, "kind": kind, "error": underlying}).
			Error("worker: job failed")
		if pubErr := publisher.Failed(spanCtx, err.Error(), durationMs); pubErr != nil {
			h.Metrics.JobsFailed.WithLabelValues(string(vizerrors.KindPublish)).Inc()
			return vizerrors.Ackable(vizerrors.KindPublish)
		}
		return vizerrors.Ackable(kind)
	}

	meta := objectstore.Metadata{
		Owner:           env.OwnerID,
		TransformID:     env.TransformID,
		VisualizationID: env.VisualizationID,
		Timestamp:       time.Now(),
	}
	key, uploadErr := h.ObjectStore.Upload(spanCtx, result.HTML, meta)
	if uploadErr != nil {
		jerr := vizerrors.New(vizerrors.KindUpload, uploadErr)
		tracing.RecordError(span, jerr)
		h.Metrics.JobsFailed.WithLabelValues(string(vizerrors.KindUpload)).Inc()
		h.Log.WithFields(logging.Fields{"job_id": env.JobID, "error": uploadErr}).Error("worker: upload failed")
		if pubErr := publisher.Failed(spanCtx, jerr.Error(), time.Since(start).Milliseconds()); pubErr != nil {
			h.Metrics.JobsFailed.WithLabelValues(string(vizerrors.KindPublish)).Inc()
			return vizerrors.Ackable(vizerrors.KindPublish)
		}
		return vizerrors.Ackable(vizerrors.KindUpload)
	}

	if pubErr := publisher.Success(spanCtx, key, result.PointCount, result.ClusterCount, time.Since(start).Milliseconds(), map[string]any{
		"cluster_labels": result.Labels,
	}); pubErr != nil {
		h.Metrics.JobsFailed.WithLabelValues(string(vizerrors.KindPublish)).Inc()
		return vizerrors.Ackable(vizerrors.KindPublish)
	}

	h.Metrics.JobsSucceeded.Inc()
	return true
}
