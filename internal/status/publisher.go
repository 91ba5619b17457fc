// Package status publishes interim and terminal status envelopes to the
// hierarchical subject described in spec.md §4.B: the subject is computed
// once per job and reused for every publish; publish failures are logged
// but never fail the job (the broker's at-least-once delivery already
// guarantees redelivery of unacknowledged work).
package status

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/estuary/vizwork/internal/jobs"
	"github.com/estuary/vizwork/internal/logging"
)

// Broker is the narrow publish surface this package depends on — see
// DESIGN NOTES "Progress callback": production wires *broker.Client here,
// tests inject a recording fake.
type Broker interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Subject computes the hierarchical status subject of spec.md §4.B:
// transforms.visualization.status.{owner}.{embedded_dataset_id}.{transform_id}
func Subject(owner string, embeddedDatasetID, transformID int64) string {
	return fmt.Sprintf("transforms.visualization.status.%s.%d.%d", owner, embeddedDatasetID, transformID)
}

// Publisher emits status envelopes for exactly one job, on a subject
// computed once at construction.
type Publisher struct {
	broker  Broker
	log     logging.Logger
	subject string

	jobID           jobs.ID
	transformID     int64
	visualizationID int64
	ownerID         string
}

func NewPublisher(broker Broker, log logging.Logger, env *jobs.Envelope) *Publisher {
	return &Publisher{
		broker:          broker,
		log:             log,
		subject:         Subject(env.OwnerID, env.EmbeddedDatasetID, env.TransformID),
		jobID:           env.JobID,
		transformID:     env.TransformID,
		visualizationID: env.VisualizationID,
		ownerID:         env.OwnerID,
	}
}

// Subject returns this publisher's computed subject, mostly useful in tests.
func (p *Publisher) Subject() string { return p.subject }

// publish marshals and sends env, returning any error to the caller.
// Interim callers (Progress) ignore it per §4.B's fire-and-forget
// contract for processing envelopes; terminal callers (Success, Failed)
// propagate it so the worker loop can nak on a failed terminal publish,
// per §4.G step 5 and the publish_error row of §7's taxonomy.
func (p *Publisher) publish(ctx context.Context, env jobs.StatusEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		p.log.WithFields(logging.Fields{"job_id": p.jobID, "error": err}).
			Error("status: failed to marshal envelope")
		return err
	}
	if err := p.broker.Publish(ctx, p.subject, data); err != nil {
		p.log.WithFields(logging.Fields{"job_id": p.jobID, "subject": p.subject, "error": err}).
			Warn("status: publish failed")
		return err
	}
	return nil
}

// Starting emits the mandatory starting/0 envelope that must precede the
// first stage, per spec.md §4.B.
func (p *Publisher) Starting(ctx context.Context) {
	p.Progress(ctx, "starting", 0)
}

// Progress emits an interim envelope carrying (stage, progress_percent).
// Callers are responsible for progress_percent being monotonically
// non-decreasing within a job, per §4.B. Publish failures are logged and
// swallowed: interim envelopes are best-effort, only the terminal
// envelope's publish outcome determines ack/nak.
func (p *Publisher) Progress(ctx context.Context, stage string, percent int) {
	_ = p.publish(ctx, jobs.StatusEnvelope{
		JobID:           p.jobID,
		TransformID:     p.transformID,
		VisualizationID: p.visualizationID,
		OwnerID:         p.ownerID,
		Status:          jobs.StatusProcessing,
		Stats: map[string]any{
			"stage":            stage,
			"progress_percent": percent,
		},
	})
}

// Success emits the terminal success envelope and reports whether the
// publish itself succeeded, per §4.G step 5.
func (p *Publisher) Success(ctx context.Context, objectKey string, pointCount, clusterCount int, durationMs int64, stats map[string]any) error {
	key := objectKey
	pc := pointCount
	cc := clusterCount
	dur := durationMs
	return p.publish(ctx, jobs.StatusEnvelope{
		JobID:            p.jobID,
		TransformID:      p.transformID,
		VisualizationID:  p.visualizationID,
		OwnerID:          p.ownerID,
		Status:           jobs.StatusSuccess,
		ObjectKey:        &key,
		PointCount:       &pc,
		ClusterCount:     &cc,
		ProcessingMillis: &dur,
		Stats:            stats,
	})
}

// Failed emits the terminal failed envelope and reports whether the
// publish itself succeeded, per §4.G step 5. The message is a one-line
// description built from the error's kind and text (§7); no stack trace
// ever crosses the wire.
func (p *Publisher) Failed(ctx context.Context, message string, durationMs int64) error {
	dur := durationMs
	return p.publish(ctx, jobs.StatusEnvelope{
		JobID:            p.jobID,
		TransformID:      p.transformID,
		VisualizationID:  p.visualizationID,
		OwnerID:          p.ownerID,
		Status:           jobs.StatusFailed,
		ErrorMessage:     &message,
		ProcessingMillis: &dur,
	})
}
