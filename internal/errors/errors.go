// Package errors implements the error taxonomy of spec.md §7: a closed
// set of kinds, each with a fixed disposition (ack, nak, or swallow) that
// the worker loop and orchestrator dispatch on.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is one of the ten error kinds from spec.md §7's taxonomy table.
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindJSONDecode      Kind = "json_decode_error"
	KindTimeout         Kind = "timeout"
	KindVectorStore     Kind = "vector_store_error"
	KindNaming          Kind = "naming_error"
	KindRendering       Kind = "rendering_error"
	KindUpload          Kind = "upload_error"
	KindPublish         Kind = "publish_error"
	KindBrokerTransient Kind = "broker_transient"
	KindUnexpected      Kind = "unexpected_error"
)

// JobError wraps an underlying error with the kind that determines its
// disposition. It never carries a stack trace, per spec.md §7 ("no stack
// traces cross the wire") — only Kind and a one-line message survive to
// the status envelope.
type JobError struct {
	Kind Kind
	Err  error
}

func New(kind Kind, err error) *JobError {
	return &JobError{Kind: kind, Err: err}
}

func Newf(kind Kind, format string, args ...any) *JobError {
	return &JobError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// As extracts the Kind and underlying error from any error, defaulting
// to KindUnexpected when err was not produced via New/Newf.
func As(err error) (Kind, error) {
	var je *JobError
	if stderrors.As(err, &je) {
		return je.Kind, je.Err
	}
	return KindUnexpected, err
}

// Ackable reports whether the broker message should be positively
// acknowledged (vs. negatively acknowledged to allow redelivery) given
// this kind, per the disposition column of spec.md §7's taxonomy table.
// broker_transient and naming_error never reach this function: the
// former is retried before a job error is ever constructed, and the
// latter is swallowed inside the orchestrator.
func Ackable(kind Kind) bool {
	switch kind {
	case KindValidation, KindJSONDecode, KindTimeout, KindVectorStore, KindRendering, KindUpload:
		return true
	case KindPublish, KindUnexpected:
		return false
	default:
		return false
	}
}
