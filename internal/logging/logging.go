// Package logging wires sirupsen/logrus the way the teacher does in
// cmd/flow-ingester/main.go and go/flow/ops/forward_logs.go:
// log.WithFields(log.Fields{...}).Info/Warn/Error(...), with one logger
// built by New at process startup and passed explicitly to components.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Fields is a type alias so callers don't need to import logrus directly.
type Fields = logrus.Fields

// Logger is the subset of *logrus.Logger the rest of this worker depends
// on, kept narrow so tests can substitute a recording implementation.
type Logger = logrus.FieldLogger

// New builds the process-wide logger. level is parsed with
// logrus.ParseLevel; an invalid level falls back to Info, matching the
// teacher's tolerant config-parsing style (mbp.Must is reserved for
// genuinely fatal startup errors, not a cosmetic log-level typo).
func New(level string, json bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	if json {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)

	return log
}
