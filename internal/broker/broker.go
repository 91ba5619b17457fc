// Package broker implements the durable, pull-based NATS JetStream client
// described in spec.md §4.A: one long-lived connection, idempotent
// bind-or-create consumer startup, batch fetch with a timeout, ack/nak,
// and publish to a computed subject.
//
// Grounded on the JetStream usage in
// other_examples/0d28e7c9_C360Studio-semspec__processor-developer-component.go.go
// (ConsumerConfig, CreateOrUpdateConsumer, Fetch(n, FetchMaxWait(d)),
// msg.Ack()/msg.Nak()) and
// other_examples/25db3955_WessleyAI-wessley-mvp__engine-ingest-ingest.go.go
// (header access on inbound messages).
package broker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/estuary/vizwork/internal/backoff"
	vizerrors "github.com/estuary/vizwork/internal/errors"
	"github.com/estuary/vizwork/internal/logging"
)

// Config configures the consumer-binding protocol of §4.A.
type Config struct {
	URL            string
	CredsFile      string
	Stream         string
	Subject        string
	Consumer       string
	AckWait        time.Duration // default 1800s
	MaxDeliver     int           // default 3
	MaxAckPending  int           // default 10
	BindRetries    int           // default 30
	BindRetryDelay time.Duration // default 2s
}

func (c *Config) setDefaults() {
	if c.AckWait == 0 {
		c.AckWait = 1800 * time.Second
	}
	if c.MaxDeliver == 0 {
		c.MaxDeliver = 3
	}
	if c.MaxAckPending == 0 {
		c.MaxAckPending = 10
	}
	if c.BindRetries == 0 {
		c.BindRetries = 30
	}
	if c.BindRetryDelay == 0 {
		c.BindRetryDelay = 2 * time.Second
	}
}

// Msg is the subset of jetstream.Msg the rest of this worker depends on,
// narrowed so tests can inject a fake without dragging in a real NATS
// connection.
type Msg interface {
	Data() []byte
	Headers() map[string][]string
	Ack() error
	Nak() error
}

type jetstreamMsg struct{ m jetstream.Msg }

func (j jetstreamMsg) Data() []byte { return j.m.Data() }

func (j jetstreamMsg) Headers() map[string][]string {
	out := make(map[string][]string, len(j.m.Headers()))
	for k, v := range j.m.Headers() {
		out[k] = v
	}
	return out
}

func (j jetstreamMsg) Ack() error { return j.m.Ack() }
func (j jetstreamMsg) Nak() error { return j.m.Nak() }

// Client is a durable, long-lived connection to the broker with a bound
// pull consumer and the ability to publish to arbitrary subjects.
type Client struct {
	cfg  Config
	log  logging.Logger
	conn *nats.Conn
	js   jetstream.JetStream
	con  jetstream.Consumer

	consecutiveErrors atomic.Int64
}

// Connect opens the NATS connection (optionally authenticating with a
// user-JWT credentials file, parsed with golang-jwt/jwt/v5 purely to
// fail fast on a malformed file before handing it to nats.UserCredentials)
// and performs the idempotent bind-or-create consumer sequence.
func Connect(ctx context.Context, cfg Config, log logging.Logger) (*Client, error) {
	cfg.setDefaults()

	var opts []nats.Option
	if cfg.CredsFile != "" {
		if err := validateCredsFile(cfg.CredsFile); err != nil {
			return nil, fmt.Errorf("broker: invalid creds file: %w", err)
		}
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("broker: connect: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("broker: jetstream: %w", err)
	}

	c := &Client{cfg: cfg, log: log, conn: conn, js: js}

	if err := c.bindOrCreateWithRetry(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return c, nil
}

// validateCredsFile sanity-checks that the file contains a parseable JWT
// segment (NATS .creds files embed a JWT between -----BEGIN NATS USER
// JWT----- markers); it does not verify a signature, since the worker has
// no public key of its own to check against — that is the broker's job.
func validateCredsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	const beginMarker = "-----BEGIN NATS USER JWT-----"
	idx := strings.Index(string(data), beginMarker)
	if idx < 0 {
		return fmt.Errorf("missing %q marker", beginMarker)
	}
	rest := string(data)[idx+len(beginMarker):]
	end := strings.Index(rest, "-----END")
	if end < 0 {
		return fmt.Errorf("missing END marker")
	}
	token := strings.TrimSpace(rest[:end])

	parser := jwt.NewParser()
	_, _, err = parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return fmt.Errorf("parse embedded JWT: %w", err)
	}
	return nil
}

// bindOrCreateWithRetry implements the three-step idempotent startup
// protocol of spec.md §4.A: bind, else create, else retry the whole
// sequence with a fixed delay for up to BindRetries attempts. Only
// "stream does not exist" is treated as retryable; anything else from
// the create attempt is permanent.
func (c *Client) bindOrCreateWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.BindRetries; attempt++ {
		con, err := c.js.Consumer(ctx, c.cfg.Stream, c.cfg.Consumer)
		if err == nil {
			c.con = con
			return nil
		}
		// Bind failed — fall through and attempt create below, whether
		// the consumer or its stream doesn't exist yet.

		stream, streamErr := c.js.Stream(ctx, c.cfg.Stream)
		if streamErr != nil {
			if errors.Is(streamErr, jetstream.ErrStreamNotFound) {
				lastErr = streamErr
				c.log.WithFields(logging.Fields{"attempt": attempt, "stream": c.cfg.Stream}).
					Warn("broker: stream not found, retrying bind/create")
				if waitErr := sleep(ctx, c.cfg.BindRetryDelay); waitErr != nil {
					return waitErr
				}
				continue
			}
			return fmt.Errorf("broker: permanent error resolving stream %s: %w", c.cfg.Stream, streamErr)
		}

		con, createErr := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
			Durable:       c.cfg.Consumer,
			FilterSubject: c.cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       c.cfg.AckWait,
			MaxDeliver:    c.cfg.MaxDeliver,
			MaxAckPending: c.cfg.MaxAckPending,
		})
		if createErr == nil {
			c.con = con
			return nil
		}

		return fmt.Errorf("broker: permanent error creating consumer %s: %w", c.cfg.Consumer, createErr)
	}
	return fmt.Errorf("broker: exhausted %d bind/create attempts: %w", c.cfg.BindRetries, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isTransient recognizes the cluster-unavailable error strings called out
// in spec.md §4.A ("no responders", "service unavailable").
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "no responders") || strings.Contains(s, "service unavailable")
}

// Fetch pulls up to batch messages, waiting up to timeout. An empty
// result on timeout is normal and silent (§4.A). Transient
// cluster-unavailable errors are retried internally with capped
// exponential backoff and never surface as a job failure; the
// consecutive-error counter resets on any successful fetch.
func (c *Client) Fetch(ctx context.Context, batch int, timeout time.Duration) ([]Msg, error) {
	for attempt := 0; ; attempt++ {
		msgs, err := c.con.Fetch(batch, jetstream.FetchMaxWait(timeout))
		if err != nil {
			if !isTransient(err) {
				return nil, vizerrors.New(vizerrors.KindUnexpected, err)
			}
			n := c.consecutiveErrors.Add(1)
			wait := backoff.Capped(attempt, 30*time.Second)
			c.log.WithFields(logging.Fields{"consecutive_errors": n, "backoff": wait}).
				Warn("broker: transient fetch error, backing off")
			if waitErr := sleep(ctx, wait); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		var out []Msg
		for m := range msgs.Messages() {
			out = append(out, jetstreamMsg{m})
		}
		if fetchErr := msgs.Error(); fetchErr != nil && !errors.Is(fetchErr, context.DeadlineExceeded) {
			if isTransient(fetchErr) {
				n := c.consecutiveErrors.Add(1)
				wait := backoff.Capped(attempt, 30*time.Second)
				c.log.WithFields(logging.Fields{"consecutive_errors": n, "backoff": wait}).
					Warn("broker: transient fetch error, backing off")
				if waitErr := sleep(ctx, wait); waitErr != nil {
					return out, waitErr
				}
				continue
			}
			c.log.WithFields(logging.Fields{"error": fetchErr}).Warn("broker: fetch batch ended with error")
		}

		c.consecutiveErrors.Store(0)
		return out, nil
	}
}

// Publish fire-and-forget publishes data to subject. Callers are
// responsible for logging failures per §4.B; this only wraps the
// underlying publish error.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.js.Publish(ctx, subject, data)
	return err
}

// Close closes the underlying connection. The lifecycle
// controller closes the broker connection last, per §4.H.
func (c *Client) Close() {
	c.conn.Close()
}

