// Package objectstore is the object-store client of spec.md §4.C,
// generalized from the teacher's read-only GCS client in
// go/flow/builds.go (a lazily-initialized, mutex-guarded
// *storage.Client) into a full put/presign/delete client: this worker
// writes the rendered artifact, optionally presigns it, and optionally
// deletes it (the "admin paths" spec.md calls optional).
package objectstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const (
	contentType   = "text/html; charset=utf-8"
	connectTimeout = 5 * time.Second
	readTimeout    = 30 * time.Second
	maxAttempts    = 3
)

// Metadata is the object metadata attached on upload, per §4.C.
type Metadata struct {
	Owner           string
	TransformID     int64
	VisualizationID int64
	Timestamp       time.Time
}

func (m Metadata) asMap() map[string]string {
	return map[string]string{
		"owner":            m.Owner,
		"transform-id":     fmt.Sprintf("%d", m.TransformID),
		"visualization-id": fmt.Sprintf("%d", m.VisualizationID),
		"timestamp":        m.Timestamp.UTC().Format(time.RFC3339),
	}
}

// Client is a single-bucket object-store client. The bucket name is
// injected by environment (§4.C, §6.6); the client never auto-creates
// buckets in production paths.
type Client struct {
	bucket string

	mu   sync.Mutex
	gcs  *storage.Client
}

// New constructs a Client bound to bucket. The underlying GCS client is
// initialized lazily on first use, mirroring go/flow/builds.go's
// BuildService.gsClient.
func New(bucket string) *Client {
	return &Client{bucket: bucket}
}

func (c *Client) client(ctx context.Context) (*storage.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gcs != nil {
		return c.gcs, nil
	}
	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	gcs, err := storage.NewClient(cctx, option.WithScopes(storage.ScopeReadWrite))
	if err != nil {
		return nil, fmt.Errorf("objectstore: new client: %w", err)
	}
	c.gcs = gcs
	return gcs, nil
}

// Key constructs the deterministic key for a visualization artifact, per
// §4.C: visualizations/{transform_id}/visualization-{ISO8601-UTC-Z}.html
func Key(transformID int64, ts time.Time) string {
	return fmt.Sprintf("visualizations/%d/visualization-%s.html", transformID, ts.UTC().Format("2006-01-02T15:04:05Z"))
}

// Upload writes html to the deterministic key for this job and returns
// the full key on success. Makes up to maxAttempts attempts, retrying
// immediately after any write error; errors are not classified as
// transient or permanent, and there is no delay or rate adaptation
// between attempts.
func (c *Client) Upload(ctx context.Context, html []byte, meta Metadata) (string, error) {
	gcs, err := c.client(ctx)
	if err != nil {
		return "", err
	}
	key := Key(meta.TransformID, meta.Timestamp)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.putOnce(ctx, gcs, key, html, meta); err != nil {
			lastErr = err
			continue
		}
		return key, nil
	}
	return "", fmt.Errorf("objectstore: upload %s failed after %d attempts: %w", key, maxAttempts, lastErr)
}

func (c *Client) putOnce(ctx context.Context, gcs *storage.Client, key string, html []byte, meta Metadata) error {
	wctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	w := gcs.Bucket(c.bucket).Object(key).NewWriter(wctx)
	w.ContentType = contentType
	w.Metadata = meta.asMap()

	if _, err := w.Write(html); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// PresignGet returns a time-limited signed URL for reading key, valid
// for ttl. This is the optional "read" path spec.md §4.C mentions.
func (c *Client) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	gcs, err := c.client(ctx)
	if err != nil {
		return "", err
	}
	return gcs.Bucket(c.bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
}

// Delete removes key. This is the optional "admin" path spec.md §4.C
// mentions; production job handling never calls it (artifacts are
// retained), but operator tooling can.
func (c *Client) Delete(ctx context.Context, key string) error {
	gcs, err := c.client(ctx)
	if err != nil {
		return err
	}
	dctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	return gcs.Bucket(c.bucket).Object(key).Delete(dctx)
}
