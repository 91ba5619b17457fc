// Package config defines the worker's process-level configuration,
// grouped and env-namespaced the way cmd/flow-ingester/main.go groups its
// own Config with github.com/jessevdk/go-flags struct tags.
package config

import (
	"time"

	flags "github.com/jessevdk/go-flags"
)

// Config is the top-level configuration object of the vizwork worker.
type Config struct {
	Broker struct {
		URL            string        `long:"url" env:"URL" default:"nats://127.0.0.1:4222" description:"NATS broker URL"`
		CredsFile      string        `long:"creds-file" env:"CREDS_FILE" description:"optional NATS user-JWT credentials file"`
		Stream         string        `long:"stream" env:"STREAM" default:"VISUALIZATION_TRANSFORMS" description:"durable stream name"`
		Subject        string        `long:"subject" env:"SUBJECT" default:"workers.visualization-transform" description:"inbound job subject"`
		Consumer       string        `long:"consumer" env:"CONSUMER" default:"visualization-transform-workers" description:"durable consumer name"`
		FetchBatch     int           `long:"fetch-batch" env:"FETCH_BATCH" default:"10" description:"max messages per fetch"`
		FetchTimeout   time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"5s" description:"per-fetch wait timeout"`
		MaxAckPending  int           `long:"max-ack-pending" env:"MAX_ACK_PENDING" default:"10" description:"max outstanding unacknowledged messages"`
		BindRetries    int           `long:"bind-retries" env:"BIND_RETRIES" default:"30" description:"consumer bind/create attempts at startup"`
		BindRetryDelay time.Duration `long:"bind-retry-delay" env:"BIND_RETRY_DELAY" default:"2s" description:"delay between bind/create attempts"`
	} `group:"Broker" namespace:"broker" env-namespace:"VIZWORK_BROKER"`

	Job struct {
		Timeout      time.Duration `long:"timeout" env:"TIMEOUT" default:"3600s" description:"overall per-job pipeline budget"`
		MaxPoints    int           `long:"max-points" env:"MAX_POINTS" default:"100000000" description:"vector sampling cap (MAX_VISUALIZATION_POINTS)"`
	} `group:"Job" namespace:"job" env-namespace:"VIZWORK_JOB"`

	ObjectStore struct {
		Bucket string `long:"bucket" env:"BUCKET" required:"true" description:"object-store bucket name"`
	} `group:"ObjectStore" namespace:"objectstore" env-namespace:"VIZWORK_OBJECTSTORE"`

	LLM struct {
		InternalBaseURL string `long:"internal-base-url" env:"INTERNAL_BASE_URL" default:"http://localhost:11434" description:"internal inference endpoint base URL"`
	} `group:"LLM" namespace:"llm" env-namespace:"VIZWORK_LLM"`

	Health struct {
		Port int `long:"port" env:"PORT" default:"8080" description:"health endpoint port"`
	} `group:"Health" namespace:"health" env-namespace:"VIZWORK_HEALTH"`

	Drain struct {
		Budget time.Duration `long:"budget" env:"BUDGET" default:"300s" description:"graceful drain budget on shutdown"`
	} `group:"Drain" namespace:"drain" env-namespace:"VIZWORK_DRAIN"`

	Log struct {
		Level string `long:"level" env:"LEVEL" default:"info" description:"log level"`
		JSON  bool   `long:"json" env:"JSON" description:"emit JSON-formatted logs"`
	} `group:"Logging" namespace:"log" env-namespace:"VIZWORK_LOG"`
}

// Parse parses argv plus the environment into a Config, using go-flags'
// own precedence rules (explicit flag > env var > default).
func Parse(argv []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(argv); err != nil {
		return nil, err
	}
	return &cfg, nil
}
