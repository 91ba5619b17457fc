// Package jobs holds the wire types exchanged with the producer API: the
// inbound job envelope and the outbound status envelope, plus the
// visualization and LLM configuration records embedded in the former.
package jobs

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ID is a 128-bit job identifier. On the wire it is a lowercase hex
// string, never a canonical dashed UUID.
type ID [16]byte

// NewID returns a fresh random job id.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID parses a lowercase (or mixed-case) hex string into an ID.
func ParseID(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("parse job id: %w", err)
	}
	if len(b) != 16 {
		return ID{}, fmt.Errorf("parse job id: expected 16 bytes, got %d", len(b))
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

func (id ID) String() string { return hex.EncodeToString(id[:]) }

// MarshalJSON renders the id as a lowercase hex string.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON parses a lowercase hex string into the id.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("job id: expected JSON string")
	}
	parsed, err := ParseID(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// LLMProvider is the closed set of supported naming providers.
type LLMProvider string

const (
	ProviderCohere   LLMProvider = "cohere"
	ProviderOpenAI   LLMProvider = "openai"
	ProviderInternal LLMProvider = "internal"
)

// LLMConfig configures the optional cluster-naming subsystem (§4.F).
// Config is a pass-through bag for unknown keys alongside the explicit
// overrides, per DESIGN NOTES "Configuration bag".
type LLMConfig struct {
	Provider LLMProvider    `json:"provider"`
	Model    string         `json:"model"`
	APIKey   string         `json:"api_key,omitempty"`
	Config   LLMConfigKnobs `json:"config,omitempty"`
}

// LLMConfigKnobs are the explicit, documented overrides extracted out of
// the free-form LLM config bag, plus a passthrough map for anything else.
// Extra is populated by the custom UnmarshalJSON below, not by the
// json tag (which only keeps encoding/json's own struct-decoding from
// treating "Extra" itself as a named key).
type LLMConfigKnobs struct {
	MaxTokens         *int           `json:"max_tokens,omitempty"`
	Temperature       *float64       `json:"temperature,omitempty"`
	SamplesPerCluster *int           `json:"samples_per_cluster,omitempty"`
	Extra             map[string]any `json:"-"`
}

var llmConfigKnobsKnownKeys = []string{"max_tokens", "temperature", "samples_per_cluster"}

// UnmarshalJSON decodes the named overrides and stashes every other key
// present in the JSON object into Extra, satisfying the "explicit fields
// plus a pass-through map for unknown keys" configuration-bag contract
// (spec.md §9) that a bare `json:"-"` tag cannot deliver on its own: that
// tag only stops Extra from unmarshaling *itself*, it does not cause
// sibling keys to land there.
func (k *LLMConfigKnobs) UnmarshalJSON(data []byte) error {
	type alias LLMConfigKnobs
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, known := range llmConfigKnobsKnownKeys {
		delete(raw, known)
	}

	var extra map[string]any
	if len(raw) > 0 {
		extra = make(map[string]any, len(raw))
		for key, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return err
			}
			extra[key] = val
		}
	}

	*k = LLMConfigKnobs(a)
	k.Extra = extra
	return nil
}

const (
	DefaultMaxTokens         = 50
	DefaultTemperature       = 0.3
	DefaultSamplesPerCluster = 5
)

func (k LLMConfigKnobs) MaxTokensOrDefault() int {
	if k.MaxTokens != nil {
		return *k.MaxTokens
	}
	return DefaultMaxTokens
}

func (k LLMConfigKnobs) TemperatureOrDefault() float64 {
	if k.Temperature != nil {
		return *k.Temperature
	}
	return DefaultTemperature
}

func (k LLMConfigKnobs) SamplesPerClusterOrDefault() int {
	if k.SamplesPerCluster != nil && *k.SamplesPerCluster > 0 {
		return *k.SamplesPerCluster
	}
	return DefaultSamplesPerCluster
}

// Usable reports whether this LLM configuration should be exercised for
// naming, per spec.md §4.E's cluster-label protocol: the internal
// provider is always usable (no key required), external providers need a
// non-empty API key.
func (c *LLMConfig) Usable() bool {
	if c == nil {
		return false
	}
	return c.Provider == ProviderInternal || c.APIKey != ""
}

// RenderingConfig is the closed set of rendering parameters from spec.md §3.
type RenderingConfig struct {
	Dimensions      int    `json:"dimensions"`
	Theme           string `json:"theme"`
	LabelWrapWidth  int    `json:"label_wrap_width"`
	FontFamily      string `json:"font_family"`
	PaletteShift    int    `json:"palette_shift"`
	ShowBoundaries  bool   `json:"show_boundaries"`
}

// VisualizationConfig is the full visualization configuration record
// (§3): projection, clustering, naming and rendering parameters, all with
// documented defaults. Unknown JSON fields are ignored by construction
// (there is no catch-all field and we never reject on unknown keys).
type VisualizationConfig struct {
	// Projection parameters.
	Neighbors int     `json:"neighbors"`
	MinDist   float64 `json:"min_dist"`
	Metric    string  `json:"metric"`

	// Clustering parameters.
	MinClusterSize int `json:"min_cluster_size"`
	MinSamples     int `json:"min_samples"`

	// Naming parameters.
	NamingBatchSize    int `json:"naming_batch_size"`
	SamplesPerCluster  int `json:"samples_per_cluster"`

	// Rendering parameters, flattened into the same JSON object per
	// spec.md §6.1 ("visualization_config keys are the union of
	// projection, clustering, naming, and rendering parameters").
	RenderingConfig
}

// DefaultVisualizationConfig returns the documented defaults from
// SPEC_FULL.md §3.
func DefaultVisualizationConfig() VisualizationConfig {
	return VisualizationConfig{
		Neighbors:         15,
		MinDist:           0.1,
		Metric:            "cosine",
		MinClusterSize:    10,
		MinSamples:        5,
		NamingBatchSize:   10,
		SamplesPerCluster: 5,
		RenderingConfig: RenderingConfig{
			Dimensions:     2,
			Theme:          "light",
			LabelWrapWidth: 20,
			FontFamily:     "Inter",
			PaletteShift:   0,
			ShowBoundaries: false,
		},
	}
}

// VectorStoreConfig describes how to reach the collection's vector store.
type VectorStoreConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"api_key,omitempty"`
}

// Envelope is the inbound job message (§3). All integer identifiers are
// positive and CollectionName is non-empty; Validate enforces both.
type Envelope struct {
	JobID               ID                  `json:"job_id"`
	TransformID         int64               `json:"visualization_transform_id"`
	VisualizationID     int64               `json:"visualization_id"`
	OwnerID             string              `json:"owner_id"`
	EmbeddedDatasetID   int64               `json:"embedded_dataset_id"`
	CollectionName      string              `json:"collection_name"`
	VisualizationConfig VisualizationConfig `json:"visualization_config"`
	VectorStore         VectorStoreConfig   `json:"vector_store"`
	LLMConfig           *LLMConfig          `json:"llm_config,omitempty"`
}

// Status is the closed set of terminal/interim status tags (§3).
type Status string

const (
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// StatusEnvelope is the outbound status message (§3, §6.2). Null-valued
// optional fields are omitted at the wire boundary via `omitempty`.
type StatusEnvelope struct {
	JobID             ID             `json:"jobId"`
	TransformID       int64          `json:"transformId"`
	VisualizationID   int64          `json:"visualizationId"`
	OwnerID           string         `json:"ownerId"`
	Status            Status         `json:"status"`
	ObjectKey         *string        `json:"objectKey,omitempty"`
	PointCount        *int           `json:"pointCount,omitempty"`
	ClusterCount      *int           `json:"clusterCount,omitempty"`
	ProcessingMillis  *int64         `json:"processingDurationMs,omitempty"`
	ErrorMessage      *string        `json:"errorMessage,omitempty"`
	Stats             map[string]any `json:"stats,omitempty"`
}

// LabelMap maps a non-negative cluster id to a human label. The noise
// cluster (-1) is never present, per spec.md §3.
type LabelMap map[int]string
