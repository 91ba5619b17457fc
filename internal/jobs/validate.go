package jobs

import "fmt"

// ValidationError reports a structural or semantic violation of the job
// envelope invariants (§3). It is always terminal for the message that
// produced it — see internal/errors.KindValidation.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: field %q: %s", e.Field, e.Msg)
}

// Validate enforces the envelope invariants from spec.md §3: all integer
// identifiers are positive, the collection name is non-empty, and the LLM
// config (if present) names a known provider.
func (e *Envelope) Validate() error {
	if e.TransformID <= 0 {
		return &ValidationError{"visualization_transform_id", "must be positive"}
	}
	if e.VisualizationID <= 0 {
		return &ValidationError{"visualization_id", "must be positive"}
	}
	if e.EmbeddedDatasetID <= 0 {
		return &ValidationError{"embedded_dataset_id", "must be positive"}
	}
	if e.OwnerID == "" {
		return &ValidationError{"owner_id", "must be non-empty"}
	}
	if e.CollectionName == "" {
		return &ValidationError{"collection_name", "must be non-empty"}
	}
	if e.LLMConfig != nil {
		switch e.LLMConfig.Provider {
		case ProviderCohere, ProviderOpenAI, ProviderInternal:
		default:
			return &ValidationError{"llm_config.provider", fmt.Sprintf("unknown provider %q", e.LLMConfig.Provider)}
		}
	}
	return nil
}

// ApplyDefaults fills zero-valued visualization-config fields with the
// documented defaults (§3). The producer API may omit any subset of
// fields; this mirrors the Python original's per-field default handling
// (original_source/crates/worker-visualizations-py/src/models.py) rather
// than rejecting partially-specified configs.
func (c *VisualizationConfig) ApplyDefaults() {
	var d = DefaultVisualizationConfig()
	if c.Neighbors == 0 {
		c.Neighbors = d.Neighbors
	}
	if c.MinDist == 0 {
		c.MinDist = d.MinDist
	}
	if c.Metric == "" {
		c.Metric = d.Metric
	}
	if c.MinClusterSize == 0 {
		c.MinClusterSize = d.MinClusterSize
	}
	if c.MinSamples == 0 {
		c.MinSamples = d.MinSamples
	}
	if c.NamingBatchSize == 0 {
		c.NamingBatchSize = d.NamingBatchSize
	}
	if c.SamplesPerCluster == 0 {
		c.SamplesPerCluster = d.SamplesPerCluster
	}
	if c.Dimensions == 0 {
		c.Dimensions = d.Dimensions
	}
	if c.Theme == "" {
		c.Theme = d.Theme
	}
	if c.LabelWrapWidth == 0 {
		c.LabelWrapWidth = d.LabelWrapWidth
	}
	if c.FontFamily == "" {
		c.FontFamily = d.FontFamily
	}
}
