package jobs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDRoundTripsAsLowercaseHex(t *testing.T) {
	id := NewID()

	data, err := json.Marshal(id)
	require.NoError(t, err)

	var s string
	require.NoError(t, json.Unmarshal(data, &s))
	require.Len(t, s, 32)
	require.Regexp(t, "^[0-9a-f]{32}$", s)

	var roundTripped ID
	require.NoError(t, json.Unmarshal(data, &roundTripped))
	require.Equal(t, id, roundTripped)
}

func TestEnvelopeValidateRejectsNonPositiveIDs(t *testing.T) {
	env := Envelope{
		TransformID:       0,
		VisualizationID:   100,
		EmbeddedDatasetID: 7,
		OwnerID:           "u1",
		CollectionName:    "coll",
	}
	err := env.Validate()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "visualization_transform_id", verr.Field)
}

func TestEnvelopeValidateRejectsEmptyCollection(t *testing.T) {
	env := Envelope{
		TransformID:       42,
		VisualizationID:   100,
		EmbeddedDatasetID: 7,
		OwnerID:           "u1",
	}
	require.Error(t, env.Validate())
}

func TestEnvelopeValidateRejectsUnknownProvider(t *testing.T) {
	env := Envelope{
		TransformID:       42,
		VisualizationID:   100,
		EmbeddedDatasetID: 7,
		OwnerID:           "u1",
		CollectionName:    "coll",
		LLMConfig:         &LLMConfig{Provider: "bogus"},
	}
	require.Error(t, env.Validate())
}

func TestLLMConfigUsable(t *testing.T) {
	require.False(t, (*LLMConfig)(nil).Usable())
	require.True(t, (&LLMConfig{Provider: ProviderInternal}).Usable())
	require.False(t, (&LLMConfig{Provider: ProviderCohere}).Usable())
	require.True(t, (&LLMConfig{Provider: ProviderCohere, APIKey: "k"}).Usable())
}

func TestApplyDefaultsFillsZeroFields(t *testing.T) {
	var c VisualizationConfig
	c.ApplyDefaults()
	require.Equal(t, DefaultVisualizationConfig(), c)

	c2 := VisualizationConfig{Neighbors: 30}
	c2.ApplyDefaults()
	require.Equal(t, 30, c2.Neighbors)
	require.Equal(t, DefaultVisualizationConfig().MinDist, c2.MinDist)
}

func TestLLMConfigKnobsCapturesUnknownKeysInExtra(t *testing.T) {
	var k LLMConfigKnobs
	raw := `{"max_tokens": 80, "top_p": 0.9, "stop_sequences": ["\n\n"]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &k))

	require.Equal(t, 80, k.MaxTokensOrDefault())
	require.Equal(t, 0.9, k.Extra["top_p"])
	require.Equal(t, []any{"\n\n"}, k.Extra["stop_sequences"])
	require.NotContains(t, k.Extra, "max_tokens")
}

func TestLLMConfigKnobsExtraNilWhenNoUnknownKeys(t *testing.T) {
	var k LLMConfigKnobs
	require.NoError(t, json.Unmarshal([]byte(`{"max_tokens": 10}`), &k))
	require.Nil(t, k.Extra)
}

func TestStatusEnvelopeOmitsNulls(t *testing.T) {
	env := StatusEnvelope{
		JobID:           NewID(),
		TransformID:     42,
		VisualizationID: 100,
		OwnerID:         "u1",
		Status:          StatusProcessing,
	}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.NotContains(t, raw, "objectKey")
	require.NotContains(t, raw, "pointCount")
	require.NotContains(t, raw, "clusterCount")
	require.NotContains(t, raw, "processingDurationMs")
	require.NotContains(t, raw, "errorMessage")
	require.Contains(t, raw, "status")
}
