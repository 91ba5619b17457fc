package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAsUnwrapsJobError(t *testing.T) {
	inner := errors.New("boom")
	wrapped := New(KindUpload, inner)

	kind, err := As(wrapped)
	require.Equal(t, KindUpload, kind)
	require.Equal(t, inner, err)
}

func TestAsDefaultsToUnexpected(t *testing.T) {
	kind, err := As(errors.New("plain"))
	require.Equal(t, KindUnexpected, kind)
	require.EqualError(t, err, "plain")
}

func TestAckableDispositions(t *testing.T) {
	for _, k := range []Kind{KindValidation, KindJSONDecode, KindTimeout, KindVectorStore, KindRendering, KindUpload} {
		require.True(t, Ackable(k), "%s should ack", k)
	}
	for _, k := range []Kind{KindPublish, KindUnexpected} {
		require.False(t, Ackable(k), "%s should nak", k)
	}
}
