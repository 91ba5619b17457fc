package broker

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.setDefaults()
	require.Equal(t, 1800*time.Second, cfg.AckWait)
	require.Equal(t, 3, cfg.MaxDeliver)
	require.Equal(t, 10, cfg.MaxAckPending)
	require.Equal(t, 30, cfg.BindRetries)
	require.Equal(t, 2*time.Second, cfg.BindRetryDelay)
}

func TestIsTransientRecognizesClusterUnavailableErrors(t *testing.T) {
	require.True(t, isTransient(errors.New("nats: no responders available for request")))
	require.True(t, isTransient(errors.New("Service Unavailable")))
	require.False(t, isTransient(errors.New("permission denied")))
	require.False(t, isTransient(nil))
}

func TestValidateCredsFileRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.creds"
	require.NoError(t, os.WriteFile(path, []byte("not a creds file"), 0o600))
	require.Error(t, validateCredsFile(path))
}
