package mend

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPolicy(t *testing.T) {
	t.Setenv("MEND_RETRIES", "3")
	path := writePolicy(t, `
max_retry_attempts: ${MEND_RETRIES}
retry_delay: 250ms
revert_retry_delay: 2s
`)

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	require.Equal(t, uint(3), p.MaxRetryAttempts)
	require.Equal(t, 250*time.Millisecond, p.RetryDelay)
	require.Equal(t, uint(5), p.MaxRevertAttempts, "absent fields keep defaults")
	require.Equal(t, 2*time.Second, p.RevertDelay())
}

func TestLoadPolicy_RevertDelayFollowsRetryDelay(t *testing.T) {
	p, err := LoadPolicy(writePolicy(t, "retry_delay: 40ms\n"))
	require.NoError(t, err)
	require.Nil(t, p.RevertRetryDelay)
	require.Equal(t, 40*time.Millisecond, p.RevertDelay())
}

func TestLoadPolicy_Errors(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "failed to read policy file")

	_, err = LoadPolicy(writePolicy(t, "max_retry_attempts: [1, 2]\n"))
	require.ErrorContains(t, err, "failed to parse policy file")
}
