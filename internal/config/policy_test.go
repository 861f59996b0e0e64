package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/discedric/netbox-license/internal/license/accounting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "licensing.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewPolicyHolderReadsFile(t *testing.T) {
	path := writePolicy(t, `
licensing:
  enforce_parent_consistency: false
  warning_days: 30
  info_days: 120
  progress_floor: 5
`)

	holder, err := NewPolicyHolder(Config{PolicyPath: path}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, accounting.Policy{
		EnforceParentConsistency: false,
		WarningDays:              30,
		InfoDays:                 120,
		ProgressFloor:            5,
	}, holder.Policy())
}

func TestNewPolicyHolderFillsMissingKeys(t *testing.T) {
	path := writePolicy(t, `
licensing:
  warning_days: 60
`)

	holder, err := NewPolicyHolder(Config{PolicyPath: path}, zap.NewNop())
	require.NoError(t, err)

	policy := holder.Policy()
	assert.True(t, policy.EnforceParentConsistency)
	assert.Equal(t, 60, policy.WarningDays)
	assert.Equal(t, 365, policy.InfoDays)
	assert.Equal(t, 10, policy.ProgressFloor)
}

func TestNewPolicyHolderRejectsInvertedBuckets(t *testing.T) {
	path := writePolicy(t, `
licensing:
  warning_days: 200
  info_days: 100
`)

	_, err := NewPolicyHolder(Config{PolicyPath: path}, zap.NewNop())
	assert.Error(t, err)
}

func TestStaticPolicy(t *testing.T) {
	holder := NewStaticPolicy(accounting.DefaultPolicy())
	assert.Equal(t, accounting.DefaultPolicy(), holder.Policy())
}
