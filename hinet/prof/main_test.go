package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwmeng88/mdp-toolkit/common"
)

func TestProfileWrittenOnFailure(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	// fields larger than the grid cannot be laid out
	err := profiled(dir, func() error {
		return run(options{grid: 4, field: 6, features: 2, samples: 100, block: 50}, logger)
	})
	var te *common.TopologyError
	require.True(t, errors.As(err, &te), "found %v", err)

	info, err := os.Stat(filepath.Join(dir, "cpu.pprof"))
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}
