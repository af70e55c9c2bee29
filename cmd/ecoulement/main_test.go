package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calculquebec/cq-formation-ecoulement-chaleur/configs"
	"github.com/calculquebec/cq-formation-ecoulement-chaleur/deploy"
)

func TestDeployCommandCarriesGroupContract(t *testing.T) {
	cfg := configs.Defaults()
	cfg.BasePort = 7000
	cfg.MaxIterations = 800

	cmd := deployCommand("ecoulement", "plaque.png", []string{"10.0.0.1", "10.0.0.2"}, cfg, 25)

	// Workers run without -movie, so the snapshot cadence must reach
	// them on the command line or the collector's frame gathers hang.
	assert.Contains(t, cmd, "-frame-every 25")
	assert.Contains(t, cmd, "-mode tcp")
	assert.Contains(t, cmd, "-image plaque.png")
	assert.Contains(t, cmd, "-hosts 10.0.0.1,10.0.0.2")
	assert.Contains(t, cmd, "-base-port 7000")
	assert.Contains(t, cmd, "-max-iter 800")
}

func TestDeployCommandWithoutSnapshots(t *testing.T) {
	cmd := deployCommand("ecoulement", "plaque.png", []string{"a", "b"}, configs.Defaults(), 0)
	assert.Contains(t, cmd, "-frame-every 0")
}

func TestCheckLaunchReportsFirstFailure(t *testing.T) {
	results := []deploy.Result{
		{Rank: 1, Addr: "10.0.0.1"},
		{Rank: 2, Addr: "10.0.0.2", Err: errors.New("connection refused")},
	}
	err := checkLaunch(results, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rank 2")
	assert.Contains(t, err.Error(), "10.0.0.2")
}

func TestCheckLaunchReportsMissingRanks(t *testing.T) {
	results := []deploy.Result{{Rank: 1, Addr: "10.0.0.1"}}
	err := checkLaunch(results, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3")
}

func TestCheckLaunchAcceptsFullGroup(t *testing.T) {
	results := []deploy.Result{
		{Rank: 1, Addr: "10.0.0.1"},
		{Rank: 2, Addr: "10.0.0.2"},
	}
	assert.NoError(t, checkLaunch(results, 2))
}

func TestWriteChartSkipsSingleIterationRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convergence.png")

	// One recorded iteration is a successful run, not an output failure.
	require.NoError(t, writeChart(path, []float32{0}))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "chart file written for a single-point history")
}

func TestWriteChartDrawsLongerRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convergence.png")
	require.NoError(t, writeChart(path, []float32{0.9, 0.4, 0.2}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, len(data) > 8 && string(data[1:4]) == "PNG", "chart is not a PNG")
}
