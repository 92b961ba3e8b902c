package appconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsToCBC(t *testing.T) {
	cfg, err := Load(Source{})
	require.NoError(t, err)
	require.Equal(t, SolverCBC, cfg.ILPSolver)
	require.Equal(t, 10, cfg.ILPTimeoutSeconds)
}

func TestLoadRejectsUnknownSolver(t *testing.T) {
	_, err := Load(Source{ILPSolver: "bogus"})
	require.Error(t, err)
}

func TestLoadRejectsTimeILPWithoutReportPath(t *testing.T) {
	_, err := Load(Source{TimeILP: true})
	require.Error(t, err)
}

func TestLoadAcceptsTimeILPWithReportPath(t *testing.T) {
	cfg, err := Load(Source{TimeILP: true, ReportRegionTimingsPath: "/tmp/report.json"})
	require.NoError(t, err)
	require.True(t, cfg.TimeILP)
	require.Equal(t, "/tmp/report.json", cfg.ReportRegionTimingsPath)
}

func TestLoadRejectsNoMinimizeWithoutILPMode(t *testing.T) {
	_, err := Load(Source{ILPNoMinimize: true})
	require.Error(t, err)
}

func TestLoadGurobiSolverSelection(t *testing.T) {
	cfg, err := Load(Source{ILPSolver: "gurobi", ILPMode: true})
	require.NoError(t, err)
	require.Equal(t, SolverGurobi, cfg.ILPSolver)
}
