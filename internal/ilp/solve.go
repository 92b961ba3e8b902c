package ilp

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// SolverKind selects which external MIP solver Extract invokes.
type SolverKind string

const (
	SolverCBC    SolverKind = "cbc"
	SolverGurobi SolverKind = "gurobi"
)

// runSolver invokes the configured solver against lpPath, writing combined
// stdout+stderr to logPath and the solution to solPath. It polls the child
// every 50ms (§5 "Suspension points") and, on timeout, kills the whole
// process group (the solver may spawn helpers) and reaps it rather than
// leaving a zombie.
func runSolver(cfg config, lpPath, solPath, logPath string) (timedOut bool, err error) {
	logFile, err := os.Create(logPath)
	if err != nil {
		return false, fmt.Errorf("ilp: open log file: %w", err)
	}
	defer logFile.Close()

	var cmd *exec.Cmd
	switch cfg.solver {
	case SolverGurobi:
		cmd = exec.Command("gurobi_cl",
			fmt.Sprintf("ResultFile=%s", solPath),
			fmt.Sprintf("TimeLimit=%g", cfg.timeout.Seconds()),
			"Threads=1",
			lpPath,
		)
	case SolverCBC, "":
		cmd = exec.Command("cbc", lpPath, "solve", "branch", "solu", solPath)
	default:
		return false, fmt.Errorf("ilp: unknown solver %q", cfg.solver)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("ilp: %w: %v", ErrSolverFailed, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	deadline := time.Now().Add(cfg.timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case werr := <-done:
			if werr != nil {
				var exitErr *exec.ExitError
				if errors.As(werr, &exitErr) {
					return false, fmt.Errorf("ilp: %w: exit status %d", ErrSolverFailed, exitErr.ExitCode())
				}
				return false, fmt.Errorf("ilp: %w: %v", ErrSolverFailed, werr)
			}
			return false, nil
		case <-ticker.C:
			if time.Now().After(deadline) {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
				<-done
				return true, nil
			}
		}
	}
}

// checkSolverLog scans the solver's combined log for an explicit error
// marker even when the process exits zero, mirroring extractRegionILP's
// post-hoc "ERROR"/"Error" substring scan of cbc's output.
func checkSolverLog(logPath string) error {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return fmt.Errorf("ilp: read solver log: %w", err)
	}
	text := string(data)
	if strings.Contains(text, "ERROR") || strings.Contains(text, "Error") {
		return fmt.Errorf("ilp: %w: solver reported an error:\n%s", ErrSolverFailed, text)
	}
	return nil
}
