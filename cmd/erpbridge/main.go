package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/erpbridge/erpbridge/internal/logging"
)

func main() {
	os.Exit(run(Execute, os.Stderr))
}

// run executes the command tree and returns the process exit status, reporting any failure on stderr.
func run(execute func() error, stderr io.Writer) int {
	err := execute()
	status := exitStatus(err)
	if status != exitOK {
		reportFailure(err, status, stderr)
	}
	return status
}

// reportFailure logs through slog for commands that emit structured logs and prints a bare line otherwise.
func reportFailure(err error, status int, stderr io.Writer) {
	cmd := currentCommandExecutionContext()
	if cmd.UsesStructuredLog {
		failureLogger(cmd.CommandPath, stderr).Error(failureMessage(status), "exit_code", status, "err", err)
		return
	}
	if status == exitInterrupted {
		fmt.Fprintln(stderr, "canceled")
		return
	}
	fmt.Fprintln(stderr, err)
}

func failureMessage(status int) string {
	switch status {
	case exitInterrupted:
		return "command canceled"
	case exitUpstream:
		return "erp upstream failed"
	case exitUsage:
		return "invalid command input"
	default:
		return "command failed"
	}
}

func failureLogger(command string, w io.Writer) *slog.Logger {
	cfg, err := logging.LoadConfigFromEnv()
	if err != nil {
		cfg = logging.DefaultConfig()
	}
	return logging.NewLogger(cfg, w, command)
}
