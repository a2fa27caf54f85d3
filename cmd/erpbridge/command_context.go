package main

import (
	"os"
	"sync"

	"github.com/erpbridge/erpbridge/internal/logging"
	"github.com/spf13/cobra"
)

// annotationStructuredLog marks commands whose output is structured logs rather than plain text.
const annotationStructuredLog = "erpbridge/structured-log"

type commandExecutionContext struct {
	CommandPath       string
	UsesStructuredLog bool
}

var (
	execCtxMu sync.Mutex
	execCtx   commandExecutionContext
)

func setCommandExecutionContext(ctx commandExecutionContext) {
	execCtxMu.Lock()
	defer execCtxMu.Unlock()
	execCtx = ctx
}

func resetCommandExecutionContext() {
	setCommandExecutionContext(commandExecutionContext{})
}

func currentCommandExecutionContext() commandExecutionContext {
	execCtxMu.Lock()
	defer execCtxMu.Unlock()
	return execCtx
}

func structuredLog(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationStructuredLog] = "true"
	return cmd
}

func commandUsesStructuredLogging(cmd *cobra.Command) bool {
	return cmd != nil && cmd.Annotations[annotationStructuredLog] == "true"
}

// prepareCommand records the running command and installs the structured logger for commands that use it.
func prepareCommand(cmd *cobra.Command, _ []string) error {
	ctx := commandExecutionContext{
		CommandPath:       cmd.CommandPath(),
		UsesStructuredLog: commandUsesStructuredLogging(cmd),
	}
	setCommandExecutionContext(ctx)
	if !ctx.UsesStructuredLog {
		return nil
	}
	_, err := logging.BootstrapFromEnv(logging.BootstrapOptions{Command: ctx.CommandPath, Writer: os.Stdout})
	return err
}
