// Command toolsched-demo drives the scheduler from a shell: each pair of
// positional arguments is a tool name and its JSON arguments, admitted as
// one batch. Confirmation prompts render to the terminal with a simple
// y/a/n key scheme, read synchronously from stdin one question at a
// time rather than through a full TUI program.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mark3labs/toolsched/internal/config"
	"github.com/mark3labs/toolsched/internal/response"
	"github.com/mark3labs/toolsched/internal/scheduler"
	"github.com/mark3labs/toolsched/internal/tools"
	"github.com/mark3labs/toolsched/internal/toolcall"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		approvalMode string
		allow        []string
		tempDir      string
		configFile   string
	)

	cmd := &cobra.Command{
		Use:   "toolsched-demo <tool> <json-args> [<tool> <json-args> ...]",
		Short: "Run one or more tool calls through the scheduler as a single batch",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args)%2 != 0 {
				return fmt.Errorf("expected tool/args pairs, got %d positional arguments", len(args))
			}

			cfg, err := loadConfig(configFile, tempDir)
			if err != nil {
				return err
			}
			if approvalMode != "" {
				cfg.SetApprovalMode(config.ApprovalMode(approvalMode))
			}
			for _, a := range allow {
				cfg.AddAllowedTool(a)
			}

			registry := tools.NewRegistry(tools.DemoTools(cfg)...)
			logger := log.Default()

			sched := scheduler.New(scheduler.Options{
				Registry:         registry,
				Config:           cfg,
				Logger:           logger,
				ShellToolAliases: []string{"run_shell_command", "shell"},
				OnUpdate:         printUpdate,
			})

			requests := make([]toolcall.ToolRequest, 0, len(args)/2)
			for i := 0; i < len(args); i += 2 {
				requests = append(requests, toolcall.ToolRequest{
					CallID: uuid.NewString(),
					Name:   args[i],
					Args:   json.RawMessage(args[i+1]),
				})
			}

			return sched.Schedule(context.Background(), requests)
		},
	}

	cmd.Flags().StringVar(&approvalMode, "approval-mode", "", "default | auto_edit | yolo")
	cmd.Flags().StringArrayVar(&allow, "allow", nil, "allowlist entry to seed, e.g. bash(git status)")
	cmd.Flags().StringVar(&tempDir, "temp-dir", filepath.Join(os.TempDir(), "toolsched"), "directory for spilled tool output")
	cmd.Flags().StringVar(&configFile, "config", "", "path to a YAML config file")

	return cmd
}

func loadConfig(configFile, tempDir string) (*config.Config, error) {
	if configFile == "" {
		return config.New(tempDir), nil
	}
	return config.LoadFile(configFile)
}

func printUpdate(calls []*toolcall.ToolCall) {
	for _, c := range calls {
		switch c.Status {
		case toolcall.StatusAwaitingApproval:
			details := c.Payload.(toolcall.AwaitingApprovalPayload).Details
			outcome, payload := promptConfirmation(details)
			_ = details.OnConfirm(context.Background(), outcome, payload)
		case toolcall.StatusSuccess, toolcall.StatusError, toolcall.StatusCancelled:
			printTerminal(c)
		}
	}
}

func promptConfirmation(details *toolcall.ConfirmationDetails) (toolcall.ConfirmationOutcome, *toolcall.ConfirmPayload) {
	fmt.Println(details.Title)
	switch v := details.Variant.(type) {
	case toolcall.ExecConfirmation:
		fmt.Printf("  command: %s\n", v.Command)
	case toolcall.EditConfirmation:
		fmt.Println(v.FileDiff)
	case toolcall.MCPConfirmation:
		fmt.Printf("  server: %s tool: %s\n", v.ServerName, v.ToolDisplayName)
	case toolcall.InfoConfirmation:
		fmt.Println(v.Prompt)
	}

	fmt.Print("Allow this call? [y]es once / [a]lways / [N]o: ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y":
		return toolcall.OutcomeProceedOnce, nil
	case "a":
		return toolcall.OutcomeProceedAlways, nil
	default:
		return toolcall.OutcomeCancel, nil
	}
}

func printTerminal(c *toolcall.ToolCall) {
	payload, ok := c.Payload.(toolcall.TerminalPayload)
	if !ok {
		return
	}
	fmt.Printf("[%s] %s -> %s\n", c.Request.CallID, c.Request.Name, c.Status)
	switch d := payload.ResultDisplay.(type) {
	case toolcall.TextResultDisplay:
		fmt.Println(d.Text)
	case toolcall.DiffResultDisplay:
		fmt.Println(d.FileDiff)
	}
	for _, p := range payload.Response {
		if fr, ok := p.(response.FunctionResponsePart); ok {
			fmt.Println(fr.Output)
		}
	}
}
