package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/deckhand/internal/cli"
	"github.com/aretw0/deckhand/internal/tui"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec",
	Short: "Run an editing fragment against a deck in the sandbox",
	Long: `Compiles and runs a code fragment through the same pipeline the agent
uses: copy-on-entry, validation exit code, timeouts, restore on failure.
The fragment comes from --code or stdin.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		debug, _ := cmd.Flags().GetBool("debug")
		file, _ := cmd.Flags().GetString("file")
		code, _ := cmd.Flags().GetString("code")

		if file == "" {
			fmt.Println("Error: --file is required")
			os.Exit(1)
		}
		if code == "" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Printf("Error reading stdin: %v\n", err)
				os.Exit(1)
			}
			code = string(data)
		}
		if strings.TrimSpace(code) == "" {
			fmt.Println("Error: no code given (use --code or pipe it on stdin)")
			os.Exit(1)
		}

		cfg, err := cli.LoadConfig(configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		executor, err := cli.BuildExecutor(cfg, cli.NewLogger(debug))
		if err != nil {
			fmt.Printf("Error initializing deckhand: %v\n", err)
			os.Exit(1)
		}

		outcome := executor.Execute(cmd.Context(), domain.ExecRequest{
			Fragment:     code,
			DocumentPath: file,
			Mode:         domain.ModeModify,
		})

		fmt.Println(tui.OutcomeLabel(outcome.Kind))
		if outcome.Output != "" {
			fmt.Println(strings.TrimSpace(outcome.Output))
		}
		if outcome.Diagnostic != "" {
			fmt.Fprintln(os.Stderr, strings.TrimSpace(outcome.Diagnostic))
		}
		if !outcome.Succeeded() {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(execCmd)

	execCmd.Flags().StringP("file", "f", "", "Path to the PowerPoint file to edit")
	execCmd.Flags().StringP("code", "c", "", "Code fragment to run (reads stdin when omitted)")
}
