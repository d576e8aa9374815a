package main

import (
	"fmt"
	"os"

	"github.com/aretw0/deckhand/internal/cli"
	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/ports"
	"github.com/spf13/cobra"
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read deck structure without the agent",
	Long: `Runs the same read operations the agent uses and prints the JSON
snapshot. No model and no API key are involved.`,
}

var readOverviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Print the whole-deck structure snapshot",
	Run: func(cmd *cobra.Command, args []string) {
		dispatcher, file := mustReadSetup(cmd)

		result := dispatcher.Dispatch(cmd.Context(), domain.ToolCall{
			ID:     "cli-read",
			Action: domain.ActionReadOverview,
			Args:   map[string]any{},
		}, file)
		printToolResult(result)
	},
}

var readDetailCmd = &cobra.Command{
	Use:   "detail",
	Short: "Print the full element tree for the chosen slides",
	Run: func(cmd *cobra.Command, args []string) {
		dispatcher, file := mustReadSetup(cmd)

		slides, _ := cmd.Flags().GetIntSlice("slides")
		if len(slides) == 0 {
			fmt.Println("Error: --slides is required (e.g. --slides 1,3)")
			os.Exit(1)
		}

		result := dispatcher.Dispatch(cmd.Context(), domain.ToolCall{
			ID:     "cli-read",
			Action: domain.ActionReadDetail,
			Args:   map[string]any{"container_indices": slides},
		}, file)
		printToolResult(result)
	},
}

// mustReadSetup builds the dispatcher from config and resolves the --file
// flag, exiting on any problem.
func mustReadSetup(cmd *cobra.Command) (ports.ActionDispatcher, string) {
	configPath, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")
	file, _ := cmd.Flags().GetString("file")

	if file == "" {
		fmt.Println("Error: --file is required")
		os.Exit(1)
	}

	cfg, err := cli.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	dispatcher, err := cli.BuildDispatcher(cfg, cli.NewLogger(debug))
	if err != nil {
		fmt.Printf("Error initializing deckhand: %v\n", err)
		os.Exit(1)
	}
	return dispatcher, file
}

// printToolResult writes the snapshot to stdout, or the failure to stderr
// with a non-zero exit.
func printToolResult(result domain.ToolResult) {
	if result.IsError {
		fmt.Fprintln(os.Stderr, result.Content)
		os.Exit(1)
	}
	fmt.Println(result.Content)
}

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.AddCommand(readOverviewCmd)
	readCmd.AddCommand(readDetailCmd)

	readCmd.PersistentFlags().StringP("file", "f", "", "Path to the PowerPoint file to read")
	readDetailCmd.Flags().IntSlice("slides", nil, "1-based slide numbers to expand (e.g. 1,3)")
}
