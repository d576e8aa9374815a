package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/deckhand/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [message]",
	Short: "Chat with the editing agent",
	Long: `Starts the agent against a PowerPoint file. With a message argument it
answers once and exits; without one it opens an interactive chat.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		debug, _ := cmd.Flags().GetBool("debug")
		file, _ := cmd.Flags().GetString("file")
		sessionID, _ := cmd.Flags().GetString("session")
		resume, _ := cmd.Flags().GetBool("resume")
		fresh, _ := cmd.Flags().GetBool("fresh")

		if resume && sessionID != "" {
			fmt.Println("Error: --resume and --session cannot be used together.")
			os.Exit(1)
		}

		opts := cli.RunOptions{
			ConfigPath: configPath,
			Debug:      debug,
			SessionID:  sessionID,
			Document:   file,
			Message:    strings.TrimSpace(strings.Join(args, " ")),
			Resume:     resume,
			Fresh:      fresh,
		}
		if err := cli.Run(opts); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("file", "f", "", "Path to the PowerPoint file to edit")
	runCmd.Flags().StringP("session", "s", "", "Session ID to continue")
	runCmd.Flags().Bool("resume", false, "Continue the most recent session")
	runCmd.Flags().Bool("fresh", false, "Reset the session before starting")

	// Bare 'deckhand' opens the interactive chat.
	rootCmd.Run = runCmd.Run
}
