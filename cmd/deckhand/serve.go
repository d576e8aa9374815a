package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/deckhand"
	"github.com/aretw0/deckhand/internal/cli"
	"github.com/aretw0/deckhand/internal/logging"
	"github.com/aretw0/deckhand/internal/metrics"
	"github.com/aretw0/deckhand/pkg/adapters/httpapi"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts the agent behind a JSON API over HTTP: session management,
message relay, direct reads, SSE progress events and Prometheus metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		debug, _ := cmd.Flags().GetBool("debug")
		addr, _ := cmd.Flags().GetString("addr")

		cfg, err := cli.LoadConfig(configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		if addr == "" {
			addr = cfg.Serve.Address
		}

		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		logger := logging.New(os.Stderr, level)
		slog.SetDefault(logger)

		m := metrics.New()
		streams := httpapi.NewStreamManager()

		agent, closeStore, err := cli.BuildAgent(cfg, logger,
			deckhand.WithHooks(m.LoopHooks().Join(streams.LoopHooks())),
			deckhand.WithDispatchObserver(m.ObserveDispatch),
			deckhand.WithExecutionObserver(m.ObserveExecution),
		)
		if err != nil {
			fmt.Printf("Error initializing deckhand: %v\n", err)
			os.Exit(1)
		}
		defer closeStore()

		handler := httpapi.NewHandler(agent, agent.Sessions(), agent.Dispatcher(),
			httpapi.WithStreams(streams),
			httpapi.WithMetricsHandler(m.Handler()),
		)

		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Printf("Starting deckhand server on %s\n", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// Blocking main and waiting for shutdown.
		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			fmt.Printf("\nStart shutdown... Signal: %v\n", sig)

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					fmt.Printf("Error killing server: %v\n", err)
				}
			}
			fmt.Println("deckhand server stopped gracefully")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default from config, :8080)")
}
