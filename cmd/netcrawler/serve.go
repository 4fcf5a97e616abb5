package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"netcrawler/internal/handler"
	"netcrawler/internal/hub"
	"netcrawler/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with live crawl events",
	Long: `Serve the crawl API under /api and stream crawl progress as
Server-Sent Events on /events.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "HTTP listen address (default :3000)")
	serveCmd.Flags().Bool("watch-policy", false, "reload the boundary policy when its file changes")
	for key, flag := range map[string]string{"server.addr": "addr", "server.watch_policy": "watch-policy"} {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withApp(ctx, func(a *app) error {
		log.Println("Starting netcrawler server...")

		// Fail fast on a malformed policy; a missing one is created
		if _, err := a.svc.ReloadPolicy(); err != nil {
			return err
		}

		if a.cfg.Server.WatchPolicy {
			w := watcher.New(a.cfg.PolicyPath, func() {
				// On error the previous snapshot stays in force
				if _, err := a.svc.ReloadPolicy(); err != nil {
					log.Printf("Policy: reload after change failed: %v", err)
				}
			})
			go func() {
				if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("Policy: watcher stopped: %v", err)
				}
			}()
		}

		sseHub := hub.New()
		go sseHub.Run(ctx)
		go sseHub.Relay(ctx, a.eventBus)

		mux := http.NewServeMux()
		handler.NewCrawlHandler(a.svc).Register(mux)
		mux.Handle("GET /events", sseHub)

		server := &http.Server{
			Addr: a.cfg.Server.Addr,
			Handler: handler.Chain(mux,
				handler.Recover,
				handler.CORS,
				handler.Logger,
			),
			ReadTimeout: 10 * time.Second,
			IdleTimeout: 60 * time.Second,
			// No WriteTimeout: SSE streams and ?wait=true crawls are long-lived
		}

		errCh := make(chan error, 1)
		go func() {
			log.Printf("Server listening on %s", a.cfg.Server.Addr)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}

		log.Println("Server stopped")
		return nil
	})
}
