package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/camden-git/gallerysync/handlers"
	"github.com/camden-git/gallerysync/media"
	"github.com/camden-git/gallerysync/realtime"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket event stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = ":" + cfg.Port
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hub := realtime.NewHub(logger)
			go hub.Run(ctx)

			a, err := newApp(hub, true)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			defer a.Close()

			r := chi.NewRouter()
			corsHandler := cors.New(cors.Options{
				AllowedOrigins:   cfg.CORSAllowedOrigins,
				AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
				ExposedHeaders:   []string{"Link", "Content-Disposition", "X-Archive-Path"},
				AllowCredentials: true,
				MaxAge:           300,
			})

			r.Use(middleware.RequestID)
			r.Use(middleware.RealIP)
			r.Use(middleware.Logger)
			r.Use(middleware.Recoverer)
			r.Use(corsHandler.Handler)

			galleryHandler := &handlers.GalleryHandler{
				State:    a.state,
				Sync:     a.sync,
				Export:   a.export,
				Tags:     a.tags,
				Previews: a.previews,
				Prompt:   a.prompt,
				Store:    a.store,
				Logger:   logger,
			}

			archiveSubDir := filepath.Base(cfg.ArchivesPath)
			r.Route("/api", func(r chi.Router) {
				galleryHandler.Mount(r)
				r.Get("/ws", hub.ServeWS)
				r.Get(fmt.Sprintf("/%s/*", archiveSubDir), handlers.AssetServer(cfg.MediaStoragePath, archiveSubDir, logger))
			})

			server := &http.Server{
				Addr:        addr,
				Handler:     r,
				ReadTimeout: 10 * time.Second,
				// exports stream only after every item is fetched
				WriteTimeout: 10 * time.Minute,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", addr).Str("listing", cfg.ListingURL).Msg("server listening")
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :$PORT)")
	return cmd
}

func discoverCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List the images found in the directory listing with their sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireListing(); err != nil {
				return err
			}
			a, err := newApp(realtime.Discard{}, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			assets, err := a.sync.Sync(ctx)
			if err != nil {
				return err
			}
			waitForSizes(ctx, a, wait)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tSIZE\tURL")
			for _, asset := range a.state.Assets() {
				size := "-"
				if asset.FormattedSize != nil {
					size = *asset.FormattedSize
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", asset.DisplayName, asset.Kind, size, asset.SourceURL)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			logger.Info().Int("assets", len(assets)).Msg("discovery complete")
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "how long to wait for size probes")
	return cmd
}

// waitForSizes polls until every asset has a size result or the timeout passes.
func waitForSizes(ctx context.Context, a *app, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		done := true
		for _, asset := range a.state.Assets() {
			if asset.FormattedSize == nil {
				done = false
				break
			}
		}
		if done {
			return
		}
		select {
		case <-ctx.Done():
			logger.Warn().Msg("gave up waiting for size probes")
			return
		case <-ticker.C:
		}
	}
}

func exportCmd() *cobra.Command {
	var (
		filter string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every image matching --filter into one ZIP archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireListing(); err != nil {
				return err
			}
			a, err := newApp(realtime.Discard{}, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if _, err := a.sync.Sync(ctx); err != nil {
				return err
			}
			a.state.SetFilter(filter)
			for _, asset := range a.state.Filtered() {
				a.state.Toggle(asset.ID)
			}

			stderr := cmd.ErrOrStderr()
			payload, err := a.export.Export(ctx, func(current, total int) {
				fmt.Fprintf(stderr, "\rpacked %d/%d", current, total)
			})
			fmt.Fprintln(stderr)
			if err != nil {
				return err
			}

			if out != "" {
				if err := os.WriteFile(out, payload, 0644); err != nil {
					return fmt.Errorf("write archive: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			}
			rel, err := a.store.Save(media.AssetTypeArchive, media.ArchiveFilename(time.Now()), bytes.NewReader(payload))
			if err != nil {
				return err
			}
			full, err := a.store.GetFullPath(rel)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), full)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "only export images whose name or tags contain this text")
	cmd.Flags().StringVarP(&out, "out", "o", "", "archive path (default: the archives directory)")
	return cmd
}
