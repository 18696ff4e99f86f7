package main

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/camden-git/gallerysync/config"
	"github.com/camden-git/gallerysync/credentials"
	"github.com/camden-git/gallerysync/gallery"
	"github.com/camden-git/gallerysync/media"
	"github.com/camden-git/gallerysync/models"
	"github.com/camden-git/gallerysync/realtime"
	"github.com/camden-git/gallerysync/services"
	"github.com/camden-git/gallerysync/utils"
	"github.com/camden-git/gallerysync/workers"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfg         config.Config
	logger      zerolog.Logger
	listingFlag string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "gallerysync",
		Short:        "Browse a remote image directory, tag it and export selections as ZIP archives",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envErr := godotenv.Load()

			var err error
			cfg, err = config.LoadConfig()
			if err != nil {
				return err
			}
			if listingFlag != "" {
				if cfg.BaseOrigin == cfg.ListingURL {
					cfg.BaseOrigin = listingFlag
				}
				cfg.ListingURL = listingFlag
			}

			if cmd.Name() == "serve" {
				logger = utils.NewLogger(cfg.AppEnv)
			} else {
				logger = utils.NewCLILogger(cfg.AppEnv)
			}
			if envErr != nil {
				logger.Debug().Err(envErr).Msg("no .env file loaded")
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&listingFlag, "listing", "", "directory listing URL (overrides LISTING_URL)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(discoverCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the gallery core wired from configuration. Both the HTTP server and the CLI
// commands drive the same instance.
type app struct {
	state    *gallery.State
	prompt   *credentials.Prompt
	store    *media.LocalStorage
	pool     *workers.EnrichmentPool
	sync     *services.SyncService
	export   *services.ExportService
	tags     *services.TagService
	previews *services.PreviewService
}

func newApp(publisher realtime.Publisher, withEnrichment bool) (*app, error) {
	client := &http.Client{Timeout: cfg.HTTPTimeout}

	store, err := media.NewLocalStorage(cfg.MediaStoragePath, map[media.AssetType]string{
		media.AssetTypeArchive: filepath.Base(cfg.ArchivesPath),
	}, logger)
	if err != nil {
		return nil, err
	}

	state := gallery.New()
	state.SetObserver(func(a models.Asset) {
		publisher.Publish(realtime.Event{Type: realtime.EventAssetUpdated, AssetID: a.ID, Data: a})
	})

	override := &credentials.Override{}
	prompt := credentials.NewPrompt(override, func(ps credentials.PromptState) {
		publisher.Publish(realtime.Event{Type: realtime.EventCredentialNeeded, Status: promptStatus(ps), Data: ps})
	})
	chain := credentials.Chain{
		override,
		credentials.Static("GEMINI_API_KEY", cfg.GeminiAPIKey),
		credentials.Static("API_KEY", cfg.FallbackAPIKey),
	}

	a := &app{state: state, prompt: prompt, store: store}

	var queue services.EnrichQueue
	if withEnrichment {
		metadata := services.NewMetadataService(client, logger)
		a.pool = workers.NewEnrichmentPool(metadata, state, cfg.EnrichQueueSize, cfg.EnrichWorkers, logger)
		queue = a.pool
	}

	source := services.NewDirectoryService(client, cfg.ListingURL, cfg.BaseOrigin, logger)
	a.sync = services.NewSyncService(source, state, queue, publisher, logger)
	a.export = services.NewExportService(state, services.ExportOptions{
		HTTPClient: client,
		ItemDelay:  cfg.ExportItemDelay,
		Publisher:  publisher,
		Logger:     logger,
	})
	analysis := services.NewAnalysisService(services.AnalysisOptions{
		Model:      cfg.GeminiModel,
		BaseURL:    cfg.GeminiBaseURL,
		HTTPClient: client,
		Chain:      chain,
		Logger:     logger,
	})
	a.tags = services.NewTagService(state, analysis, prompt, logger)
	a.previews = services.NewPreviewService(state, client, media.NewProcessor(cfg.ThumbnailMaxSize), logger)
	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Stop()
	}
}

func promptStatus(ps credentials.PromptState) string {
	if ps.Pending {
		return "pending"
	}
	return "cleared"
}
