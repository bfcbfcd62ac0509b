package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nanda/kirana/internal/config"
	"github.com/nanda/kirana/internal/logger"
	"github.com/nanda/kirana/pkg/assistant"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, lg, err := loadEnvironment()
		if err != nil {
			return err
		}
		defer lg.Close()
		log := lg.GetZerolog()

		a, err := assistant.New(cfg, assistant.Options{Logger: log})
		if err != nil {
			return err
		}
		defer a.Close()

		// Live config reload: log level applies immediately, everything else
		// on next start.
		if cfgFile != "" {
			watcher, err := config.NewWatcher(cfgFile, func(fresh *config.Config) {
				logger.SetLevel(fresh.Logging.Level)
			}, log)
			if err != nil {
				log.Warn().Err(err).Msg("Config watching disabled")
			} else {
				defer watcher.Close()
			}
		}

		var metricsSrv *http.Server
		if cfg.Metrics.Enabled {
			mux := http.NewServeMux()
			mux.Handle("/metrics", a.MetricsHandler())
			metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
			go func() {
				log.Info().Str("addr", cfg.Metrics.Addr).Msg("Metrics endpoint listening")
				if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("Metrics server failed")
				}
			}()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log.Info().Msg("Assistant running, press Ctrl+C to stop")
		<-ctx.Done()

		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		log.Info().Msg("Shutting down")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
