package cmd

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
	"go.uber.org/zap"

	"github.com/spigell/avatar-synth/internal/logger"
	"github.com/spigell/avatar-synth/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the clip generation HTTP endpoint",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (default :8080)")
	serveCmd.Flags().StringP("provider", "p", "", "generation provider: d-id, veo or replicate")

	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}

func serve(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	if p := cmd.Flags().Lookup("provider"); p != nil && p.Changed {
		viper.Set("provider", p.Value.String())
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	synth, err := newSynthesizer(ctx, config, logger)
	if err != nil {
		logger.Fatal("creating a provider", zap.Error(err))
	}

	handler, err := server.New(synth, server.Options{
		FallbackURL:    config.FallbackURL,
		AllowedOrigins: config.Server.AllowedOrigins,
	}, logger)
	if err != nil {
		logger.Fatal("creating a handler", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              config.Server.Listen,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("starting the avatar-synth server",
		zap.String("version", version),
		zap.String("listen", config.Server.Listen),
		zap.String("provider", synth.Provider()),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("serving", zap.Error(err))
	}

	logger.Info("server stopped")
}
