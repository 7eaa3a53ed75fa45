package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cosmossdk.io/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openalpha/spot-exchange/api"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "In-memory spot exchange with a JSON HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	cmd.Flags().String("host", "0.0.0.0", "listen host")
	cmd.Flags().Int("port", 8080, "listen port")
	cmd.Flags().String("admin-name", "admin", "name of the bootstrapped admin user")
	cmd.Flags().String("admin-key", "", "API key of the bootstrapped admin user (generated when empty)")
	cmd.Flags().Bool("disable-rate-limit", false, "disable per-IP rate limiting")

	viper.SetEnvPrefix("EXCHANGE")
	viper.AutomaticEnv()
	_ = viper.BindPFlags(cmd.Flags())

	return cmd
}

func run() error {
	logger := log.NewLogger(os.Stderr)

	adminKey, err := resolveAdminKey(logger)
	if err != nil {
		return err
	}

	config := api.DefaultConfig()
	config.Host = viper.GetString("host")
	config.Port = viper.GetInt("port")
	config.AdminName = viper.GetString("admin-name")
	config.AdminAPIKey = adminKey
	config.DisableRateLimit = viper.GetBool("disable-rate-limit")

	server := api.NewServer(config, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// resolveAdminKey parses the configured admin key or generates one. The
// generated key is logged once so a fresh instance is operable.
func resolveAdminKey(logger log.Logger) (uuid.UUID, error) {
	raw := viper.GetString("admin-key")
	if raw == "" {
		key := uuid.New()
		logger.Info("generated admin API key", "api_key", key.String())
		return key, nil
	}
	key, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("admin-key must be a UUID: %w", err)
	}
	return key, nil
}
