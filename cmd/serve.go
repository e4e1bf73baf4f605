package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"leasecheck/internal/logger"
	"leasecheck/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the lease analysis HTTP API",
	Long: `Start the HTTP API: lease analysis and full reports, the quick clause
preview, access status and the Paddle billing endpoints.

The access store and the preview rate limiter default to process memory.
Set STORE_BACKEND=postgres and RATE_BACKEND=redis to share state between
instances.`,
	Example: `  leasecheck serve
  leasecheck serve --addr :9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: SERVER_ADDR or :8000)")
	serveCmd.Flags().String("upload-dir", "", "Directory for staged uploads (default: OS temp dir)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.ServerAddr
	}
	uploadDir, _ := cmd.Flags().GetString("upload-dir")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg, stackOptions{withOCR: true, withPreview: true}, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close clients")
		}
	}()

	if cfg.AdminJWTSecret == "" {
		log.Warn().Msg("ADMIN_JWT_SECRET not set, admin grant endpoint disabled")
	}
	if cfg.PaddleWebhookSecret == "" {
		log.Warn().Msg("PADDLE_WEBHOOK_SECRET not set, webhooks will be rejected")
	}

	srv := server.New(server.Deps{
		Coordinator: st.coordinator,
		Gate:        st.gate,
		Preview:     st.preview,
		Billing:     st.billing,
	}, server.Config{
		Addr:           addr,
		AdminJWTSecret: cfg.AdminJWTSecret,
		UploadDir:      uploadDir,
	})

	log.Info().
		Str("addr", addr).
		Str("store", cfg.StoreBackend).
		Str("rate", cfg.RateBackend).
		Str("ocr", cfg.OCRProvider).
		Msg("Starting leasecheck server")

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}
