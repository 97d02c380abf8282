package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/beehive/service/docs/swagger"
	"github.com/beehive/service/internal/photo"
	"github.com/beehive/service/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.JWTSecret == "" {
		a.log.Warn("JWT_SECRET not set; delete and sync endpoints are unauthenticated")
	}

	h := photo.NewHandler(a.svc, a.cfg.MaxUploadBytes, a.log)
	router := server.NewRouter(h, server.Options{
		JWTSecret: a.cfg.JWTSecret,
		Swagger:   !a.cfg.IsProduction(),
	}, a.log)

	srv := server.New(":"+a.cfg.Port, router)
	a.log.Info("starting",
		zap.String("env", a.cfg.AppEnv),
		zap.String("bucket", a.cfg.Bucket),
		zap.Bool("metadata", a.svc.HasMetadata()))
	return server.Run(cmd.Context(), srv, 30*time.Second, a.log)
}
