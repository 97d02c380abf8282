//	@title			Beehive Photo API
//	@version		1.0
//	@description	Upload, download, list, and delete bee photos stored in S3.
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "api",
	Short: "Bee photo service",
	Long: `Serves the bee photo HTTP API over an S3 bucket.

Examples:
  api                          # same as "api serve"
  api serve                    # start the HTTP server
  api sync --prune             # rebuild photo records from the bucket
  api migrate                  # apply database migrations and exit`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
