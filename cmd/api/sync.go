package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/beehive/service/internal/photo"
)

var (
	syncBucket string
	syncPrefix string
	syncPrune  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild photo records from the bucket listing",
	Long: `Upsert one photo record per object in the bucket. Requires DATABASE_URL.

Examples:
  api sync                         # whole default bucket
  api sync --prefix hive-7/        # only keys under hive-7/
  api sync --prune                 # also drop records with no object`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVar(&syncBucket, "bucket", "", "Bucket to sync (defaults to AWS_S3_BUCKET)")
	syncCmd.Flags().StringVar(&syncPrefix, "prefix", "", "Only sync keys under this prefix")
	syncCmd.Flags().BoolVar(&syncPrune, "prune", false, "Delete records whose object no longer exists")
}

func runSync(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.svc.Sync(cmd.Context(), photo.SyncOptions{
		Bucket: syncBucket,
		Prefix: syncPrefix,
		Prune:  syncPrune,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
