package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/visiq/visibility-cli/internal/model"
	"github.com/visiq/visibility-cli/internal/store"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process all pending businesses",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		pending, err := env.Store.ListBusinesses(ctx, store.BusinessFilter{
			Status: model.StatusPending,
			Limit:  batchLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list pending businesses")
		}
		if len(pending) == 0 {
			zap.L().Info("no pending businesses")
			return nil
		}

		ids := make([]string, len(pending))
		for i, b := range pending {
			ids[i] = b.ID
		}
		zap.L().Info("batch starting", zap.Int("businesses", len(ids)))

		if err := env.Orch.ProcessMany(ctx, ids); err != nil {
			return eris.Wrap(err, "process batch")
		}

		zap.L().Info("batch complete", zap.Int("businesses", len(ids)))
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "maximum businesses to process (0 = all pending)")
	rootCmd.AddCommand(batchCmd)
}
