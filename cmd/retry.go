package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var retryReprocess bool

var retryCmd = &cobra.Command{
	Use:   "retry <business-id>",
	Short: "Reset an errored business back to pending",
	Long:  "Resets a business in the error state back to pending. With --reprocess the pipeline runs again immediately.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Orch.ResetAndRetry(ctx, args[0], retryReprocess); err != nil {
			return eris.Wrapf(err, "retry %s", args[0])
		}

		zap.L().Info("retry complete",
			zap.String("business_id", args[0]),
			zap.Bool("reprocessed", retryReprocess),
		)
		return nil
	},
}

func init() {
	retryCmd.Flags().BoolVar(&retryReprocess, "reprocess", false, "run the pipeline again after resetting")
	rootCmd.AddCommand(retryCmd)
}
