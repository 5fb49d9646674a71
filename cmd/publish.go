package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish <business-id>",
	Short: "Publish a fingerprinted business to the knowledge graph",
	Long:  "Runs the notability gate and, if it passes, creates the knowledge-graph entity. The business must be fingerprinted.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Orch.ManualPublish(ctx, args[0]); err != nil {
			return eris.Wrapf(err, "publish %s", args[0])
		}

		status, err := env.Orch.GetStatus(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get status")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
