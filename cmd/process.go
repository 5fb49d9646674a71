package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/visiq/visibility-cli/internal/model"
)

var (
	processName    string
	processURL     string
	processCity    string
	processRegion  string
	processCountry string
	processTier    string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Register a business and run the full pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tier := model.Tier(processTier)
		if !tier.Valid() {
			return eris.Errorf("unknown tier %q", processTier)
		}

		b, err := env.Store.CreateBusiness(ctx, model.Business{
			Name: processName,
			URL:  processURL,
			Location: model.Location{
				City:    processCity,
				Region:  processRegion,
				Country: processCountry,
			},
			Tier: tier,
		})
		if err != nil {
			return eris.Wrap(err, "create business")
		}

		zap.L().Info("business registered",
			zap.String("business_id", b.ID),
			zap.String("name", b.Name),
			zap.String("tier", string(b.Tier)),
		)

		if err := env.Orch.StartProcessing(ctx, b.ID); err != nil {
			zap.L().Error("processing failed", zap.String("business_id", b.ID), zap.Error(err))
		}

		status, err := env.Orch.GetStatus(ctx, b.ID)
		if err != nil {
			return eris.Wrap(err, "get status")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	},
}

func init() {
	processCmd.Flags().StringVar(&processName, "name", "", "business name (required)")
	processCmd.Flags().StringVar(&processURL, "url", "", "business website URL (required)")
	processCmd.Flags().StringVar(&processCity, "city", "", "business city")
	processCmd.Flags().StringVar(&processRegion, "region", "", "business region or state")
	processCmd.Flags().StringVar(&processCountry, "country", "", "business country")
	processCmd.Flags().StringVar(&processTier, "tier", string(model.TierFree), "subscription tier (free|pro|agency)")
	_ = processCmd.MarkFlagRequired("name")
	_ = processCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(processCmd)
}
