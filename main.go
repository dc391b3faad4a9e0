package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"incentives-engine/internal/config"
	"incentives-engine/internal/sell"
	"incentives-engine/internal/service"
)

var (
	vcfg   = config.NewViper()
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "incentives-engine",
	Short: "Surgical team incentives computed from Sell CRM deals",
	Long: `Evaluates the BAR incentive codes recorded on CRM deals and aggregates
them per slot and per collaborator, for a single deal or a calendar month.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zap.ParseAtomicLevel(vcfg.GetString(config.KeyLogLevel))
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		zcfg := zap.NewProductionConfig()
		zcfg.Level = level
		l, err := zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "config/incentives_config.json", "incentives config document (JSON or YAML)")
	pf.String("log-level", "info", "debug, info, warn or error")
	_ = vcfg.BindPFlag(config.KeyConfigPath, pf.Lookup("config"))
	_ = vcfg.BindPFlag(config.KeyLogLevel, pf.Lookup("log-level"))

	rootCmd.AddCommand(serveCmd, recalcCmd, configCmd)
}

// loadRuntime reads the settings and the incentives document and builds the
// CRM-backed service.
func loadRuntime() (config.Settings, *service.Service, *sell.Client, error) {
	settings, err := config.LoadSettings(vcfg)
	if err != nil {
		return settings, nil, nil, err
	}
	if err := settings.RequireToken(); err != nil {
		return settings, nil, nil, err
	}
	cfg, err := config.Load(settings.ConfigPath)
	if err != nil {
		return settings, nil, nil, err
	}
	for _, finding := range cfg.Lint() {
		logger.Warn("incentives config lint", zap.String("path", settings.ConfigPath), zap.String("finding", finding))
	}

	client := sell.New(sell.Options{
		BaseURL:       settings.BaseURL,
		SearchBaseURL: settings.SearchBaseURL,
		Token:         settings.AccessToken,
		Timeout:       settings.Timeout,
		Logger:        logger.Named("sell"),
	})
	svc := service.New(cfg, client, logger.Named("service"), service.Options{
		SearchPerPage: settings.SearchPerPage,
		StagePerPage:  settings.PerPage,
	})
	return settings, svc, client, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
