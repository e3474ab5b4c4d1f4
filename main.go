package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/logicshop-core/server/internal/core"
	"github.com/logicshop-core/server/internal/shop/model"
	"github.com/logicshop-core/server/internal/shop/policy"
	logx "github.com/logicshop-core/server/pkg/logger"
	pkgredis "github.com/logicshop-core/server/pkg/redis"
	"github.com/spf13/cobra"
)

var Version = "dev"

// AppConfig defines all configurable parameters of the shop,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `split_words:"true"`

	// Lab
	Flag       string `envconfig:"FLAG" default:"flag{bus1ness_l0g1c_byp4ss3d}"`
	Preset     string `envconfig:"PRESET" default:"negative-quantity"`
	PolicyFile string `split_words:"true"`

	// Infrastructure
	Redis pkgredis.Config

	// Shop
	User    model.UserConfig
	Catalog model.CatalogConfig
	Routes  model.RoutesConfig
	Server  model.ServerConfig
}

func loadConfig() (AppConfig, error) {
	if err := godotenv.Load(".env"); err != nil {
		logx.Warn().Err(err).Msg("could not load .env file")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("process environment config: %w", err)
	}
	return cfg, nil
}

func main() {
	logx.Init()

	rootCmd := &cobra.Command{
		Use:          "logicshop",
		Short:        "Deliberately flawed commerce API for business logic exploitation drills",
		Version:      Version,
		SilenceUsage: true,
	}

	serve := serveCmd()
	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(presetsCmd())
	// Running the binary without a subcommand serves.
	rootCmd.RunE = serve.RunE
	rootCmd.Flags().AddFlagSet(serve.Flags())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var (
		preset     string
		addr       string
		policyFile string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the shop HTTP server",
		Long: `Start the shop HTTP server.

Examples:
  logicshop serve --preset coupon-divergence
  logicshop serve --addr :8080 --policy-file ./policy.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if preset != "" {
				cfg.Preset = preset
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if policyFile != "" {
				cfg.PolicyFile = policyFile
			}

			env := core.ParseEnvironment(cfg.Environment)
			logx.Init(logx.LoggerOpts{Environment: env, Level: cfg.LogLevel})
			gin.SetMode(env.GinMode())

			app, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.server.Run(ctx, cfg.Server.Addr)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "policy preset (overrides PRESET)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides ADDR)")
	cmd.Flags().StringVar(&policyFile, "policy-file", "", "YAML policy overrides (overrides POLICY_FILE)")
	return cmd
}

func presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the available policy presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range policy.Names() {
				s, err := policy.Preset(name)
				if err != nil {
					return err
				}
				marker := " "
				if name == policy.DefaultPreset {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-18s pricing=%s coupon=%t offpeak=%t validate=%s charge=%s quantity=%s tier=%s flag=%s atomic=%t\n",
					marker, name, s.Pricing.Rule, s.Pricing.Coupon, s.Pricing.OffPeak,
					s.Authorization.Validate, s.Authorization.Charge,
					s.Quantity, s.Tier.Mode, s.Flag.Rule, s.Atomic)
			}
			return nil
		},
	}
}
