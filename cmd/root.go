package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bnema/shaderlock/internal/config"
	"github.com/bnema/shaderlock/internal/locker"
	"github.com/bnema/shaderlock/internal/logger"
)

var (
	// Version is set during build
	Version = "0.1.0-dev"

	configPath string
	shaderPath string
	iconPath   string
	skipAuth   bool

	rootCmd = &cobra.Command{
		Use:   "shaderlock",
		Short: "Shaderlock - Wayland screen locker",
		Long: `Shaderlock locks a Wayland session behind a screenshot of itself.
It captures every output, covers them with ext-session-lock surfaces and
keeps the session locked until the user authenticates through PAM.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				config.SetConfigPath(configPath)
			}
			if err := config.Init(); err != nil {
				return err
			}
			cfg := config.Get()
			if shaderPath != "" {
				cfg.Lock.ShaderPath = shaderPath
			}
			if iconPath != "" {
				cfg.Lock.IconPath = iconPath
			}
			if skipAuth {
				cfg.Lock.SkipAuth = true
			}
			if cfg.Logging.LogLevel != "" {
				logger.SetLevel(cfg.Logging.LogLevel)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return locker.New(cfg).Run(ctx)
		},
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.Flags().StringVar(&shaderPath, "shader", "", "fragment shader file or directory")
	rootCmd.Flags().StringVar(&iconPath, "icon", "", "icon image overlaid on every output")
	rootCmd.Flags().BoolVar(&skipAuth, "skip-auth", false, "unlock on enter without authenticating (testing only)")
}
