// ABOUTME: Entry point for coven-bot, a chat bot client for an oicq-webapi gateway
// ABOUTME: Subcommands run the bot, probe the gateway and check configuration

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/2389/coven-bot/internal/bot"
	"github.com/2389/coven-bot/internal/config"
	"github.com/2389/coven-bot/internal/protocol"
	"github.com/2389/coven-bot/internal/protocol/webapi"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const banner = `
                                        _           _
  ___ _____   _____ _ __               | |__   ___ | |_
 / __/ _ \ \ / / _ \ '_ \    _____     | '_ \ / _ \| __|
| (_| (_) \ V /  __/ | | |  |_____|    | |_) | (_) | |_
 \___\___/ \_/ \___|_| |_|             |_.__/ \___/ \__|
`

var (
	configFlag     string
	acceptRequests bool
	quiet          bool
)

// exitError carries a specific process status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	// A missing .env is normal.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	if err == nil {
		return
	}
	color.Red("Error: %v\n", err)

	code := 1
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
	}
	cancel()
	os.Exit(code)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "coven-bot",
		Short:         "Chat bot client for an oicq-webapi gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config file (default $COVEN_BOT_CONFIG or ~/.config/coven/bot.yaml)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the gateway and echo incoming messages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context())
		},
	}
	runCmd.Flags().BoolVar(&acceptRequests, "accept-requests", false, "accept friend requests, group invitations and join requests")
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "skip the banner")

	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that the gateway is reachable and speaks the configured protocol",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProbe(cmd.Context())
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print the resolved settings",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runCheck()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version)
		},
	}

	root.AddCommand(runCmd, probeCmd, checkCmd, versionCmd)
	return root
}

func loadConfig() (*config.Config, string, error) {
	path := config.ResolvePath(configFlag)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func registry() protocol.Registry {
	reg := protocol.Registry{}
	webapi.Register(reg)
	return reg
}

// stageExit maps a startup failure onto its exit status.
func stageExit(err error) error {
	var serr *bot.StageError
	if errors.As(err, &serr) {
		return &exitError{code: serr.Stage.Code(), err: err}
	}
	return err
}

func runBot(ctx context.Context) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	if !quiet {
		printBanner(cfg, path)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("starting coven-bot",
		"config", path,
		"protocol", cfg.Bot.Protocol,
		"http", fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		"ws", fmt.Sprintf("%s:%d%s", cfg.WS.Host, cfg.WS.Port, cfg.WS.Path),
	)

	b := bot.New(cfg, registry(), echoHandlers(logger, acceptRequests), logger)
	return stageExit(b.Run(ctx))
}

func runProbe(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	b := bot.New(cfg, registry(), bot.Handlers{
		OnReady: func(ctx context.Context, b *bot.Bot) error {
			self, err := b.Directory().Self(ctx)
			if err != nil {
				logger.Warn("gateway reachable but account lookup failed", "error", err)
			} else {
				color.Green("    ▶ logged in as %s (%d)\n", self.Name(), self.ID())
			}
			b.RequestStop()
			return nil
		},
	}, logger)

	if err := b.Run(ctx); err != nil {
		return stageExit(err)
	}
	color.Green("    ▶ gateway OK\n")
	return nil
}

func runCheck() error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	green := color.New(color.FgGreen)
	green.Printf("config ok: %s\n", path)

	ts := cfg.TransportSettings()
	fmt.Printf("  protocol:           %s\n", cfg.Bot.Protocol)
	fmt.Printf("  http:               %s:%d (tls=%t)\n", ts.HTTP.Host, ts.HTTP.Port, ts.HTTP.TLS)
	fmt.Printf("  ws:                 %s:%d%s (tls=%t)\n", ts.WS.Host, ts.WS.Port, ts.WSPath, ts.WS.TLS)
	fmt.Printf("  reconnect interval: %s\n", ts.ReconnectInterval)
	fmt.Printf("  request timeout:    %s\n", ts.RequestTimeout)
	fmt.Printf("  drain timeout:      %s\n", cfg.Runtime.DrainTimeout)
	return nil
}

func printBanner(cfg *config.Config, path string) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", path)
	green.Print("    ▶ ")
	fmt.Printf("Protocol: %s\n", cfg.Bot.Protocol)
	green.Print("    ▶ ")
	fmt.Printf("Gateway:  %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	if !cfg.HTTP.TLS {
		yellow.Print(" [plaintext]")
	}
	fmt.Println()
	if acceptRequests {
		green.Print("    ▶ ")
		fmt.Println("Accepting friend and group requests")
	}
	fmt.Println()
}
