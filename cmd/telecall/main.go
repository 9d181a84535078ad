// Command telecall is the CLI entry point.
//
// Telecall places one-to-one WebRTC calls for a case. Both participants
// negotiate through a shared call session hosted by a signaling server;
// media flows peer to peer once connected.
//
// It can be launched interactively (no subcommand) or non-interactively via
// the serve, call and answer subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/telecall/internal/config"
	"github.com/1ureka/telecall/internal/util"
)

var version = "dev"

func main() {
	// Cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// flags are the values shared by every subcommand.
type flags struct {
	envFile  string
	debug    bool
	logJSON  bool
	server   string
	pin      string
	stun     string
	poolSize int
	mic      bool
	camera   bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:     "telecall",
		Short:   "One-to-one WebRTC calls negotiated through a shared call session",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			pterm.Info.Println(fmt.Sprintf("Telecall — v%s", version))
			pterm.Println()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd, f)
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.envFile, "env-file", "", "Path of the .env file (default .env)")
	pf.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&f.logJSON, "log-json", false, "Write log lines as JSON")
	pf.StringVar(&f.server, "server", "", "Signaling server URL (call, answer)")
	pf.StringVar(&f.pin, "pin", "", "Signaling server PIN; \"auto\" generates one (serve)")
	pf.StringVar(&f.stun, "stun", "", "Comma-separated STUN servers")
	pf.IntVar(&f.poolSize, "pool-size", 0, "ICE candidate pool size")
	pf.BoolVar(&f.mic, "mic", true, "Use the microphone")
	pf.BoolVar(&f.camera, "camera", true, "Use the camera")

	root.AddCommand(newServeCmd(f), newCallCmd(f), newAnswerCmd(f))
	return root
}

// options converts the shared flags; only flags given on the command line
// override the environment.
func (f *flags) options(cmd *cobra.Command, role config.Role) config.Options {
	opts := config.Options{
		Role:        role,
		EnvFile:     f.envFile,
		ServerURL:   f.server,
		PIN:         f.pin,
		STUNServers: f.stun,
	}
	changed := cmd.Flags().Changed
	if changed("debug") {
		opts.Debug = &f.debug
	}
	if changed("log-json") {
		opts.LogJSON = &f.logJSON
	}
	if changed("pool-size") {
		opts.CandidatePoolSize = &f.poolSize
	}
	if changed("mic") {
		opts.Microphone = &f.mic
	}
	if changed("camera") {
		opts.Camera = &f.camera
	}
	return opts
}

// load resolves the configuration and applies the global settings.
func load(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, err
	}
	if cfg.Debug {
		util.EnableDebug()
	}
	if cfg.LogJSON {
		util.EnableJSON()
	}
	return cfg, nil
}
