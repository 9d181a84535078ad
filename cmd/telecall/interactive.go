package main

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/telecall/internal/app"
	"github.com/1ureka/telecall/internal/config"
	"github.com/1ureka/telecall/internal/protocol"
	"github.com/1ureka/telecall/internal/signaling"
	"github.com/1ureka/telecall/internal/util"
)

// runInteractive falls back to interactive prompts when no subcommand is given.
func runInteractive(cmd *cobra.Command, f *flags) error {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Serve  — Host call sessions",
			"Call   — Start a call",
			"Answer — Wait for a call",
		}).
		WithDefaultText("Select your role").
		Show()
	pterm.Println()

	ctx := cmd.Context()
	switch {
	case strings.HasPrefix(role, "Serve"):
		opts := f.options(cmd, config.RoleServe)
		opts.ListenAddr = ask("Listen address", config.DefaultListenAddr)
		cfg, err := load(opts)
		if err != nil {
			return err
		}
		return app.RunServer(ctx, cfg)

	case strings.HasPrefix(role, "Call"):
		opts := f.options(cmd, config.RoleCall)
		opts.ServerURL = askURL()
		opts.CaseID = askCaseID()
		opts.CallType = askCallType()
		opts.CallerName = ask("Your display name", "")
		cfg, err := load(opts)
		if err != nil {
			return err
		}
		return app.RunCaller(ctx, cfg)

	default:
		opts := f.options(cmd, config.RoleAnswer)
		opts.ServerURL = askURL()
		opts.CaseID = askCaseID()
		cfg, err := load(opts)
		if err != nil {
			return err
		}
		return app.RunReceiver(ctx, cfg, app.PromptAccept)
	}
}

// ask prompts for free text, returning fallback on empty input.
func ask(prompt, fallback string) string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(prompt).
		WithDefaultValue(fallback).
		Show()
	pterm.Println()
	if raw = strings.TrimSpace(raw); raw == "" {
		return fallback
	}
	return raw
}

// askCaseID prompts for a case ID until a valid one is entered.
func askCaseID() string {
	for {
		caseID := ask("Case ID", "")
		if err := protocol.ValidateCaseID(caseID); err == nil {
			return caseID
		}
		util.LogWarning("invalid case ID: must be non-empty without '/' or spaces")
		pterm.Println()
	}
}

// askCallType prompts for the call type.
func askCallType() string {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{string(protocol.CallVideo), string(protocol.CallAudio)}).
		WithDefaultText("Call type").
		Show()
	pterm.Println()
	return choice
}

// askURL prompts for a valid signaling server URL until one is entered.
func askURL() string {
	for {
		raw := ask("Signaling server (e.g. wss://***.asse.devtunnels.ms)", config.DefaultServerURL)
		if _, err := signaling.NormalizeURL(raw, ""); err == nil {
			return raw
		}
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}
