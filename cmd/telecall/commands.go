package main

import (
	"github.com/spf13/cobra"

	"github.com/1ureka/telecall/internal/app"
	"github.com/1ureka/telecall/internal/config"
	"github.com/1ureka/telecall/internal/util"
)

func newServeCmd(f *flags) *cobra.Command {
	var listen, db string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the signaling server hosting call sessions",
		Example: `  telecall serve
  telecall serve --listen :8787 --pin auto --db calls.db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := f.options(cmd, config.RoleServe)
			opts.ListenAddr = listen
			opts.DBPath = db
			cfg, err := load(opts)
			if err != nil {
				return err
			}
			return app.RunServer(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default "+config.DefaultListenAddr+")")
	cmd.Flags().StringVar(&db, "db", "", "SQLite database path; empty keeps sessions in memory")
	return cmd
}

func newCallCmd(f *flags) *cobra.Command {
	var caseID, callType, name, notify string
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Start a call for a case",
		Example: `  telecall call --case 42 --type video --name "Dr. Lin"
  telecall call --case 42 --type audio --notify patient-7 --server wss://example.devtunnels.ms`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := f.options(cmd, config.RoleCall)
			opts.CaseID = caseID
			opts.CallType = callType
			opts.CallerName = name
			opts.NotifyUser = notify
			cfg, err := load(opts)
			if err != nil {
				return err
			}
			if err := app.RunCaller(cmd.Context(), cfg); err != nil {
				return err
			}
			util.LogInfo("call closed")
			return nil
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "Case ID")
	cmd.Flags().StringVar(&callType, "type", "", "Call type: audio or video (default video)")
	cmd.Flags().StringVar(&name, "name", "", "Name shown to the other participant")
	cmd.Flags().StringVar(&notify, "notify", "", "User ID to notify about the call")
	return cmd
}

func newAnswerCmd(f *flags) *cobra.Command {
	var caseID, user string
	var autoAccept bool
	cmd := &cobra.Command{
		Use:     "answer",
		Short:   "Wait for a call on a case and answer it",
		Example: `  telecall answer --case 42 --auto-accept`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := f.options(cmd, config.RoleAnswer)
			opts.CaseID = caseID
			opts.NotifyUser = user
			if cmd.Flags().Changed("auto-accept") {
				opts.AutoAccept = &autoAccept
			}
			cfg, err := load(opts)
			if err != nil {
				return err
			}
			decide := app.PromptAccept
			if cfg.AutoAccept {
				decide = app.AutoAccept
			}
			if err := app.RunReceiver(cmd.Context(), cfg, decide); err != nil {
				return err
			}
			util.LogInfo("call closed")
			return nil
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "Case ID")
	cmd.Flags().StringVar(&user, "user", "", "User ID whose call notifications are shown")
	cmd.Flags().BoolVar(&autoAccept, "auto-accept", false, "Accept the call without prompting")
	return cmd
}
