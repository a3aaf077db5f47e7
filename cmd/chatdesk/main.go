package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// 构建时通过 -ldflags "-X main.version=..." 注入
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile string
	useTUI  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chatdesk",
		Short: "Chat with an LLM from the terminal",
		Long:  "chatdesk is a single-user chat front-end that streams replies and keeps every session on disk.",
		// 无子命令时进入对话模式 / no subcommand starts chat mode
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (JSON/JSONC/YAML)")
	rootCmd.PersistentFlags().BoolVar(&useTUI, "tui", false, "use the full-screen TUI instead of the line REPL")

	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chatdesk version %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage project configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write .chatdesk/config.json in the current directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd)
		},
	})
	return configCmd
}
