package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"chatdesk/internal/chat"
	"chatdesk/internal/i18n"
	"chatdesk/internal/storage"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect saved sessions",
	}
	sessionsCmd.AddCommand(
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List saved sessions, newest first",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, func(store storage.Store, tr *i18n.I18n) error {
					return listSessions(cmd.OutOrStdout(), store, tr)
				})
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print the transcript of a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, func(store storage.Store, tr *i18n.I18n) error {
					return showSession(cmd.OutOrStdout(), store, tr, args[0])
				})
			},
		},
		&cobra.Command{
			Use:     "delete <id>",
			Aliases: []string{"rm"},
			Short:   "Delete a saved session",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, func(store storage.Store, tr *i18n.I18n) error {
					if err := store.Delete(args[0]); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), tr.T("session.deleted", args[0]))
					return nil
				})
			},
		},
	)
	return sessionsCmd
}

func withStore(cmd *cobra.Command, fn func(storage.Store, *i18n.I18n) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	deps, err := setup(ctx)
	if err != nil {
		return err
	}
	defer deps.close(context.Background())
	return fn(deps.store, deps.tr)
}

func listSessions(out io.Writer, store storage.Store, tr *i18n.I18n) error {
	ids, err := store.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, tr.T("session.list_empty"))
		return nil
	}
	for _, id := range ids {
		doc, err := store.Load(id)
		if err != nil {
			// 损坏的会话仍然列出 / unreadable sessions are still listed
			fmt.Fprintf(out, "%s\t!\t%v\n", id, err)
			continue
		}
		fmt.Fprintf(out, "%s\t%d\t%s\n", id, len(doc.Messages), doc.Title)
	}
	return nil
}

func showSession(out io.Writer, store storage.Store, tr *i18n.I18n, id string) error {
	doc, err := store.Load(id)
	if err != nil {
		return err
	}
	header := []string{tr.T("sidebar.session") + ": " + doc.CurrentSession}
	if doc.Model != "" {
		header = append(header, tr.T("sidebar.model")+": "+doc.Model)
	}
	fmt.Fprintln(out, strings.Join(header, " · "))
	labels := map[chat.Role]string{
		chat.RoleUser:      tr.T("role.user"),
		chat.RoleAssistant: tr.T("role.assistant"),
		chat.RoleSystem:    tr.T("role.system"),
	}
	for _, msg := range doc.Messages {
		label, ok := labels[msg.Role]
		if !ok {
			label = string(msg.Role)
		}
		fmt.Fprintf(out, "\n[%s]\n%s\n", label, msg.Content)
	}
	return nil
}
