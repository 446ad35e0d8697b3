package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/timeviewer/backend/internal/viewer"
)

func newTUICmd() *cobra.Command {
	var url, token string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Follow a running server in the terminal",
		RunE: func(_ *cobra.Command, _ []string) error {
			m := viewer.New(viewer.NewClient(url, token))
			_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://127.0.0.1:5168/client", "viewer WebSocket URL")
	cmd.Flags().StringVar(&token, "token", "", "auth token, if the server requires one")
	return cmd
}
