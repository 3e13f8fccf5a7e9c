package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"resumerag/internal/config"
	"resumerag/internal/logging"
	"resumerag/internal/tui"
)

func chatCMD(load func() (*config.AppConfig, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <file.pdf>",
		Short: "Ingest a PDF locally and chat with it in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			// the terminal belongs to the TUI, so logs go to a file
			logCfg := cfg.Logging
			logCfg.Output = []string{"file"}
			logger := logging.New(logCfg)

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cfg, nil, logger)
			if err != nil {
				return err
			}
			defer a.manager.Close()
			if err := a.manager.Start(cmd.Context()); err != nil {
				return err
			}

			name := filepath.Base(args[0])
			res, err := a.service.Ingest(cmd.Context(), name, data)
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}
			header := fmt.Sprintf("%s: %d page(s), %d chunk(s)", name, res.PageCount, res.ChunkCount)
			_, err = tea.NewProgram(tui.New(a.service, res.SessionID, header), tea.WithAltScreen()).Run()
			return err
		},
	}
}
