package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"resumerag/internal/config"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	root := &cobra.Command{
		Use:           "rag",
		Short:         "Chat with a résumé PDF and get page-level citations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to YAML config file (uses ./config.yaml or ~/.config/resumerag/config.yaml if not provided)")

	load := func() (*config.AppConfig, error) {
		if cfgPath == "" {
			cfg, _, err := config.LoadDefault()
			return cfg, err
		}
		return config.Load(cfgPath)
	}
	root.AddCommand(serveCMD(load), chatCMD(load))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
