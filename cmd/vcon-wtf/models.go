package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/snarg/vcon-wtf/internal/transcribe"
)

func modelsCmd() *cobra.Command {
	var modelsFile string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Print the model alias table",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := transcribe.LoadModels(modelsFile)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(reg.List())
		},
	}
	cmd.Flags().StringVar(&modelsFile, "file", "", "YAML alias table (default: built-in, or MODELS_FILE)")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if modelsFile == "" {
			if cfg, err := loadConfig(); err == nil {
				modelsFile = cfg.ModelsFile
			}
		}
		return nil
	}
	return cmd
}
