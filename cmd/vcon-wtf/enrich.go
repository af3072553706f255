package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/snarg/vcon-wtf/internal/vcon"
)

func enrichCmd() *cobra.Command {
	var (
		model          string
		language       string
		wordTimestamps bool
	)
	cmd := &cobra.Command{
		Use:   "enrich [file|-]",
		Short: "Enrich one vCon and write it to stdout",
		Long: `Enrich one vCon read from a file (or stdin when the argument is "-" or
omitted) and write the enriched vCon to stdout. Logs and stats go to stderr.

Examples:
  vcon-wtf enrich call.vcon.json > call.enriched.json
  cat call.vcon.json | vcon-wtf enrich --model turbo -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			data, err := readInput(cmd.InOrStdin(), src)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

			doc, err := vcon.Parse(data)
			if err != nil {
				return fmt.Errorf("parse vcon: %w", err)
			}
			if err := vcon.Validate(doc); err != nil {
				return err
			}

			p, err := newPipeline(cfg, log)
			if err != nil {
				return err
			}
			p.engine.Start()
			defer p.engine.Stop()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			enriched, stats := p.enricher.Enrich(ctx, doc, vcon.Options{
				Model:          model,
				Language:       language,
				WordTimestamps: wordTimestamps,
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(enriched); err != nil {
				return err
			}
			if stats.Processed == 0 && stats.Failed > 0 {
				return fmt.Errorf("all %d audio dialogs failed", stats.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Model alias or ID (default: DEFAULT_MODEL)")
	cmd.Flags().StringVar(&language, "language", "", "Language hint, e.g. en")
	cmd.Flags().BoolVar(&wordTimestamps, "word-timestamps", true, "Request word-level timestamps")
	return cmd
}

func readInput(stdin io.Reader, src string) ([]byte, error) {
	if src == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(src)
}
