package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"insight-gateway/internal/model"
	"insight-gateway/internal/service"
)

var validateFormat string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Fetch and validate the source data without serving it",
	Long: `validate reads the configured source, runs the schema and cross-reference
checks and prints every report. It exits non-zero when the data would be
rejected by a refresh.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := service.ParseFormat(validateFormat)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		raw, err := a.refresher.Fetch(cmd.Context())
		if err != nil {
			return err
		}
		result, refreshErr := a.engine.Refresh(cmd.Context(), raw)
		if result == nil {
			return refreshErr
		}
		if err := writeResult(cmd.OutOrStdout(), result, format); err != nil {
			return err
		}
		if refreshErr != nil {
			return fmt.Errorf("source %s failed validation: %w", a.cfg.Source.Describe(), refreshErr)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateFormat, "format", "f", service.FormatYAML, "Report format: json or yaml")
}

func writeResult(w io.Writer, result *model.RefreshResult, format string) error {
	if format == service.FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(result); err != nil {
		return err
	}
	return enc.Close()
}
