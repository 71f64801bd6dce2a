package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/faucetdb/keygate/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		baseURL    string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification",
		Long:  `Generate the OpenAPI 3 document describing the key management API.`,
		Example: `  keygate openapi
  keygate openapi --base-url https://keys.example.com -o openapi.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if baseURL == "" {
				baseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
			}

			doc := openapi.GenerateKeysSpec(baseURL, cfg.Auth.APIKeyHeader)
			jsonBytes, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal openapi spec: %w", err)
			}

			if outputFile != "" {
				if err := os.WriteFile(outputFile, append(jsonBytes, '\n'), 0644); err != nil {
					return fmt.Errorf("write %s: %w", outputFile, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", outputFile)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonBytes))
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server URL to embed in the spec (default http://localhost:<port>)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")

	return cmd
}
