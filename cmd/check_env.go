package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spigell/avatar-synth/internal/did"
	"github.com/spigell/avatar-synth/internal/replicate"
	"github.com/spigell/avatar-synth/internal/secrets"
	"github.com/spigell/avatar-synth/internal/veo"
)

const maskVisible = 10

var checkEnvCmd = &cobra.Command{
	Use:   "check-env",
	Short: "Report which provider credentials are configured",
	Run: func(_ *cobra.Command, _ []string) {
		config, err := getConfig()
		if err != nil {
			log.Fatalf("getting a config: %s", err)
		}

		if !checkEnv(os.Stdout, config) {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(checkEnvCmd)
}

type credential struct {
	provider string
	env      string
	source   secrets.Source
}

func credentials(config *Config) []credential {
	return []credential{
		{provider: did.Name, env: "D_ID_API_KEY", source: secrets.Source{Name: "d-id api key", Value: config.DID.APIKey, File: config.DID.APIKeyFile}},
		{provider: veo.Name, env: "GEMINI_API_KEY", source: secrets.Source{Name: "gemini api key", Value: config.Veo.APIKey, File: config.Veo.APIKeyFile}},
		{provider: replicate.Name, env: "REPLICATE_API_TOKEN", source: secrets.Source{Name: "replicate api token", Value: config.Replicate.APIToken, File: config.Replicate.APITokenFile}},
	}
}

// checkEnv prints one line per credential and reports whether the selected
// provider can be used.
func checkEnv(w io.Writer, config *Config) bool {
	selected := strings.TrimSpace(strings.ToLower(config.Provider))
	if selected == "" || selected == "did" {
		selected = did.Name
	}

	ok := true
	for _, c := range credentials(config) {
		marker := " "
		if c.provider == selected {
			marker = "*"
		}

		value, err := secrets.Load(c.source)
		if err != nil {
			fmt.Fprintf(w, "%s %-10s %-20s missing (%s)\n", marker, c.provider, c.env, err)
			if c.provider == selected {
				ok = false
			}
			continue
		}

		fmt.Fprintf(w, "%s %-10s %-20s %s\n", marker, c.provider, c.env, secrets.Mask(value, maskVisible))
	}

	return ok
}
