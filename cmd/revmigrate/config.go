package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/revmigrate/internal/config"
)

type configInfo struct {
	*config.Config
	SecretSet bool   `json:"store_secret_set"`
	Problems  string `json:"problems,omitempty"`
}

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Display resolved configuration",
	Annotations: map[string]string{"skipValidate": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)

		info := configInfo{Config: cfg, SecretSet: cfg.StoreSecret != ""}
		if err := cfg.Validate(); err != nil {
			info.Problems = err.Error()
			w.Warn("%v", err)
		}

		w.Success(info, formatConfigHuman(info))
		return nil
	},
}

func formatEnvValue(val string) string {
	if val == "" {
		return "(not set)"
	}
	return val
}

func formatConfigHuman(info configInfo) string {
	secret := "(not set)"
	if info.SecretSet {
		secret = "(set)"
	}
	ghost := info.Ghost
	if ghost == "" {
		ghost = "(disabled)"
	}
	rate := "unlimited"
	if info.LoadRate > 0 {
		rate = fmt.Sprintf("%d B/s", info.LoadRate)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Store URL:        %s\n", formatEnvValue(info.StoreURL))
	fmt.Fprintf(&b, "Store secret:     %s\n", secret)
	fmt.Fprintf(&b, "Uploads URL:      %s\n", formatEnvValue(info.UploadsURL))
	fmt.Fprintf(&b, "Concurrency:      %d\n", info.Concurrency)
	fmt.Fprintf(&b, "Ghost user:       %s\n", ghost)
	fmt.Fprintf(&b, "Request timeout:  %s\n", info.RequestTimeout)
	fmt.Fprintf(&b, "Load rate:        %s\n", rate)
	fmt.Fprintf(&b, "Exclusions:       %s\n", formatEnvValue(info.Exclusions))
	fmt.Fprintf(&b, "Config file:      %s\n", formatEnvValue(info.ConfigFile))
	fmt.Fprintf(&b, "%s_STORE_URL: %s", config.EnvPrefix, formatEnvValue(os.Getenv(config.EnvPrefix+"_STORE_URL")))
	return b.String()
}

func init() {
	rootCmd.AddCommand(configCmd)
}
