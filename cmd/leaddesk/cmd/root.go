package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/leaddesk/config"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "leaddesk",
	Short: "Leaddesk captures and triages studio leads",
	Long: `Leaddesk serves the studio website, accepts contact form and chat leads,
and hosts the admin dashboard used to review them.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("LEADDESK_CONFIG"), "Path to the YAML config file")
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}
