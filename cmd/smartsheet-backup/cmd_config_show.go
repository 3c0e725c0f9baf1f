/*
Copyright © 2024 paul <paul@denknerd.org>
*/
package main

import (
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Output current config",
	Long: `
Is something not working for you?  Have a look whether your config is as you expect.  The access
token is never printed.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showConfig(os.Stdout)
	},
}

func init() {
	configCmd.AddCommand(showCmd)
}

// effectiveConfig is what a backup run would use right now, flags and config file combined.
type effectiveConfig struct {
	ConfigFile              string   `yaml:"config-file"`
	Debug                   bool     `yaml:"debug"`
	AccessToken             string   `yaml:"access-token,omitempty"`
	AuthTokenCmd            []string `yaml:"auth-token-cmd,omitempty"`
	APIBase                 string   `yaml:"api-base,omitempty"`
	ProxyURL                string   `yaml:"proxy-url,omitempty"`
	RequestsPerMinute       int      `yaml:"requests-per-minute"`
	OutputDir               string   `yaml:"output-dir"`
	DownloadThreads         int      `yaml:"download-threads"`
	AllDownloadsDoneTimeout int      `yaml:"all-downloads-done-timeout"`
	ZipOutputDir            bool     `yaml:"zip-output-dir"`
	ContinueOnError         bool     `yaml:"continue-on-error"`
	Progress                bool     `yaml:"progress"`
	WithVCR                 bool     `yaml:"with-vcr"`
}

func currentConfig() effectiveConfig {
	c := effectiveConfig{
		ConfigFile:              Config,
		Debug:                   Debug,
		AuthTokenCmd:            AuthTokenCmd,
		APIBase:                 APIBase,
		ProxyURL:                redactURL(ProxyURL),
		RequestsPerMinute:       RequestsPerMinute,
		OutputDir:               OutputDir,
		DownloadThreads:         DownloadThreads,
		AllDownloadsDoneTimeout: AllDownloadsDoneTimeout,
		ZipOutputDir:            ZipOutputDir,
		ContinueOnError:         ContinueOnError,
		Progress:                Progress,
		WithVCR:                 WithVCR,
	}

	// backup's own flags don't exist on this command, so the config file was not bound onto them.
	p := ParsedConfig
	if p.OutputDir != "" {
		c.OutputDir = p.OutputDir
	}
	if p.DownloadThreads != nil {
		c.DownloadThreads = *p.DownloadThreads
	}
	if p.AllDownloadsDoneTimeout != nil {
		c.AllDownloadsDoneTimeout = *p.AllDownloadsDoneTimeout
	}
	if p.ZipOutputDir != nil {
		c.ZipOutputDir = *p.ZipOutputDir
	}
	if p.ContinueOnError != nil {
		c.ContinueOnError = *p.ContinueOnError
	}
	if p.Progress != nil {
		c.Progress = *p.Progress
	}
	if p.WithVCR != nil {
		c.WithVCR = *p.WithVCR
	}

	if AccessToken != "" {
		c.AccessToken = "<redacted>"
	}
	return c
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}

func showConfig(out io.Writer) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(currentConfig()); err != nil {
		return fmt.Errorf("smartsheet-backup: couldn't render config: %w", err)
	}
	return enc.Close()
}
