// Package cmd holds the vspfilter subcommands.
package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smazurov/vspfilter/internal/config"
	"github.com/smazurov/vspfilter/internal/logging"
	"github.com/spf13/cobra"
)

// deviceFlags are the stage device overrides shared by the subcommands.
type deviceFlags struct {
	input  string
	output string
}

func (d *deviceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.input, "input-device", "", `Input (rpf) video node, "auto" to scan`)
	cmd.Flags().StringVar(&d.output, "output-device", "", `Output (wpf) video node, "auto" to scan`)
}

// resolve applies the device file and defaults. Empty results mean scan.
func (d *deviceFlags) resolve() (string, string, error) {
	path := config.DeviceFilePath()
	file, err := config.LoadDeviceFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read device file %s: %w", path, err)
	}
	in, out := config.ResolveDevicePaths(d.input, d.output, file)
	return in, out, nil
}

// logFlags configure logging for a one-shot command.
type logFlags struct {
	level string
	json  bool
}

func (l *logFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&l.level, "log-level", "info", "Logging level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&l.json, "log-json", false, "Use JSON log format")
}

func (l *logFlags) config() logging.Config {
	cfg := logging.Config{Level: l.level, Format: "text"}
	if l.json {
		cfg.Format = "json"
	}
	return cfg
}

// parseSize parses "WIDTHxHEIGHT".
func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q, want WIDTHxHEIGHT", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid width in %q", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid height in %q", s)
	}
	return w, h, nil
}

func orAuto(path string) string {
	if path == "" {
		return config.AutoDevice
	}
	return path
}
