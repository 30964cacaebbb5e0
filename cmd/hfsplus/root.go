// Package main implements the hfsplus exploration CLI (spec.md §4.J): a
// read-only tool for mounting an HFS+ image and inspecting it from the
// command line, mirroring the teacher's cobra-based command registration.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/go-hfsplus/hfsplus/internal/hfslog"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "hfsplus",
	Short: "Read-only HFS+ volume explorer",
	Long: `hfsplus is a read-only command-line tool for mounting and inspecting
Apple HFS+ volume images: listing directories, stat-ing paths, dumping
forks, and reporting basic volume health. It performs no repair and no
formatting.`,
	Version: "0.1.0-dev",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	cobra.OnInitialize(func() {
		if verbose {
			hfslog.Logger.SetLevel(logrus.DebugLevel)
		}
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
