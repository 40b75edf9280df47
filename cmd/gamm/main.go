package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/objones25/gamm/internal/config"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "gamm",
		Short: "gamm - Sketch-based approximate matrix multiplication",
		Long: `gamm approximates X·Yᵗ by streaming the columns of X and Y into a pair of
narrow sketches with a rank-reducing SVD step, in single-threaded and
parallel variants.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a TOML, YAML or JSON configuration file")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "gamm v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(newRunCommand(&configPath))
	root.AddCommand(newGenerateCommand())
	root.AddCommand(newShowCommand(&configPath))
	return root
}
