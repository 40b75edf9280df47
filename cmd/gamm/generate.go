package main

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/objones25/gamm/internal/linalg"
	"github.com/objones25/gamm/internal/matio"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newGenerateCommand() *cobra.Command {
	var rows, xRows, yRows, cols int
	var seed int64
	var out string
	var compress bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a random pair of source matrices",
		Long: `Write X and Y with standard normal entries, sharing the column count.

Example:
  gamm generate --rows 1000 --cols 100000 --seed 7 --out data`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if xRows <= 0 {
				xRows = rows
			}
			if yRows <= 0 {
				yRows = rows
			}
			if xRows <= 0 || yRows <= 0 || cols <= 0 {
				return fmt.Errorf("rows and cols must be positive")
			}
			xPath, yPath, err := generatePair(out, xRows, yRows, cols, seed, compress)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", xPath, yPath)
			return nil
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 100, "Rows of both matrices")
	cmd.Flags().IntVar(&xRows, "x-rows", 0, "Rows of X, overriding --rows")
	cmd.Flags().IntVar(&yRows, "y-rows", 0, "Rows of Y, overriding --rows")
	cmd.Flags().IntVar(&cols, "cols", 10000, "Shared column count")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Random seed")
	cmd.Flags().StringVar(&out, "out", ".", "Output directory")
	cmd.Flags().BoolVar(&compress, "compress", false, "Write zstd-compressed files")
	return cmd
}

// generatePair writes x.bin and y.bin (or their .zst variants) to dir.
func generatePair(dir string, xRows, yRows, cols int, seed int64, compress bool) (string, string, error) {
	suffix := ""
	if compress {
		suffix = matio.CompressedSuffix
	}
	xPath := filepath.Join(dir, "x.bin"+suffix)
	yPath := filepath.Join(dir, "y.bin"+suffix)

	rng := rand.New(rand.NewSource(seed))
	x := linalg.RandomMatrix(rng, xRows, cols)
	y := linalg.RandomMatrix(rng, yRows, cols)

	var g errgroup.Group
	g.Go(func() error { return matio.Save(xPath, x) })
	g.Go(func() error { return matio.Save(yPath, y) })
	if err := g.Wait(); err != nil {
		return "", "", err
	}
	log.Info().Str("x", xPath).Str("y", yPath).Int("cols", cols).Msg("Generated matrices")
	return xPath, yPath, nil
}
