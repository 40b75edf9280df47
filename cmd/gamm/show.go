package main

import (
	"fmt"

	"github.com/objones25/gamm/internal/config"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

func newShowCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show [key]",
		Short: "List cached sketches, or describe one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath, cmd.Flags())
			if err != nil {
				return err
			}
			cache, err := openCache(cfg)
			if err != nil {
				return err
			}
			if cache == nil {
				return fmt.Errorf("%w: --redis-addr is required", config.ErrInvalid)
			}
			defer cache.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				keys, err := cache.Keys(cmd.Context())
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintln(out, k)
				}
				return nil
			}

			sketch, err := cache.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if sketch == nil {
				return fmt.Errorf("no sketch cached under %s", args[0])
			}
			xr, l := sketch.BX.Dims()
			yr, _ := sketch.BY.Dims()
			fmt.Fprintf(out, "key: %s\nBX: %d×%d\nBY: %d×%d\n", args[0], xr, l, yr, l)
			fmt.Fprintf(out, "column norms of BX:\n%v\n", columnNorms(sketch.BX))
			return nil
		},
	}
}

func columnNorms(m *mat.Dense) []float64 {
	_, c := m.Dims()
	norms := make([]float64, c)
	for j := range norms {
		norms[j] = mat.Norm(m.ColView(j), 2)
	}
	return norms
}
