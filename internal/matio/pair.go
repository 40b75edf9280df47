package matio

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// LoadPair loads the two source matrices concurrently and checks that they
// share a column count.
func LoadPair(ctx context.Context, xPath, yPath string) (*mat.Dense, *mat.Dense, error) {
	var (
		x, y *mat.Dense
		g    errgroup.Group
	)
	g.Go(func() error {
		var err error
		x, err = Load(xPath)
		return err
	})
	g.Go(func() error {
		var err error
		y, err = Load(yPath)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	_, xc := x.Dims()
	_, yc := y.Dims()
	if xc != yc {
		return nil, nil, fmt.Errorf("matio: %s has %d columns, %s has %d", xPath, xc, yPath, yc)
	}
	return x, y, nil
}
