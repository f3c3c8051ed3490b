// Package resample changes the voxel grid of a volume while keeping its physical
// placement. Output voxels are computed in z-slabs on a bounded worker pool.
package resample

import (
	"context"
	"fmt"
	"runtime"

	"github.com/jaa/tbprep/internal/geom"
	"github.com/jaa/tbprep/internal/volume"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// Spacing is the target spacing in millimeters.
	Spacing       geom.Vec3
	Interpolation Interpolation
	// Threads bounds the worker pool; zero means one worker per CPU.
	Threads int
}

// Resample produces src on a new grid with the requested spacing. Origin and direction
// are preserved and the extent is kept by OutputSize.
func Resample(ctx context.Context, src *volume.Volume, opts Options) (*volume.Volume, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	size, err := OutputSize(src.Size, src.Spacing, opts.Spacing)
	if err != nil {
		return nil, err
	}

	dst := src.Like(size, opts.Spacing)
	dst.Name = ResampledName(src.Name, opts.Spacing)
	if err := ToGrid(ctx, src, dst, opts.Interpolation, opts.Threads, 0); err != nil {
		return nil, err
	}
	return dst, nil
}

// ToGrid fills dst by sampling src at the physical position of every dst voxel. Positions
// that fall outside src receive fill.
func ToGrid(ctx context.Context, src, dst *volume.Volume, method Interpolation, threads int, fill float64) error {
	if err := dst.Validate(); err != nil {
		return fmt.Errorf("resample target: %w", err)
	}
	s, err := newSampler(src, method, fill)
	if err != nil {
		return err
	}
	toIndex, err := src.PhysicalToIndexMapper()
	if err != nil {
		return err
	}

	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)

	for k := 0; k < dst.Size[2]; k++ {
		if gctx.Err() != nil {
			break
		}
		k := k
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for j := 0; j < dst.Size[1]; j++ {
				for i := 0; i < dst.Size[0]; i++ {
					p := dst.IndexToPhysical(geom.Vec3{float64(i), float64(j), float64(k)})
					index := toIndex(p)
					dst.Set(i, j, k, dst.ClampToType(s.sample(index)))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("resample %s: %w", src.Name, err)
	}
	return ctx.Err()
}
