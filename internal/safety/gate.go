// Package safety holds the checks that run before any destructive write:
// device capacity, mount conflicts with bounded unmount and eviction, and the
// caller's confirmation.
package safety

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fcjr/sdburn/internal/burnerr"
	"github.com/fcjr/sdburn/internal/config"
	"github.com/fcjr/sdburn/internal/device"
	"github.com/fcjr/sdburn/internal/retry"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ConfirmFunc asks the user a yes/no question.
type ConfirmFunc func(prompt string) bool

type Gate struct {
	mounts    device.MountTable
	unmounter Unmounter
	evictor   Evictor
	clock     clockwork.Clock
	attempts  int
	backoff   time.Duration
}

// Option configures a Gate.
type Option func(*Gate)

func WithClock(c clockwork.Clock) Option {
	return func(g *Gate) { g.clock = c }
}

func NewGate(mounts device.MountTable, unmounter Unmounter, evictor Evictor, cfg config.UnmountConfig, opts ...Option) *Gate {
	g := &Gate{
		mounts:    mounts,
		unmounter: unmounter,
		evictor:   evictor,
		clock:     clockwork.NewRealClock(),
		attempts:  cfg.Attempts,
		backoff:   cfg.Backoff,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckCapacity fails unless deviceSize can hold requiredSize bytes.
func (g *Gate) CheckCapacity(deviceSize, requiredSize uint64) error {
	if deviceSize < requiredSize {
		return &burnerr.Error{
			Kind:   burnerr.ErrCapacityInsufficient,
			Reason: fmt.Sprintf("device holds %d bytes, image needs %d", deviceSize, requiredSize),
		}
	}
	return nil
}

// CheckMountConflict makes sure nothing on dev is mounted. Each mount is
// unmounted with a bounded number of attempts; after a failed attempt the
// processes holding it are evicted before the next one. Any mount still in
// the table afterwards yields burnerr.ErrMountConflict.
func (g *Gate) CheckMountConflict(ctx context.Context, dev device.Device, allowMounted bool) error {
	mounts, err := g.deviceMounts(ctx, dev)
	if err != nil {
		return err
	}
	if len(mounts) == 0 {
		return nil
	}
	if allowMounted {
		log.Warn().Str("device", dev.Path).Int("mounts", len(mounts)).Msg("writing to mounted device")
		return nil
	}

	for _, m := range mounts {
		if err := g.release(ctx, m); err != nil {
			if ctx.Err() != nil {
				return &burnerr.Error{Kind: burnerr.ErrCancelled, Device: dev.Path, Err: err}
			}
			log.Warn().Err(err).Str("device", dev.Path).Str("mount", m.Point).Msg("could not release mount")
		}
	}

	remaining, err := g.deviceMounts(ctx, dev)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		points := make([]string, len(remaining))
		for i, m := range remaining {
			points[i] = m.Point
		}
		return &burnerr.Error{
			Kind:   burnerr.ErrMountConflict,
			Device: dev.Path,
			Reason: strings.Join(points, ", "),
		}
	}
	return nil
}

func (g *Gate) release(ctx context.Context, m device.Mount) error {
	policy := retry.Policy{
		Clock:    g.clock,
		Attempts: g.attempts,
		Delay:    g.backoff,
		OnFailure: func(attempt int, err error) {
			log.Debug().Err(err).Int("attempt", attempt).Str("mount", m.Point).Msg("unmount failed, retrying")
		},
	}

	_, attempts, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (struct{}, error) {
		err := g.unmounter.Unmount(ctx, m)
		if err == nil {
			err = g.stillMounted(ctx, m)
		}
		if err != nil && attempt < g.attempts && g.evictor != nil {
			n, evictErr := g.evictor.Evict(ctx, m.Point)
			if evictErr != nil {
				log.Warn().Err(evictErr).Str("mount", m.Point).Msg("eviction failed")
			} else if n > 0 {
				log.Info().Int("processes", n).Str("mount", m.Point).Msg("evicted processes")
			}
		}
		return struct{}{}, err
	}, nil)

	if err == nil {
		log.Info().Str("mount", m.Point).Int("attempts", attempts).Msg("unmounted")
	}
	return err
}

func (g *Gate) stillMounted(ctx context.Context, m device.Mount) error {
	mounts, err := g.mounts.Mounts(ctx)
	if err != nil {
		return err
	}
	for _, cur := range mounts {
		if cur.Point == m.Point && cur.Device == m.Device {
			return errors.New("still present in mount table")
		}
	}
	return nil
}

// deviceMounts combines the live mount table with the snapshot on dev,
// keeping only mount points that are actually present.
func (g *Gate) deviceMounts(ctx context.Context, dev device.Device) ([]device.Mount, error) {
	all, err := g.mounts.Mounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}

	mounts := device.MountsOf(all, device.StripPartition(dev.Path))
	for _, m := range all {
		if slices.Contains(dev.MountPoints, m.Point) && !slices.Contains(mounts, m) {
			mounts = append(mounts, m)
		}
	}
	// Unmount nested mounts first.
	slices.SortFunc(mounts, func(a, b device.Mount) int {
		return len(b.Point) - len(a.Point)
	})
	return mounts, nil
}

// Confirm asks fn to approve prompt. A nil fn never approves.
func (g *Gate) Confirm(fn ConfirmFunc, prompt string) bool {
	if fn == nil {
		return false
	}
	return fn(prompt)
}
