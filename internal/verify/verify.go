// Package verify compares an image with what was written to a device.
package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/fcjr/sdburn/internal/image"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// ErrShortDevice is returned when the device holds fewer bytes than asked to
// compare.
var ErrShortDevice = errors.New("device shorter than image")

// Result holds both digests as lowercase hex.
type Result struct {
	SourceSum string
	DeviceSum string
	Match     bool
}

// Verifier hashes the decompressed image and the device prefix concurrently.
type Verifier struct {
	fs     afero.Fs
	images *image.Inspector
	// BufSize is the read size used for the device.
	BufSize int
}

func New(fs afero.Fs, images *image.Inspector) *Verifier {
	return &Verifier{fs: fs, images: images, BufSize: 4 << 20}
}

// Verify hashes the full decompressed stream of imagePath and the first size
// bytes of devicePath and reports whether they match. It never retries.
func (v *Verifier) Verify(ctx context.Context, imagePath, devicePath string, size int64) (Result, error) {
	var res Result
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rc, err := v.images.Open(ctx, imagePath)
		if err != nil {
			return err
		}
		defer rc.Close()

		h := sha256.New()
		if _, err := io.Copy(h, rc); err != nil {
			return fmt.Errorf("failed to hash image: %w", err)
		}
		res.SourceSum = hex.EncodeToString(h.Sum(nil))
		return nil
	})

	g.Go(func() error {
		f, err := v.fs.Open(devicePath)
		if err != nil {
			return fmt.Errorf("failed to open device: %w", err)
		}
		defer f.Close()

		// Reads must hit the device, not the pages the writer left behind.
		if err := dropCache(f, size); err != nil {
			return err
		}

		h := sha256.New()
		r := io.LimitReader(&ctxReader{ctx: ctx, r: f}, size)
		n, err := io.CopyBuffer(h, r, make([]byte, max(v.BufSize, 512)))
		if err != nil {
			return fmt.Errorf("failed to hash device: %w", err)
		}
		if n < size {
			return fmt.Errorf("%w: read %d of %d bytes", ErrShortDevice, n, size)
		}
		res.DeviceSum = hex.EncodeToString(h.Sum(nil))
		return nil
	})

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res.Match = res.SourceSum == res.DeviceSum
	log.Debug().
		Str("image", imagePath).
		Str("device", devicePath).
		Str("source_sha256", res.SourceSum).
		Str("device_sha256", res.DeviceSum).
		Bool("match", res.Match).
		Msg("verification finished")
	return res, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
