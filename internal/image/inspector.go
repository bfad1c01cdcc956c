// Package image inspects disk image files: it identifies their compression
// codec, validates them, estimates their decompressed size and opens
// decompressing readers over them.
package image

import (
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fcjr/sdburn/internal/burnerr"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/ulikunitz/xz"
)

// MinImageSize is the smallest file accepted as an image.
const MinImageSize = 1 << 20

// Info describes a validated image file.
type Info struct {
	Created          time.Time
	Path             string
	Codec            Codec
	Size             int64
	DecompressedSize int64
	// SizeExact is false when DecompressedSize is an estimate.
	SizeExact bool
	Valid     bool
}

// Inspector reads image files through an afero filesystem.
type Inspector struct {
	fs     afero.Fs
	codecs CodecTable
}

func NewInspector(fs afero.Fs, codecs CodecTable) *Inspector {
	return &Inspector{fs: fs, codecs: codecs}
}

func (i *Inspector) CodecOf(path string) Codec {
	c, _ := i.codecs.Lookup(path)
	return c
}

func (i *Inspector) stat(path string) (os.FileInfo, error) {
	fi, err := i.fs.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &burnerr.Error{Kind: burnerr.ErrImageNotFound, Image: path}
	}
	if err != nil {
		return nil, &burnerr.Error{Kind: burnerr.ErrImageNotFound, Image: path, Err: err}
	}
	if fi.IsDir() {
		return nil, &burnerr.Error{Kind: burnerr.ErrImageNotFound, Image: path, Reason: "is a directory"}
	}
	return fi, nil
}

// Validate checks that path is a usable image. Compressed images are decoded
// in full so the codec's own integrity checks run.
func (i *Inspector) Validate(ctx context.Context, path string) error {
	_, _, err := i.validate(ctx, path)
	return err
}

// validate returns the file info and the exact decompressed length, which
// for compressed images is counted while the codec checks the stream.
func (i *Inspector) validate(ctx context.Context, path string) (os.FileInfo, int64, error) {
	fi, err := i.stat(path)
	if err != nil {
		return nil, 0, err
	}
	switch {
	case fi.Size() == 0:
		return nil, 0, &burnerr.Error{Kind: burnerr.ErrImageEmpty, Image: path}
	case fi.Size() < MinImageSize:
		return nil, 0, &burnerr.Error{
			Kind:   burnerr.ErrImageTooSmall,
			Image:  path,
			Reason: fmt.Sprintf("%d bytes, need at least %d", fi.Size(), MinImageSize),
		}
	}

	codec := i.CodecOf(path)
	if !codec.Compressed() {
		return fi, fi.Size(), nil
	}

	start := time.Now()
	n, err := i.CountDecompressed(ctx, path)
	if err != nil {
		return nil, 0, err
	}
	log.Debug().
		Str("image", path).
		Stringer("codec", codec).
		Int64("decompressed", n).
		Dur("took", time.Since(start)).
		Msg("image integrity check passed")
	return fi, n, nil
}

// DecompressedSize estimates the number of bytes the image expands to from
// container metadata, without decoding, and reports whether that figure is
// exact. Use Inspect when an exact size is required.
func (i *Inspector) DecompressedSize(path string) (int64, bool, error) {
	fi, err := i.stat(path)
	if err != nil {
		return 0, false, err
	}
	return i.decompressedSize(path, fi.Size())
}

func (i *Inspector) decompressedSize(path string, size int64) (int64, bool, error) {
	codec := i.CodecOf(path)
	if !codec.Compressed() {
		return size, true, nil
	}

	f, err := i.fs.Open(path)
	if err != nil {
		return 0, false, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	var (
		n     int64
		exact bool
	)
	switch codec {
	case CodecXZ:
		n, err = xzUncompressedSize(f, size)
		exact = err == nil
	case CodecGzip:
		n, exact, err = gzipSize(f, size)
	case CodecZstd:
		n, exact, err = zstdSize(f)
	}
	if err != nil {
		return 0, false, &burnerr.Error{Kind: burnerr.ErrImageCorrupt, Image: path, Reason: codec.String(), Err: err}
	}
	if !exact && n == 0 {
		n = size
	}
	return n, exact, nil
}

// Inspect validates the image and reports its codec and sizes. Validation
// decodes the whole stream, so the decompressed size is always exact.
func (i *Inspector) Inspect(ctx context.Context, path string) (Info, error) {
	fi, n, err := i.validate(ctx, path)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Path:             path,
		Size:             fi.Size(),
		Codec:            i.CodecOf(path),
		DecompressedSize: n,
		SizeExact:        true,
		Valid:            true,
		Created:          fi.ModTime(),
	}, nil
}

// Estimate reports codec and sizes from file metadata alone. The stream is
// not checked, so Valid is false and the size may be approximate.
func (i *Inspector) Estimate(path string) (Info, error) {
	fi, err := i.stat(path)
	if err != nil {
		return Info{}, err
	}
	n, exact, err := i.decompressedSize(path, fi.Size())
	if err != nil {
		return Info{}, err
	}
	return Info{
		Path:             path,
		Size:             fi.Size(),
		Codec:            i.CodecOf(path),
		DecompressedSize: n,
		SizeExact:        exact,
		Created:          fi.ModTime(),
	}, nil
}

// Open returns a reader over the decompressed image bytes. Reads fail once
// ctx is cancelled.
func (i *Inspector) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if _, err := i.stat(path); err != nil {
		return nil, err
	}
	f, err := i.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	codec := i.CodecOf(path)
	dec, err := newDecoder(codec, f)
	if err != nil {
		f.Close()
		return nil, &burnerr.Error{Kind: burnerr.ErrImageCorrupt, Image: path, Reason: codec.String(), Err: err}
	}
	return &decodedReader{ctx: ctx, r: dec, closers: []io.Closer{dec, f}}, nil
}

// CountDecompressed streams the whole image and returns the exact number of
// bytes it expands to.
func (i *Inspector) CountDecompressed(ctx context.Context, path string) (int64, error) {
	rc, err := i.Open(ctx, path)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	n, err := io.Copy(io.Discard, rc)
	if err != nil {
		if ctx.Err() != nil {
			return n, &burnerr.Error{Kind: burnerr.ErrCancelled, Image: path, Err: err}
		}
		return n, &burnerr.Error{Kind: burnerr.ErrImageCorrupt, Image: path, Reason: i.CodecOf(path).String(), Err: err}
	}
	return n, nil
}

func newDecoder(codec Codec, r io.Reader) (io.ReadCloser, error) {
	switch codec {
	case CodecGzip:
		return gzip.NewReader(r)
	case CodecXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	case CodecBzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case CodecZstd:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return io.NopCloser(r), nil
	}
}

type decodedReader struct {
	ctx     context.Context
	r       io.Reader
	closers []io.Closer
}

func (d *decodedReader) Read(p []byte) (int, error) {
	if err := d.ctx.Err(); err != nil {
		return 0, err
	}
	return d.r.Read(p)
}

func (d *decodedReader) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
