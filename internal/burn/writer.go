// Package burn writes disk images onto block devices. A write validates the
// image and the target, then streams the decompressed image to the device
// with retries, progress sampling and optional read-back verification.
package burn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fcjr/sdburn/internal/burnerr"
	"github.com/fcjr/sdburn/internal/config"
	"github.com/fcjr/sdburn/internal/device"
	"github.com/fcjr/sdburn/internal/image"
	"github.com/fcjr/sdburn/internal/progress"
	"github.com/fcjr/sdburn/internal/retry"
	"github.com/fcjr/sdburn/internal/safety"
	"github.com/fcjr/sdburn/internal/verify"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Confirm          safety.ConfirmFunc
	Progress         progress.Handler
	BlockSize        int
	MaxRetries       int
	RetryDelay       time.Duration
	ProgressInterval time.Duration
	Verify           bool
	AllowMounted     bool
}

// OptionsFromConfig fills Options from the write and device sections.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		BlockSize:        int(cfg.Write.BlockSize),
		MaxRetries:       cfg.Write.MaxRetries,
		RetryDelay:       cfg.Write.RetryDelay,
		ProgressInterval: cfg.Write.ProgressInterval,
		Verify:           cfg.Write.Verify,
		AllowMounted:     cfg.Device.AllowMounted,
	}
}

// CounterFunc picks the progress counter for a device. fed is incremented by
// the writer as blocks are written.
type CounterFunc func(devicePath string, fed *progress.AtomicCounter) progress.Counter

// KernelCounter uses the kernel's disk statistics for device nodes and falls
// back to fed for anything else.
func KernelCounter(devicePath string, fed *progress.AtomicCounter) progress.Counter {
	if strings.HasPrefix(devicePath, "/dev/") {
		return progress.NewDiskStats(devicePath)
	}
	return fed
}

// FedCounter always reports the bytes handed to the device.
func FedCounter(_ string, fed *progress.AtomicCounter) progress.Counter {
	return fed
}

type Writer struct {
	images   *image.Inspector
	gate     *safety.Gate
	verifier *verify.Verifier
	monitor  *progress.Monitor
	open     Opener
	clock    clockwork.Clock
	counter  CounterFunc
}

type WriterOption func(*Writer)

func WithClock(c clockwork.Clock) WriterOption {
	return func(w *Writer) { w.clock = c }
}

func WithCounter(fn CounterFunc) WriterOption {
	return func(w *Writer) { w.counter = fn }
}

func NewWriter(images *image.Inspector, gate *safety.Gate, verifier *verify.Verifier, open Opener, opts ...WriterOption) *Writer {
	w := &Writer{
		images:   images,
		gate:     gate,
		verifier: verifier,
		open:     open,
		clock:    clockwork.NewRealClock(),
		counter:  KernelCounter,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.monitor = progress.NewMonitor(w.clock)
	return w
}

// Write puts imagePath onto dev. The returned operation is always non-nil
// and in a terminal state; the error is the operation's Err.
//
// Failures before the first byte is written (image, capacity, mounts,
// confirmation) are terminal. Write and verification failures are retried
// up to MaxRetries attempts, waiting RetryDelay between attempts.
func (w *Writer) Write(ctx context.Context, imagePath string, dev device.Device, opts Options) (*WriteOperation, error) {
	return w.write(ctx, image.Info{Path: imagePath}, dev, opts)
}

// WriteInspected is Write for an image the caller already inspected. A valid
// info is trusted as is; anything else is inspected again.
func (w *Writer) WriteInspected(ctx context.Context, info image.Info, dev device.Device, opts Options) (*WriteOperation, error) {
	return w.write(ctx, info, dev, opts)
}

func (w *Writer) write(ctx context.Context, info image.Info, dev device.Device, opts Options) (*WriteOperation, error) {
	imagePath := info.Path
	op := newOperation(dev, opts.BlockSize)
	op.Image = info
	start := w.clock.Now()
	defer func() { op.Elapsed = w.clock.Since(start) }()

	logger := log.With().Str("op", op.ID).Str("image", imagePath).Str("device", dev.Path).Logger()

	if err := w.prepare(ctx, op, opts); err != nil {
		return w.fail(op, imagePath, err)
	}

	policy := retry.Policy{
		Clock:    w.clock,
		Attempts: opts.MaxRetries,
		Delay:    opts.RetryDelay,
		OnFailure: func(attempt int, err error) {
			logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", opts.RetryDelay).Msg("attempt failed, retrying")
		},
	}
	_, _, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (struct{}, error) {
		op.Attempts = attempt
		return struct{}{}, w.attempt(ctx, op, opts)
	}, burnerr.IsTransient)
	if err != nil {
		return w.fail(op, imagePath, err)
	}

	if err := op.setStatus(StatusSucceeded); err != nil {
		return w.fail(op, imagePath, err)
	}
	logger.Info().
		Int("attempts", op.Attempts).
		Int64("bytes", op.BytesWritten).
		Str("sha256", op.SourceChecksum).
		Msg("image written")
	return op, nil
}

func (w *Writer) prepare(ctx context.Context, op *WriteOperation, opts Options) error {
	if opts.BlockSize <= 0 {
		return &burnerr.Error{Kind: burnerr.ErrInvalidOptions, Reason: fmt.Sprintf("block size %d", opts.BlockSize)}
	}
	if opts.MaxRetries < 1 {
		return &burnerr.Error{Kind: burnerr.ErrInvalidOptions, Reason: fmt.Sprintf("retry count %d", opts.MaxRetries)}
	}

	if !op.Image.Valid {
		info, err := w.images.Inspect(ctx, op.Image.Path)
		if err != nil {
			return err
		}
		op.Image = info
	}
	info := op.Image
	if !info.SizeExact {
		log.Warn().Str("image", info.Path).Int64("estimate", info.DecompressedSize).
			Msg("decompressed size is an estimate")
	}

	if err := w.gate.CheckCapacity(op.Device.Size, uint64(info.DecompressedSize)); err != nil {
		return err
	}
	if err := w.gate.CheckMountConflict(ctx, op.Device, opts.AllowMounted); err != nil {
		return err
	}

	if opts.Confirm != nil {
		prompt := fmt.Sprintf("All data on %s (%s) will be erased. Continue?", op.Device.Path, op.Device.Description())
		if !w.gate.Confirm(opts.Confirm, prompt) {
			return &burnerr.Error{Kind: burnerr.ErrCancelled, Reason: "not confirmed"}
		}
	}
	return ctx.Err()
}

// attempt runs one write and, if enabled, one verification.
func (w *Writer) attempt(ctx context.Context, op *WriteOperation, opts Options) error {
	if err := op.setStatus(StatusWriting); err != nil {
		return err
	}
	op.SourceChecksum, op.DeviceChecksum = "", ""

	n, err := w.writeImage(ctx, op, opts)
	op.BytesWritten = n
	if err != nil {
		if ctx.Err() != nil {
			return burnerr.New(burnerr.ErrCancelled, err)
		}
		return &burnerr.Error{Kind: burnerr.ErrWriteFailure, Attempt: op.Attempts, Err: err}
	}
	if !opts.Verify {
		return nil
	}

	if err := op.setStatus(StatusVerifying); err != nil {
		return err
	}
	res, err := w.verifier.Verify(ctx, op.Image.Path, op.Device.Path, n)
	if err != nil {
		if ctx.Err() != nil {
			return burnerr.New(burnerr.ErrCancelled, err)
		}
		return &burnerr.Error{Kind: burnerr.ErrVerifyMismatch, Attempt: op.Attempts, Reason: "read-back failed", Err: err}
	}
	op.SourceChecksum, op.DeviceChecksum = res.SourceSum, res.DeviceSum
	if !res.Match {
		return &burnerr.Error{
			Kind:    burnerr.ErrVerifyMismatch,
			Attempt: op.Attempts,
			Reason:  fmt.Sprintf("image sha256 %s, device sha256 %s", res.SourceSum, res.DeviceSum),
		}
	}
	return nil
}

// writeImage streams the decompressed image onto the device. The progress
// monitor runs only while blocks are being written and has exited by the time
// writeImage returns.
func (w *Writer) writeImage(ctx context.Context, op *WriteOperation, opts Options) (int64, error) {
	src, err := w.images.Open(ctx, op.Image.Path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := w.open(op.Device.Path)
	if err != nil {
		return 0, err
	}

	fed := &progress.AtomicCounter{}
	handle := w.monitor.Start(ctx, w.counter(op.Device.Path, fed), uint64(op.Image.DecompressedSize),
		opts.ProgressInterval, opts.Progress)

	n, err := copyBlocks(ctx, dst, src, opts.BlockSize, fed)
	if err == nil {
		err = dst.Sync()
	}
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		handle.Stop()
		return n, err
	}
	handle.Complete()
	return n, nil
}

func copyBlocks(ctx context.Context, dst io.Writer, src io.Reader, blockSize int, fed *progress.AtomicCounter) (int64, error) {
	buf := make([]byte, blockSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			written, werr := dst.Write(buf[:n])
			total += int64(written)
			fed.Add(written)
			if werr != nil {
				return total, fmt.Errorf("failed to write at offset %d: %w", total, werr)
			}
			if written < n {
				return total, fmt.Errorf("failed to write at offset %d: %w", total, io.ErrShortWrite)
			}
		}

		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF), errors.Is(rerr, io.ErrUnexpectedEOF):
			return total, nil
		default:
			return total, fmt.Errorf("failed to read image: %w", rerr)
		}
	}
}

func (w *Writer) fail(op *WriteOperation, imagePath string, err error) (*WriteOperation, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if !errors.Is(err, burnerr.ErrCancelled) {
			err = burnerr.New(burnerr.ErrCancelled, err)
		}
	}
	e := burnerr.WithContext(err, burnerr.ErrWriteFailure, op.Device.Path, imagePath, op.Attempts)
	op.Err = e
	if !op.Status.Terminal() {
		_ = op.setStatus(StatusFailed)
	}

	log.Error().
		Err(e).
		Str("op", op.ID).
		Int("attempts", op.Attempts).
		Stringer("status", op.Status).
		Msg("write failed")
	return op, e
}
