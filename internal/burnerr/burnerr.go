// Package burnerr defines the error kinds shared by the device, image, safety
// and burn packages, and the diagnostic record returned for terminal failures.
package burnerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDeviceNotFound       = errors.New("device not found")
	ErrDeviceUnsuitable     = errors.New("device unsuitable")
	ErrImageNotFound        = errors.New("image not found")
	ErrImageEmpty           = errors.New("image is empty")
	ErrImageTooSmall        = errors.New("image too small")
	ErrImageCorrupt         = errors.New("image corrupt")
	ErrDirectoryNotFound    = errors.New("directory not found")
	ErrCapacityInsufficient = errors.New("insufficient device capacity")
	ErrMountConflict        = errors.New("device is still mounted")
	ErrWriteFailure         = errors.New("write failed")
	ErrVerifyMismatch       = errors.New("verification mismatch")
	ErrCancelled            = errors.New("operation cancelled")
	ErrInvalidOptions       = errors.New("invalid write options")
)

// Error carries the diagnostic context of a failed operation. It matches both
// its Kind and its underlying cause with errors.Is.
type Error struct {
	Kind    error
	Err     error
	Device  string
	Image   string
	Reason  string
	Attempt int
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}

	var ctx []string
	if e.Device != "" {
		ctx = append(ctx, "device="+e.Device)
	}
	if e.Image != "" {
		ctx = append(ctx, "image="+e.Image)
	}
	if e.Attempt > 0 {
		ctx = append(ctx, fmt.Sprintf("attempt=%d", e.Attempt))
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, " "))
		b.WriteString(")")
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an Error of the given kind wrapping cause.
func New(kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

// Unsuitable returns an ErrDeviceUnsuitable error for device with reason.
func Unsuitable(device, reason string) *Error {
	return &Error{Kind: ErrDeviceUnsuitable, Device: device, Reason: reason}
}

// WithContext fills in missing diagnostic fields of err. Errors that are not
// an *Error are wrapped with the given kind.
func WithContext(err, kind error, device, image string, attempt int) *Error {
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Kind: kind, Err: err}
	} else {
		cp := *e
		e = &cp
	}
	if e.Device == "" {
		e.Device = device
	}
	if e.Image == "" {
		e.Image = image
	}
	if e.Attempt == 0 {
		e.Attempt = attempt
	}
	return e
}

// IsTransient reports whether err belongs to the retryable class: write I/O
// failures and verification mismatches.
func IsTransient(err error) bool {
	if errors.Is(err, ErrCancelled) {
		return false
	}
	return errors.Is(err, ErrWriteFailure) || errors.Is(err, ErrVerifyMismatch)
}
