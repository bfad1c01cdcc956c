package burn

import (
	"fmt"
	"time"

	"github.com/fcjr/sdburn/internal/device"
	"github.com/fcjr/sdburn/internal/image"
	"github.com/google/uuid"
)

type Status int

const (
	StatusPending Status = iota
	StatusWriting
	StatusVerifying
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusWriting:
		return "writing"
	case StatusVerifying:
		return "verifying"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransition reports whether an operation may move from s to next.
// Writing may be re-entered from Writing or Verifying for a retry.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusWriting || next == StatusFailed
	case StatusWriting:
		return next != StatusPending
	case StatusVerifying:
		return next == StatusWriting || next == StatusSucceeded || next == StatusFailed
	default:
		return false
	}
}

// WriteOperation records one image write from start to its terminal state.
type WriteOperation struct {
	Image          image.Info
	Device         device.Device
	Err            error
	ID             string
	SourceChecksum string
	DeviceChecksum string
	// History lists every status the operation has been in, in order.
	History      []Status
	BlockSize    int
	Status       Status
	Attempts     int
	BytesWritten int64
	Elapsed      time.Duration
}

func newOperation(dev device.Device, blockSize int) *WriteOperation {
	return &WriteOperation{
		ID:        uuid.NewString(),
		Device:    dev,
		BlockSize: blockSize,
		Status:    StatusPending,
		History:   []Status{StatusPending},
	}
}

func (op *WriteOperation) setStatus(next Status) error {
	if !op.Status.CanTransition(next) {
		return fmt.Errorf("invalid status transition %s -> %s", op.Status, next)
	}
	op.Status = next
	op.History = append(op.History, next)
	return nil
}
