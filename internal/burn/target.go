package burn

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

// Target is a device opened for writing.
type Target interface {
	io.Writer
	Sync() error
	Close() error
}

// Opener opens the device at path for writing.
type Opener func(path string) (Target, error)

// OpenDevice opens devices on fs write-through, so each completed write has
// reached the device before the next block is handed over.
func OpenDevice(fs afero.Fs) Opener {
	return func(path string) (Target, error) {
		f, err := fs.OpenFile(path, os.O_WRONLY|writeThrough, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s for writing: %w", path, err)
		}
		return f, nil
	}
}
