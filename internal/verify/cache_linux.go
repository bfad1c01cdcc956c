package verify

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// dropCache evicts the first size bytes of f from the page cache so the
// following reads come from the medium. Files that are not backed by the OS
// are left alone.
func dropCache(f any, size int64) error {
	osf, ok := f.(*os.File)
	if !ok {
		return nil
	}
	fd := int(osf.Fd())

	fi, err := osf.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", osf.Name(), err)
	}
	if fi.Mode()&os.ModeDevice != 0 {
		if err := unix.IoctlSetInt(fd, unix.BLKFLSBUF, 0); err != nil {
			log.Debug().Err(err).Str("device", osf.Name()).Msg("BLKFLSBUF failed, relying on fadvise")
		}
	}
	if err := unix.Fadvise(fd, 0, size, unix.FADV_DONTNEED); err != nil {
		return fmt.Errorf("failed to drop cached pages of %s: %w", osf.Name(), err)
	}
	return nil
}
