//go:build !linux

package burn

import "os"

const writeThrough = os.O_SYNC
