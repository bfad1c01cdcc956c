package burn

import "golang.org/x/sys/unix"

const writeThrough = unix.O_DSYNC
