package safety

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/process"
)

// Evictor terminates processes that keep a mount point busy.
type Evictor interface {
	Evict(ctx context.Context, mountPoint string) (int, error)
}

// ProcessEvictor finds holders through gopsutil by their working directory
// and open files, sends SIGTERM, and SIGKILLs whatever survives Grace.
type ProcessEvictor struct {
	Clock clockwork.Clock
	Grace time.Duration
}

func NewProcessEvictor() *ProcessEvictor {
	return &ProcessEvictor{Clock: clockwork.NewRealClock(), Grace: 500 * time.Millisecond}
}

func (e *ProcessEvictor) Evict(ctx context.Context, mountPoint string) (int, error) {
	if filepath.Clean(mountPoint) == "/" {
		return 0, errors.New("refusing to evict processes from /")
	}

	holders, err := findHolders(ctx, mountPoint)
	if err != nil {
		return 0, err
	}
	if len(holders) == 0 {
		return 0, nil
	}

	for _, p := range holders {
		name, _ := p.NameWithContext(ctx)
		log.Info().Int32("pid", p.Pid).Str("name", name).Str("mount", mountPoint).Msg("terminating process holding mount")
		if err := p.TerminateWithContext(ctx); err != nil {
			log.Debug().Err(err).Int32("pid", p.Pid).Msg("terminate failed")
		}
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-e.Clock.After(e.Grace):
	}

	for _, p := range holders {
		if running, _ := p.IsRunningWithContext(ctx); !running {
			continue
		}
		log.Warn().Int32("pid", p.Pid).Str("mount", mountPoint).Msg("killing process holding mount")
		if err := p.KillWithContext(ctx); err != nil {
			return len(holders), fmt.Errorf("failed to kill pid %d: %w", p.Pid, err)
		}
	}
	return len(holders), nil
}

func findHolders(ctx context.Context, mountPoint string) ([]*process.Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	self := int32(os.Getpid())
	var holders []*process.Process
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		if holdsMount(ctx, p, mountPoint) {
			holders = append(holders, p)
		}
	}
	return holders, nil
}

func holdsMount(ctx context.Context, p *process.Process, mountPoint string) bool {
	if cwd, err := p.CwdWithContext(ctx); err == nil && within(cwd, mountPoint) {
		return true
	}
	files, err := p.OpenFilesWithContext(ctx)
	if err != nil {
		return false
	}
	for _, f := range files {
		if within(f.Path, mountPoint) {
			return true
		}
	}
	return false
}

// within reports whether path is mountPoint or lies beneath it.
func within(path, mountPoint string) bool {
	path = filepath.Clean(path)
	mountPoint = filepath.Clean(mountPoint)
	if path == mountPoint {
		return true
	}
	if mountPoint == "/" {
		return false
	}
	return strings.HasPrefix(path, mountPoint+string(filepath.Separator))
}
