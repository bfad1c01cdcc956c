package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fcjr/sdburn/internal/command"
)

const (
	typeDisk = "disk"
	typePart = "part"
)

const (
	enumerateColumns = "NAME,PATH,SIZE,TYPE,TRAN"
	inspectColumns   = "NAME,PATH,SIZE,TYPE,FSTYPE,LABEL,MOUNTPOINT,VENDOR,MODEL,TRAN,RM"
	treeColumns      = "NAME,PATH,TYPE,MOUNTPOINT"
)

func lsblkEnumerate() command.Command {
	return command.New("lsblk", "-J", "-b", "-d", "-o", enumerateColumns)
}

func lsblkInspect(path string) command.Command {
	return command.New("lsblk", "-J", "-b", "-o", inspectColumns, path)
}

func lsblkTree() command.Command {
	return command.New("lsblk", "-J", "-o", treeColumns)
}

type lsblkOutput struct {
	BlockDevices []lsblkDevice `json:"blockdevices"`
}

type lsblkDevice struct {
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	Type       string        `json:"type"`
	FSType     string        `json:"fstype"`
	Label      string        `json:"label"`
	MountPoint string        `json:"mountpoint"`
	Vendor     string        `json:"vendor"`
	Model      string        `json:"model"`
	Tran       string        `json:"tran"`
	Children   []lsblkDevice `json:"children"`
	Size       flexUint      `json:"size"`
	RM         flexBool      `json:"rm"`
}

func (d lsblkDevice) devPath() string {
	if d.Path != "" {
		return d.Path
	}
	return "/dev/" + d.Name
}

// walk visits d and all of its descendants, passing the chain of ancestors.
func (d lsblkDevice) walk(parents []lsblkDevice, fn func(dev lsblkDevice, parents []lsblkDevice) bool) bool {
	if fn(d, parents) {
		return true
	}
	chain := append(parents[:len(parents):len(parents)], d)
	for _, child := range d.Children {
		if child.walk(chain, fn) {
			return true
		}
	}
	return false
}

func runLsblk(ctx context.Context, exec command.Executor, cmd command.Command) (lsblkOutput, error) {
	var out lsblkOutput
	data, err := exec.Output(ctx, cmd)
	if err != nil {
		return out, fmt.Errorf("failed to run lsblk: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to parse lsblk output: %w", err)
	}
	return out, nil
}

// flexUint accepts both the numeric and the quoted form older lsblk emits.
type flexUint uint64

func (f *flexUint) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", b, err)
	}
	*f = flexUint(v)
	return nil
}

// flexBool accepts true/false as well as "1"/"0".
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch string(bytes.Trim(b, `"`)) {
	case "true", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}
