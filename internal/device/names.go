package device

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	sdName     = regexp.MustCompile(`^mmcblk\d+$`)
	nvmeName   = regexp.MustCompile(`^nvme\d+n\d+$`)
	sataName   = regexp.MustCompile(`^(sd|hd|vd|xvd)[a-z]+$`)
	pseudoName = regexp.MustCompile(`^(loop|ram|zram)\d+$`)

	// Devices whose partitions are named <disk>p<N>.
	pSuffixPart = regexp.MustCompile(`^((?:mmcblk|nvme\d+n|loop|md|nbd)\d+)p\d+$`)
	digitPart   = regexp.MustCompile(`^((?:sd|hd|vd|xvd)[a-z]+)\d+$`)
)

// baseName returns the kernel name of a device path ("/dev/sdb" -> "sdb").
func baseName(path string) string {
	return filepath.Base(strings.TrimPrefix(path, "/dev/"))
}

// StripPartition returns the whole-disk path for a partition path, e.g.
// /dev/sda1 -> /dev/sda and /dev/mmcblk0p2 -> /dev/mmcblk0. Whole-disk and
// unrecognised paths are returned unchanged.
func StripPartition(path string) string {
	name := baseName(path)
	dir := strings.TrimSuffix(path, name)

	if m := pSuffixPart.FindStringSubmatch(name); m != nil {
		return dir + m[1]
	}
	if m := digitPart.FindStringSubmatch(name); m != nil {
		return dir + m[1]
	}
	return path
}

// IsPseudo reports whether path names a loop or RAM backed pseudo-device.
func IsPseudo(path string) bool {
	return pseudoName.MatchString(baseName(path))
}

// Classify determines the attachment kind of a device. USB attachment, seen
// either in the sysfs topology path or the transport hint, takes precedence
// over name patterns so a USB SD-card reader is never reported as SD.
func Classify(name, topology, transport string) Kind {
	name = baseName(name)
	switch {
	case isUSBTopology(topology) || strings.EqualFold(transport, "usb"):
		return KindUSB
	case sdName.MatchString(name):
		return KindSD
	case nvmeName.MatchString(name):
		return KindNVMe
	case sataName.MatchString(name):
		return KindSATA
	default:
		return KindUnknown
	}
}

func isUSBTopology(topology string) bool {
	for _, part := range strings.Split(topology, "/") {
		if strings.HasPrefix(part, "usb") {
			return true
		}
	}
	return false
}

func isBootMountPoint(point string) bool {
	return point == "/" || point == "/boot"
}
