package install

import (
	"fmt"
	"os"
	"strings"

	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/fsutil"
)

// LinkMode selects how files move from the unpacked archive into the
// environment.
type LinkMode int

const (
	// LinkHardlink shares inodes with the cache and falls back to copying
	// when the cache sits on another filesystem. An installed file edited in
	// place also changes the cached copy; the store notices on the next
	// unpack and extracts the archive again.
	LinkHardlink LinkMode = iota
	LinkCopy
	LinkSymlink
)

// DefaultLinkMode is used when nothing is configured.
const DefaultLinkMode = LinkHardlink

func (m LinkMode) String() string {
	switch m {
	case LinkHardlink:
		return "hardlink"
	case LinkCopy:
		return "copy"
	case LinkSymlink:
		return "symlink"
	}
	return fmt.Sprintf("LinkMode(%d)", int(m))
}

// ParseLinkMode parses "copy", "hardlink" or "symlink". The empty string
// selects DefaultLinkMode.
func ParseLinkMode(s string) (LinkMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultLinkMode, nil
	case "hardlink":
		return LinkHardlink, nil
	case "copy", "clone":
		return LinkCopy, nil
	case "symlink":
		return LinkSymlink, nil
	}
	return 0, errors.New(errors.ErrCodeInvalidConfig, "unknown link mode %q (want copy, hardlink or symlink)", s)
}

// place puts src at dst. It reports whether a hardlink fell back to copy.
func (m LinkMode) place(src, dst string, perm os.FileMode) (fellBack bool, err error) {
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return false, err
	}
	switch m {
	case LinkSymlink:
		return false, os.Symlink(src, dst)
	case LinkHardlink:
		if err := os.Link(src, dst); err == nil {
			return false, nil
		}
		return true, fsutil.CopyFile(src, dst, perm)
	}
	return false, fsutil.CopyFile(src, dst, perm)
}
