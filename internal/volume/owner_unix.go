// SPDX-License-Identifier: MPL-2.0

//go:build unix

package volume

import (
	"stackctl/internal/privilege"

	"golang.org/x/sys/unix"
)

// lstatOwner returns the owner of path without following symlinks.
func lstatOwner(path string) (privilege.Identity, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return privilege.Identity{}, err
	}
	return privilege.Identity{UID: int(st.Uid), GID: int(st.Gid)}, nil
}
