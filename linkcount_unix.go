// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build unix

package snapfile

import (
	"github.com/cockroachdb/pebble/vfs"
	"golang.org/x/sys/unix"
)

// linkCount returns the number of hard links to path. ok is false if path
// does not live on the OS filesystem.
func linkCount(fs vfs.FS, path string) (n uint64, ok bool, err error) {
	fi, err := fs.Stat(path)
	if err != nil {
		return 0, false, err
	}
	if fi.Sys() == nil {
		return 0, false, nil
	}
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, false, err
	}
	return uint64(st.Nlink), true, nil
}
