// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build !unix

package snapfile

import "github.com/cockroachdb/pebble/vfs"

func linkCount(fs vfs.FS, path string) (n uint64, ok bool, err error) {
	_, err = fs.Stat(path)
	return 0, false, err
}
