// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/snapfile"
	"github.com/cockroachdb/snapfile/encryption"
	"github.com/cockroachdb/snapfile/objstorage/remote"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig(strings.NewReader(`
engine_dir: /data/db
staging_dir: /data/snapshots
storage: mem://test
encryption:
  method: aes256-ctr
  key: ` + testKey + `
  registry: /data/keys
sst_rate_limit: 1048576
remote:
  max_retries: 5
  initial_backoff: 10ms
`))
	require.NoError(t, err)
	require.Equal(t, "/data/db", cfg.EngineDir)
	require.Equal(t, "/data/snapshots", cfg.StagingDir)
	require.Equal(t, "mem://test", cfg.Storage)
	require.Equal(t, int64(1<<20), cfg.SSTRateLimit)
	require.Equal(t, snapfile.DefaultApplyBatchSize, cfg.ApplyBatchSize)
	require.Equal(t, 5, cfg.Remote.MaxRetries)
	require.Equal(t, 10*time.Millisecond, cfg.Remote.InitialBackoff)
	require.Equal(t, remote.DefaultMaxBackoff, cfg.Remote.MaxBackoff)
	require.Equal(t, int64(remote.DefaultPartSize), cfg.Remote.PartSize)

	opts := cfg.remoteOptions(nil, nil)
	require.Equal(t, 5, opts.MaxRetries)
	require.Equal(t, 10*time.Millisecond, opts.InitialBackoff)
}

func TestParseConfigErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		yaml string
	}{
		{"empty", ``},
		{"no staging dir", "engine_dir: /db\n"},
		{"unknown field", "engine_dir: /db\nstaging_dir: /s\nbogus: 1\n"},
		{"bad storage", "engine_dir: /db\nstaging_dir: /s\nstorage: ftp://x\n"},
		{"bad method", "engine_dir: /db\nstaging_dir: /s\nencryption:\n  method: rot13\n"},
		{"no registry", "engine_dir: /db\nstaging_dir: /s\nencryption:\n  method: aes256-ctr\n  key: " + testKey + "\n"},
		{"short key", "engine_dir: /db\nstaging_dir: /s\nencryption:\n  method: aes256-ctr\n  key: 0001\n  registry: /r\n"},
		{"bad key", "engine_dir: /db\nstaging_dir: /s\nencryption:\n  method: aes128-ctr\n  key: xyz\n  registry: /r\n"},
		{"batch size", "engine_dir: /db\nstaging_dir: /s\napply_batch_size: -1\n"},
		{"rate limit", "engine_dir: /db\nstaging_dir: /s\nsst_rate_limit: -1\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseConfig(strings.NewReader(tc.yaml))
			require.Error(t, err)
			require.True(t, errors.Is(err, snapfile.ErrInvalidInput), "%v", err)
		})
	}
}

func TestConfigKeyManager(t *testing.T) {
	fs := vfs.NewMem()
	cfg, err := parseConfig(strings.NewReader(
		"engine_dir: /db\nstaging_dir: /s\nencryption:\n  method: aes256-ctr\n  key: " + testKey + "\n  registry: /keys\n"))
	require.NoError(t, err)

	km, err := cfg.keyManager(fs)
	require.NoError(t, err)
	require.Equal(t, encryption.Aes256Ctr, km.Method())
	info, err := km.NewFile("/s/a")
	require.NoError(t, err)
	require.NoError(t, km.Save(fs, "/keys"))

	km, err = cfg.keyManager(fs)
	require.NoError(t, err)
	got, err := km.GetFile("/s/a")
	require.NoError(t, err)
	require.Equal(t, info, got)

	cfg.Encryption = encryptionConfig{Method: "plaintext"}
	km, err = cfg.keyManager(fs)
	require.NoError(t, err)
	require.Nil(t, km)
}

func TestZapLogger(t *testing.T) {
	var buf bytes.Buffer
	l := zapLogger{s: newZapLogger(&buf, false).Sugar()}
	l.Infof("hidden %d", 1)
	l.Errorf("shown %d", 2)
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown 2")
	require.Contains(t, buf.String(), "ERROR")

	buf.Reset()
	l = zapLogger{s: newZapLogger(&buf, true).Sugar()}
	l.Infof("visible %d", 3)
	require.Contains(t, buf.String(), "visible 3")
}
