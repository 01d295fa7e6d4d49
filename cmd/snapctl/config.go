// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"bytes"
	"encoding/hex"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/snapfile"
	"github.com/cockroachdb/snapfile/encryption"
	"github.com/cockroachdb/snapfile/internal/base"
	"github.com/cockroachdb/snapfile/objstorage/remote"
	"gopkg.in/yaml.v3"
)

// config is the YAML configuration of snapctl:
//
//	engine_dir: /data/db
//	staging_dir: /data/snapshots
//	storage: s3://bucket/snapshots?AUTH=implicit
//	encryption:
//	  method: aes256-ctr
//	  key: 6a2f...          # hex data key
//	  registry: /data/keys.registry
//	apply_batch_size: 4194304
//	sst_rate_limit: 0       # bytes per second, 0 is unlimited
//	transfer_concurrency: 4
//	remote:
//	  max_retries: 3
//	  initial_backoff: 100ms
//	  max_backoff: 5s
//	  multipart_threshold: 67108864
//	  part_size: 16777216
type config struct {
	EngineDir           string           `yaml:"engine_dir"`
	StagingDir          string           `yaml:"staging_dir"`
	Storage             string           `yaml:"storage"`
	Encryption          encryptionConfig `yaml:"encryption"`
	ApplyBatchSize      int              `yaml:"apply_batch_size"`
	SSTRateLimit        int64            `yaml:"sst_rate_limit"`
	TransferConcurrency int              `yaml:"transfer_concurrency"`
	Remote              remoteConfig     `yaml:"remote"`
}

type encryptionConfig struct {
	Method   string `yaml:"method"`
	Key      string `yaml:"key"`
	Registry string `yaml:"registry"`
}

type remoteConfig struct {
	MaxRetries         int           `yaml:"max_retries"`
	InitialBackoff     time.Duration `yaml:"initial_backoff"`
	MaxBackoff         time.Duration `yaml:"max_backoff"`
	MultipartThreshold int64         `yaml:"multipart_threshold"`
	PartSize           int64         `yaml:"part_size"`
}

func defaultConfig() *config {
	return &config{
		ApplyBatchSize:      snapfile.DefaultApplyBatchSize,
		TransferConcurrency: snapfile.DefaultTransferConcurrency,
		Encryption:          encryptionConfig{Method: encryption.Plaintext.String()},
		Remote: remoteConfig{
			MaxRetries:         remote.DefaultMaxRetries,
			InitialBackoff:     remote.DefaultInitialBackoff,
			MaxBackoff:         remote.DefaultMaxBackoff,
			MultipartThreshold: remote.DefaultMultipartThreshold,
			PartSize:           remote.DefaultPartSize,
		},
	}
}

// parseConfig decodes a YAML configuration over the defaults. Unknown fields
// are rejected.
func parseConfig(r io.Reader) (*config, error) {
	cfg := defaultConfig()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, base.InvalidInputf("parsing config: %v", err)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfig reads the configuration file at path.
func loadConfig(fs vfs.FS, path string) (*config, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config %s", path)
	}
	defer f.Close()
	return parseConfig(f)
}

func (c *config) validate() error {
	if c.EngineDir == "" {
		return base.InvalidInputf("config: engine_dir is required")
	}
	if c.StagingDir == "" {
		return base.InvalidInputf("config: staging_dir is required")
	}
	if c.Storage != "" {
		if _, err := remote.ParseURI(c.Storage); err != nil {
			return err
		}
	}
	m, err := encryption.ParseMethod(c.Encryption.Method)
	if err != nil {
		return err
	}
	if m != encryption.Plaintext {
		if c.Encryption.Registry == "" {
			return base.InvalidInputf("config: encryption.registry is required with %s", m)
		}
		if _, err := c.dataKey(m); err != nil {
			return err
		}
	}
	if c.ApplyBatchSize <= 0 {
		return base.InvalidInputf("config: apply_batch_size must be positive")
	}
	if c.SSTRateLimit < 0 {
		return base.InvalidInputf("config: sst_rate_limit must not be negative")
	}
	return nil
}

func (c *config) dataKey(m encryption.Method) ([]byte, error) {
	key, err := hex.DecodeString(c.Encryption.Key)
	if err != nil {
		return nil, base.InvalidInputf("config: encryption.key is not hex: %v", err)
	}
	if len(key) != m.KeySize() {
		return nil, base.InvalidInputf("config: %s needs a %d byte key, got %d", m, m.KeySize(), len(key))
	}
	return key, nil
}

// keyManager loads the file registry, or returns nil when files are stored
// in plaintext.
func (c *config) keyManager(fs vfs.FS) (*encryption.Registry, error) {
	m, err := encryption.ParseMethod(c.Encryption.Method)
	if err != nil || m == encryption.Plaintext {
		return nil, err
	}
	key, err := c.dataKey(m)
	if err != nil {
		return nil, err
	}
	return encryption.LoadRegistry(fs, c.Encryption.Registry, m, key)
}

func (c *config) remoteOptions(logger base.Logger, metrics *remote.Metrics) *remote.Options {
	return &remote.Options{
		MaxRetries:         c.Remote.MaxRetries,
		InitialBackoff:     c.Remote.InitialBackoff,
		MaxBackoff:         c.Remote.MaxBackoff,
		MultipartThreshold: c.Remote.MultipartThreshold,
		PartSize:           c.Remote.PartSize,
		Logger:             logger,
		Metrics:            metrics,
	}
}
