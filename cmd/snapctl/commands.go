// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/snapfile"
	"github.com/cockroachdb/snapfile/encryption"
	"github.com/cockroachdb/snapfile/engine"
	"github.com/cockroachdb/snapfile/objstorage/remote"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	buildFormat string
	buildCFs    []string
	buildStart  string
	buildEnd    string
)

var buildCmd = &cobra.Command{
	Use:   "build <snapshot-id>",
	Short: "build a snapshot of the engine into the staging directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := snapfile.ParseFormat(buildFormat)
		if err != nil {
			return err
		}
		cfs := make([]engine.ColumnFamily, len(buildCFs))
		for i, name := range buildCFs {
			if cfs[i], err = engine.ParseColumnFamily(name); err != nil {
				return err
			}
		}
		kr := engine.KeyRange{}
		if buildStart != "" {
			kr.Start = []byte(buildStart)
		}
		if buildEnd != "" {
			kr.End = []byte(buildEnd)
		}
		return withEnv(cmd, func(e *env) error {
			snap := e.eng.NewSnapshot()
			defer snap.Close()
			m, err := e.s.Build(snap, args[0], kr, format, cfs)
			if err != nil {
				return err
			}
			printManifest(cmd.OutOrStdout(), m)
			return nil
		})
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <snapshot-id>",
	Short: "upload a staged snapshot to remote storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(e *env) error {
			m, err := e.s.LoadManifest(args[0])
			if err != nil {
				return err
			}
			store, err := e.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			if err := e.s.Upload(cmd.Context(), store, m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s: %d files, %s\n",
				m.ID, len(m.Files), crhumanize.Bytes(stagedSize(m), crhumanize.Compact, crhumanize.OmitI))
			return nil
		})
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <snapshot-id>",
	Short: "download a snapshot from remote storage into the staging directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(e *env) error {
			store, err := e.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			m, err := e.s.Download(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			printManifest(cmd.OutOrStdout(), m)
			return nil
		})
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply <snapshot-id>",
	Short: "apply a staged snapshot to the engine",
	Long: `
Apply writes every file of a staged snapshot into the engine. Plain files
are replayed in batches, SST files are ingested. An interrupt stops the apply
between batches; the engine is left with the batches applied so far.
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(e *env) error {
			m, err := e.s.LoadManifest(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if err := e.s.Apply(m, snapfile.ContextStaleDetector(ctx)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %s: %s keys\n",
				m.ID, crhumanize.Count(m.TotalKeys(), crhumanize.Compact))
			return nil
		})
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump <snapshot-id>",
	Short: "print the manifest of a staged snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(e *env) error {
			m, err := e.s.LoadManifest(args[0])
			if err != nil {
				return err
			}
			printManifest(cmd.OutOrStdout(), m)
			return nil
		})
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <snapshot-id>",
	Short: "remove a staged snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(e *env) error {
			m, err := e.s.LoadManifest(args[0])
			if err != nil {
				return err
			}
			return e.s.Cleanup(m)
		})
	},
}

// env holds the resources shared by all commands.
type env struct {
	cfg     *config
	fs      vfs.FS
	logger  *zap.Logger
	km      *encryption.Registry
	eng     *engine.Pebble
	s       *snapfile.Snapshotter
	metrics *remote.Metrics
	reg     *prometheus.Registry
}

// withEnv opens the engine and snapshotter described by the configuration,
// runs fn and releases everything. The key registry is saved afterwards, as
// commands register and drop files.
func withEnv(cmd *cobra.Command, fn func(e *env) error) (err error) {
	e := &env{fs: vfs.Default}
	if e.cfg, err = loadConfig(e.fs, configPath); err != nil {
		return err
	}
	e.logger = newZapLogger(cmd.ErrOrStderr(), verbose)
	defer func() { _ = e.logger.Sync() }()
	logger := zapLogger{s: e.logger.Sugar()}

	if e.km, err = e.cfg.keyManager(e.fs); err != nil {
		return err
	}
	var km encryption.KeyManager
	if e.km != nil {
		km = e.km
	}
	if e.eng, err = engine.Open(e.cfg.EngineDir, &engine.Options{
		FS:         e.fs,
		KeyManager: km,
		Logger:     logger,
	}); err != nil {
		return err
	}
	defer func() { err = errors.CombineErrors(err, e.eng.Close()) }()
	if e.km != nil {
		defer func() { err = errors.CombineErrors(err, e.km.Save(e.fs, e.cfg.Encryption.Registry)) }()
	}

	if e.s, err = snapfile.New(&snapfile.Options{
		Engine:              e.eng,
		Dir:                 e.cfg.StagingDir,
		FS:                  e.fs,
		KeyManager:          km,
		Logger:              logger,
		ApplyBatchSize:      e.cfg.ApplyBatchSize,
		Limiter:             snapfile.NewIOLimiter(e.cfg.SSTRateLimit),
		TransferConcurrency: e.cfg.TransferConcurrency,
	}); err != nil {
		return err
	}

	e.metrics = remote.NewMetrics("snapctl")
	e.reg = prometheus.NewRegistry()
	if err := e.metrics.Register(e.reg); err != nil {
		return err
	}
	if err := fn(e); err != nil {
		return err
	}
	if verbose {
		e.logMetrics()
	}
	return nil
}

func (e *env) openStorage(ctx context.Context) (*remote.ExternalStorage, error) {
	if e.cfg.Storage == "" {
		return nil, errors.Mark(errors.New("config: storage is required"), snapfile.ErrInvalidInput)
	}
	s, err := remote.Open(ctx, e.cfg.Storage, e.fs)
	if err != nil {
		return nil, err
	}
	if verbose {
		s = remote.WithLogging(s, e.logger.Sugar().Debugf)
	}
	return remote.New(s, e.cfg.remoteOptions(zapLogger{s: e.logger.Sugar()}, e.metrics)), nil
}

// logMetrics logs the non-zero remote storage counters.
func (e *env) logMetrics() {
	families, err := e.reg.Gather()
	if err != nil {
		e.logger.Warn("gathering metrics", zap.Error(err))
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			v := m.GetCounter().GetValue()
			if v == 0 {
				continue
			}
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			e.logger.Info(mf.GetName(), zap.Strings("labels", labels), zap.Float64("value", v))
		}
	}
}

func stagedSize(m *snapfile.Manifest) uint64 {
	var n uint64
	for i := range m.Files {
		n += m.Files[i].Size
	}
	return n
}

func printManifest(w io.Writer, m *snapfile.Manifest) {
	fmt.Fprintf(w, "snapshot %s (%s) %s\n", m.ID, m.Format, m.Range)
	files := append([]snapfile.FileRecord(nil), m.Files...)
	sort.Slice(files, func(i, j int) bool { return files[i].ColumnFamily < files[j].ColumnFamily })
	for _, f := range files {
		fmt.Fprintf(w, "  %-32s %-8s %8s %10s keys %8s %s\n",
			f.Name, f.ColumnFamily,
			crhumanize.Bytes(f.Size, crhumanize.Compact, crhumanize.OmitI),
			crhumanize.Count(f.KeyCount, crhumanize.Compact),
			crhumanize.Bytes(f.TotalBytes, crhumanize.Compact, crhumanize.OmitI),
			f.Encryption)
	}
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 20))
	fmt.Fprintf(w, "  %d files, %s keys, %s\n", len(m.Files),
		crhumanize.Count(m.TotalKeys(), crhumanize.Compact),
		crhumanize.Bytes(m.TotalSize(), crhumanize.Compact, crhumanize.OmitI))
}
