package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/wurt83ow/tablekeeper/pkg/bdkeeper"
	"github.com/wurt83ow/tablekeeper/pkg/config"
	"github.com/wurt83ow/tablekeeper/pkg/encription"
	"github.com/wurt83ow/tablekeeper/pkg/logger"
	"github.com/wurt83ow/tablekeeper/pkg/services"
	"github.com/wurt83ow/tablekeeper/pkg/storage"
	"github.com/wurt83ow/tablekeeper/pkg/syncinfo"
	"github.com/wurt83ow/tablekeeper/pkg/tksync"
)

// app is everything a command needs, wired from the resolved options.
type app struct {
	cfg     *config.Options
	svc     *services.Service
	log     *slog.Logger
	closers []func() error
}

func openApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	cfg := opts.Config
	log, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	var kv storage.KV
	if cfg.DBPath == config.MemoryDB {
		kv = storage.NewMemoryKV()
	} else {
		keeper, err := bdkeeper.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, keeper.Close)
		kv = keeper
	}
	if cfg.Passphrase != "" {
		enc, err := encription.NewEnc(cfg.Passphrase)
		if err != nil {
			a.Close()
			return nil, err
		}
		kv = encription.NewSealedKV(kv, enc)
	}

	sm, err := syncinfo.NewSyncManager(cfg.SysInfoPath)
	if err != nil {
		log.Warn("ignoring unreadable sync info", "path", cfg.SysInfoPath, "err", err)
		sm, _ = syncinfo.NewSyncManager("")
	}

	sortPolicy, err := services.ParseSortPolicy(cfg.SortPolicy)
	if err != nil {
		a.Close()
		return nil, err
	}
	columns := cfg.TableColumns()

	var remote services.Remote
	if cfg.SyncWithServer {
		c, err := tksync.NewClient(cfg.ServerURL,
			tksync.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			tksync.WithResource(cfg.Resource),
			tksync.WithColumns(columns),
			tksync.WithRateLimit(cfg.RateLimit, 1),
			tksync.WithFieldRules(fieldRules(cfg.Fields)),
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create remote client: %w", err)
		}
		remote = c
	}

	a.svc = services.NewServices(remote, storage.New(kv, log),
		services.WithColumns(columns),
		services.WithPolicy(services.Policy{Sort: sortPolicy, PaginateFallback: cfg.PaginateFallback}),
		services.WithLogger(log),
		services.WithSyncInfo(sm),
	)
	return a, nil
}

func fieldRules(overrides []config.FieldRule) []tksync.FieldRule {
	rules := make([]tksync.FieldRule, 0, len(overrides))
	for _, f := range overrides {
		rules = append(rules, tksync.FieldRule{Key: f.Key, Aliases: f.Aliases, Default: f.Default})
	}
	return tksync.MergeRules(tksync.DefaultRules, rules)
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Warn("failed to close cache", "err", err)
		}
	}()
	return fn(cmd.Context(), a)
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	if f, ok := w.(*os.File); ok && f == os.Stderr {
		return logger.NewLogger(level)
	}
	ll, err := logger.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return logger.New(w, ll, true), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
