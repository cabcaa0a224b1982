// Package datasource discovers the configured grid backend and connects to
// it.
package datasource

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"

	"github.com/daviddao/megagrid/internal/chain"
	"github.com/daviddao/megagrid/internal/config"
	"github.com/daviddao/megagrid/internal/devchain"
	"github.com/daviddao/megagrid/internal/ethchain"
)

// EnvDB overrides devnet database discovery.
const EnvDB = "MEGAGRID_DB"

var defaultDB = filepath.Join(".megagrid", "grid.db")

// Discover returns the devnet database named by MEGAGRID_DB, or else the
// nearest .megagrid/grid.db at or above the working directory.
func Discover() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return discoverFrom(wd, os.Getenv(EnvDB))
}

func discoverFrom(start, override string) (string, error) {
	if override != "" {
		if !isFile(override) {
			return "", fmt.Errorf("%s=%q: %w", EnvDB, override, fs.ErrNotExist)
		}
		return override, nil
	}
	if p, ok := findUp(start, defaultDB); ok {
		return p, nil
	}
	return "", fmt.Errorf("no devnet database found (looked for %s; run `mgv devnet init`)", defaultDB)
}

// findUp joins rel onto dir and each of its ancestors in turn and returns
// the first that names a regular file.
func findUp(dir, rel string) (string, bool) {
	for {
		if p := filepath.Join(dir, rel); isFile(p) {
			return p, true
		}
		up := filepath.Dir(dir)
		if up == dir {
			return "", false
		}
		dir = up
	}
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

// DevPath is where `devnet init` creates the database: dev.db from the
// config, or .megagrid/grid.db under the working directory.
func DevPath(cfg config.Config) (string, error) {
	if cfg.Dev.DB != "" {
		return cfg.Dev.DB, nil
	}
	return filepath.Abs(defaultDB)
}

// OpenDev opens the devnet store named by the config, discovering it when
// dev.db is unset.
func OpenDev(cfg config.Config) (*devchain.Store, error) {
	path := cfg.Dev.DB
	if path == "" {
		p, err := Discover()
		if err != nil {
			return nil, err
		}
		path = p
	}
	s, err := devchain.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return s, nil
}

// Open connects to the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger) (chain.Backend, error) {
	if log == nil {
		log = slog.Default()
	}
	switch cfg.Backend {
	case config.BackendDev:
		return openDev(cfg, log)
	case config.BackendEth:
		return openEth(ctx, cfg, log)
	}
	return chain.Backend{}, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func openDev(cfg config.Config, log *slog.Logger) (chain.Backend, error) {
	s, err := OpenDev(cfg)
	if err != nil {
		return chain.Backend{}, err
	}
	log.Info("devnet opened", "path", s.Path())
	w := devchain.NewWallet(s, devchain.WalletConfig{
		ChainID:     cfg.Dev.WalletChainID,
		KnownChains: cfg.Dev.KnownChains,
		Accounts:    cfg.Dev.Accounts,
		Reject:      cfg.Dev.Reject,
	})
	return chain.Backend{
		Reader:   s,
		Feed:     devchain.NewFeed(s, cfg.Dev.Poll, log),
		Provider: w,
		Close:    s.Close,
	}, nil
}

func openEth(ctx context.Context, cfg config.Config, log *slog.Logger) (chain.Backend, error) {
	c, err := ethchain.Dial(ctx, cfg.RPCURL, cfg.WSURL, cfg.Contract, log)
	if err != nil {
		return chain.Backend{}, err
	}
	b := chain.Backend{Reader: c, Feed: c, Close: c.Close}
	if cfg.WalletURL == "" {
		log.Info("no wallet_url configured; read-only session")
		return b, nil
	}
	p, err := ethchain.DialWallet(ctx, cfg.WalletURL, common.HexToAddress(cfg.Contract))
	if err != nil {
		log.Warn("wallet unreachable", "url", cfg.WalletURL, "err", err)
		return b, nil
	}
	b.Provider = p
	b.Close = func() error {
		p.Close()
		return c.Close()
	}
	return b, nil
}
