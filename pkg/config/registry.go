package config

import (
	"crypto/tls"
	"fmt"
	"path/filepath"

	"github.com/marmos91/dittoshare/internal/logger"
	"github.com/marmos91/dittoshare/pkg/registry"
	"github.com/marmos91/dittoshare/pkg/server"
)

// BuildRegistry creates a fully configured Registry from the provided
// configuration.
//
// Each share in cfg.Shares is validated and added. The resulting Registry
// contains all shares ready for use by the HTTP server.
func BuildRegistry(cfg *Config) (*registry.Registry, error) {
	logger.Debug("Initializing share registry from configuration")

	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}

	reg := registry.New()
	if err := addShares(reg, cfg.Shares); err != nil {
		return nil, err
	}

	logger.Info("Registered shares", "count", reg.Count())
	return reg, nil
}

// SyncShares reconciles the registry's share set with the configuration.
//
// Shares absent from cfg are removed, changed shares are replaced, and
// new shares are added. Used for hot reload when the configuration file
// changes; listeners are never reloaded.
func SyncShares(reg *registry.Registry, cfg *Config) error {
	desired := make(map[string]ShareConfig, len(cfg.Shares))
	for _, sc := range cfg.Shares {
		desired[sc.Name] = sc
	}

	// Remove shares that disappeared or changed.
	for _, existing := range reg.ListAll() {
		sc, ok := desired[existing.Name]
		if !ok {
			if err := reg.Remove(existing.Name); err != nil {
				return fmt.Errorf("failed to remove share %q: %w", existing.Name, err)
			}
			logger.Info("Share removed", "share", existing.Name)
			continue
		}
		if shareChanged(existing, sc) {
			if err := reg.Remove(existing.Name); err != nil {
				return fmt.Errorf("failed to replace share %q: %w", existing.Name, err)
			}
		} else {
			delete(desired, existing.Name)
		}
	}

	// Add new and replaced shares in configuration order.
	for _, sc := range cfg.Shares {
		if _, pending := desired[sc.Name]; !pending {
			continue
		}
		if err := addShare(reg, sc); err != nil {
			return err
		}
		logger.Info("Share updated", "share", sc.Name)
	}

	return nil
}

// BuildListeners converts listener configuration into server listener
// specs, loading TLS key pairs where configured.
func BuildListeners(cfg *Config) ([]server.ListenerSpec, error) {
	specs := make([]server.ListenerSpec, 0, len(cfg.Listeners))
	for _, lc := range cfg.Listeners {
		spec := server.ListenerSpec{
			Address: lc.Address,
			Port:    lc.Port,
		}
		if lc.CertFile != "" {
			cert, err := tls.LoadX509KeyPair(lc.CertFile, lc.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load TLS key pair for %s:%d: %w", lc.Address, lc.Port, err)
			}
			spec.TLS = &tls.Config{Certificates: []tls.Certificate{cert}}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func addShares(reg *registry.Registry, shares []ShareConfig) error {
	for _, sc := range shares {
		if err := addShare(reg, sc); err != nil {
			return err
		}
	}
	return nil
}

func addShare(reg *registry.Registry, sc ShareConfig) error {
	logger.Debug("Adding share", "name", sc.Name, "path", sc.Path, "read_only", sc.ReadOnly)

	share := &registry.Share{
		Name:     sc.Name,
		Root:     sc.Path,
		Hidden:   sc.Hidden,
		ReadOnly: sc.ReadOnly,
		ListDir:  sc.ListDirEnabled(),
	}
	if err := reg.Add(share); err != nil {
		return fmt.Errorf("failed to add share %q: %w", sc.Name, err)
	}

	logger.Debug("Share added successfully", "name", sc.Name)
	return nil
}

// shareChanged reports whether the registered share differs from its
// configured form. The registry stores the absolute root, so the
// configured path is normalized before comparing.
func shareChanged(existing *registry.Share, sc ShareConfig) bool {
	root := sc.Path
	if abs, err := filepath.Abs(sc.Path); err == nil {
		root = abs
	}
	return existing.Root != root ||
		existing.Hidden != sc.Hidden ||
		existing.ReadOnly != sc.ReadOnly ||
		existing.ListDir != sc.ListDirEnabled()
}
