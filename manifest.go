package hyperdelta

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// manifestSchemaVersion is the current on-disk instance manifest format.
const manifestSchemaVersion = 1

type instanceManifest struct {
	SchemaVersion int    `json:"schema_version"`
	SystemID      string `json:"system_id"`
}

func manifestPath(dataDir string) string {
	return filepath.Join(dataDir, "MANIFEST.json")
}

func readInstanceManifest(dataDir string) (*instanceManifest, error) {
	b, err := os.ReadFile(manifestPath(dataDir))
	if err != nil {
		return nil, err
	}
	var m instanceManifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("hyperdelta: manifest json: %w", err)
	}
	return &m, nil
}

// writeInstanceManifestAtomic writes MANIFEST.json as a crash-safe commit
// point: write temp -> fsync temp -> rename -> fsync dir.
func writeInstanceManifestAtomic(dataDir string, m *instanceManifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("hyperdelta: manifest json: %w", err)
	}
	b = append(b, '\n')

	final := manifestPath(dataDir)
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("hyperdelta: manifest open tmp: %w", err)
	}
	_, werr := f.Write(b)
	serr := f.Sync()
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("hyperdelta: manifest write tmp: %w", werr)
	}
	if serr != nil {
		return fmt.Errorf("hyperdelta: manifest fsync tmp: %w", serr)
	}
	if cerr != nil {
		return fmt.Errorf("hyperdelta: manifest close tmp: %w", cerr)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("hyperdelta: manifest rename: %w", err)
	}

	d, err := os.Open(dataDir)
	if err != nil {
		return fmt.Errorf("hyperdelta: manifest fsync dir open: %w", err)
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return fmt.Errorf("hyperdelta: manifest fsync dir: %w", err)
	}
	return d.Close()
}

// resolveSystemID loads or creates the instance's stable systemId. For
// memory storage it's generated fresh (or taken from cfg) every Open;
// for persistent storage it's read from the manifest on a reopen, and
// written once on first open, so a restart reuses the same id.
func resolveSystemID(cfg Config, dataDir string) (string, error) {
	if cfg.SystemID != "" {
		if cfg.Storage == StoragePersistent {
			if _, err := os.Stat(manifestPath(dataDir)); os.IsNotExist(err) {
				if err := writeInstanceManifestAtomic(dataDir, &instanceManifest{
					SchemaVersion: manifestSchemaVersion,
					SystemID:      cfg.SystemID,
				}); err != nil {
					return "", err
				}
			}
		}
		return cfg.SystemID, nil
	}
	if cfg.Storage != StoragePersistent {
		return newSystemID(), nil
	}
	m, err := readInstanceManifest(dataDir)
	if err == nil {
		return m.SystemID, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("hyperdelta: read manifest: %w", err)
	}
	id := newSystemID()
	if err := writeInstanceManifestAtomic(dataDir, &instanceManifest{
		SchemaVersion: manifestSchemaVersion,
		SystemID:      id,
	}); err != nil {
		return "", err
	}
	return id, nil
}
