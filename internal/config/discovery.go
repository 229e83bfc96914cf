package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// SystemDiscoveryPath is the well-known path of the runtime discovery file.
// World-readable (0644) so tooling run by any user can find the main
// process; only the runtime itself writes it.
const SystemDiscoveryPath = "/etc/swarm/runtime.toml"

// discoveryPathOverride allows tests to redirect the discovery file path.
// When empty, DiscoveryPath() returns SystemDiscoveryPath.
var discoveryPathOverride string //nolint:gochecknoglobals // test hook

// SetDiscoveryPathOverride sets a test override for the discovery path.
// Pass "" to restore the default. This is intended for tests only.
func SetDiscoveryPathOverride(path string) {
	discoveryPathOverride = path
}

// Discovery identifies a running main process. Tooling reads it to target
// signals and control requests at the right pid, and RunID tells restarts
// of the runtime apart.
type Discovery struct {
	PID    int    `toml:"pid"`
	RunID  string `toml:"run_id"`
	Engine string `toml:"engine"`
}

// DiscoveryPath returns the path to the runtime discovery file.
func DiscoveryPath() string {
	if discoveryPathOverride != "" {
		return discoveryPathOverride
	}
	return SystemDiscoveryPath
}

// WriteDiscovery writes the discovery file with world-readable permissions,
// creating the parent directory if needed. A missing RunID is minted here.
func WriteDiscovery(d Discovery) (Discovery, error) {
	if d.RunID == "" {
		d.RunID = uuid.NewString()
	}

	path := DiscoveryPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Discovery{}, fmt.Errorf("create discovery dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(d); err != nil {
		return Discovery{}, fmt.Errorf("encode discovery: %w", err)
	}

	//nolint:gosec // G306: world-readable is intentional for discovery
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return Discovery{}, fmt.Errorf("write discovery: %w", err)
	}
	return d, nil
}

// ReadDiscovery reads the discovery file. Returns os.ErrNotExist if the
// file does not exist.
func ReadDiscovery() (Discovery, error) {
	var d Discovery
	if _, err := toml.DecodeFile(DiscoveryPath(), &d); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Discovery{}, os.ErrNotExist
		}
		return Discovery{}, err
	}
	return d, nil
}

// RemoveDiscovery removes the discovery file (best-effort).
func RemoveDiscovery() {
	os.Remove(DiscoveryPath()) //nolint:errcheck // best-effort cleanup on shutdown
}
