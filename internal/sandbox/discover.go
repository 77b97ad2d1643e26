package sandbox

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// Plugin file names are Prefix + type key + Suffix.
const (
	Prefix = "plugin_"
	Suffix = ".wasm"
)

// Module describes a plugin file found in the plugin directory.
type Module struct {
	Key    string `json:"key" yaml:"key"`
	Path   string `json:"path" yaml:"path"`
	Size   int64  `json:"size" yaml:"size"`
	Digest string `json:"digest,omitempty" yaml:"digest,omitempty"`
}

// keyOf extracts the trimmed type key from a plugin file name.
func keyOf(name string) (string, bool) {
	if len(name) < len(Prefix)+len(Suffix) {
		return "", false
	}
	if !strings.HasPrefix(name, Prefix) || !strings.HasSuffix(name, Suffix) {
		return "", false
	}
	return strings.TrimSpace(name[len(Prefix) : len(name)-len(Suffix)]), true
}

// Find scans dir for the module serving key. Entries are visited in the
// order os.ReadDir returns them and the first match wins. The directory is
// read on every call.
func Find(dir, key string) (Module, error) {
	if key == "" {
		return Module{}, fmt.Errorf("%w: empty type key", ErrModuleNotFound)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Module{}, fmt.Errorf("%w: read plugin dir: %w", ErrModuleNotFound, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if k, ok := keyOf(e.Name()); ok && k == key {
			return Module{Key: k, Path: filepath.Join(dir, e.Name())}, nil
		}
	}
	return Module{}, fmt.Errorf("%w: %q in %s", ErrModuleNotFound, key, dir)
}

// List returns every plugin file in dir with its size and BLAKE3 digest.
func List(dir string) ([]Module, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plugin dir: %w", err)
	}

	var out []Module
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key, ok := keyOf(e.Name())
		if !ok {
			continue
		}
		m := Module{Key: key, Path: filepath.Join(dir, e.Name())}
		if m.Size, m.Digest, err = digest(m.Path); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func digest(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	hasher := blake3.New()
	n, err := io.Copy(hasher, f)
	if err != nil {
		return 0, "", fmt.Errorf("hash %s: %w", path, err)
	}
	return n, hex.EncodeToString(hasher.Sum(nil)), nil
}
