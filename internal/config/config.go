// Package config loads optional overrides for lunify's default Lua 5.0 and
// Lua 5.1 settings records from a JWCC (JSON-with-comments) file, the way
// zb loads its own user settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
	"go4.org/xdgdir"

	"github.com/speedata/lunify"
)

// versionOverrides holds the overridable subset of lunify.VersionSettings
// (StackLimit and FieldsPerFlush; the binary signature and instruction
// layout cannot be overridden). Every field is optional: a field absent
// from the file (nil) keeps the default.
type versionOverrides struct {
	StackLimit     *uint64 `json:"stackLimit,omitempty"`
	FieldsPerFlush *uint64 `json:"fieldsPerFlush,omitempty"`
}

// overrides is the on-disk shape of a lunify config file.
type overrides struct {
	Lua50 versionOverrides `json:"lua50,omitempty"`
	Lua51 versionOverrides `json:"lua51,omitempty"`
}

// DefaultPath returns the XDG config-home path lunify looks for a config
// file at when none is given explicitly on the command line.
func DefaultPath() string {
	dir := xdgdir.Config.Path()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "lunify", "settings.jwcc")
}

// Load reads path (a JWCC document) and applies any overrides it contains
// on top of lunify.DefaultSettings(). A missing file at the default path is
// not an error; a missing file at an explicitly requested path is.
func Load(path string, explicit bool) (lunify.Settings, error) {
	settings := lunify.DefaultSettings()
	if path == "" {
		return settings, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return settings, nil
		}
		return settings, fmt.Errorf("load lunify config: %w", err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return settings, fmt.Errorf("load lunify config %s: %w", path, err)
	}

	var o overrides
	if err := json.Unmarshal(standardized, &o); err != nil {
		return settings, fmt.Errorf("load lunify config %s: %w", path, err)
	}

	apply(&settings.Lua50, o.Lua50)
	apply(&settings.Lua51, o.Lua51)
	return settings, nil
}

func apply(dst *lunify.VersionSettings, src versionOverrides) {
	if src.StackLimit != nil {
		dst.StackLimit = *src.StackLimit
	}
	if src.FieldsPerFlush != nil {
		dst.FieldsPerFlush = *src.FieldsPerFlush
	}
}
