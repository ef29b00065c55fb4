// Package battery reads the host's battery charge level.
package battery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultSysfsRoot is where Linux exposes power supplies.
const DefaultSysfsRoot = "/sys/class/power_supply"

// Reader reports the battery level as a percentage (0-100).
type Reader interface {
	Level() (uint8, error)
}

// SysfsReader reads <root>/<supply>/capacity.
type SysfsReader struct {
	path string
}

// NewSysfsReader creates a reader for the named power supply, e.g. "battery"
// or "BAT0". An empty root uses DefaultSysfsRoot.
func NewSysfsReader(root, supply string) *SysfsReader {
	if root == "" {
		root = DefaultSysfsRoot
	}
	return &SysfsReader{path: filepath.Join(root, supply, "capacity")}
}

// Level returns the capacity clamped to 0..100.
func (r *SysfsReader) Level() (uint8, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", r.path, err)
	}
	return parseCapacity(string(data))
}

func parseCapacity(s string) (uint8, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse capacity %q: %w", strings.TrimSpace(s), err)
	}
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return uint8(v), nil
}

// ErrNoSupply is returned by Detect when no battery is present.
var ErrNoSupply = errors.New("battery: no power supply with capacity found")

// Detect returns the first supply under root that exposes a capacity file.
func Detect(root string) (string, error) {
	if root == "" {
		root = DefaultSysfsRoot
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", root, err)
	}
	for _, e := range entries {
		if _, err := os.Stat(filepath.Join(root, e.Name(), "capacity")); err == nil {
			return e.Name(), nil
		}
	}
	return "", ErrNoSupply
}

// FixedReader always reports the same level. Useful on mains-powered hosts.
type FixedReader uint8

// Level returns the fixed level.
func (f FixedReader) Level() (uint8, error) {
	return uint8(f), nil
}
