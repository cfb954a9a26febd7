package devices

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/KevinKickass/OpenDriveEmulator/internal/types"
)

type cacheKey struct {
	kind string
	path string
}

// Loader reads XDF and XCF files from a list of search paths. Decoded
// documents are cached by resolved path.
type Loader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewLoader(searchPaths []string) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Loader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

// Resolve returns the first existing file for name. Absolute names and
// names that exist relative to the working directory are used as they are.
func (l *Loader) Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty file name")
	}
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("description not found: %w", err)
		}
		return name, nil
	}

	for _, searchPath := range l.searchPaths {
		fullPath := filepath.Join(searchPath, name)
		if info, err := os.Stat(fullPath); err == nil && !info.IsDir() {
			return fullPath, nil
		}
	}
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		return name, nil
	}

	return "", fmt.Errorf("description not found: %s (searched in: %v)", name, l.searchPaths)
}

func (l *Loader) LoadDescription(name string) (*types.DeviceDescription, error) {
	path, err := l.Resolve(name)
	if err != nil {
		return nil, err
	}

	key := cacheKey{kind: "xdf", path: path}
	if cached, ok := l.cache.Load(key); ok {
		return cached.(*types.DeviceDescription), nil
	}

	var doc types.DeviceDescription
	if err := decodeFile(path, &doc); err != nil {
		return nil, err
	}
	if err := l.validator.ValidateDescription(&doc); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", path, err)
	}

	l.cache.Store(key, &doc)
	return &doc, nil
}

func (l *Loader) LoadConfiguration(name string) (*types.DeviceConfiguration, error) {
	path, err := l.Resolve(name)
	if err != nil {
		return nil, err
	}

	key := cacheKey{kind: "xcf", path: path}
	if cached, ok := l.cache.Load(key); ok {
		return cached.(*types.DeviceConfiguration), nil
	}

	var doc types.DeviceConfiguration
	if err := decodeFile(path, &doc); err != nil {
		return nil, err
	}
	if err := l.validator.ValidateConfiguration(&doc); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", path, err)
	}

	l.cache.Store(key, &doc)
	return &doc, nil
}

func (l *Loader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}

func decodeFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := xml.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
