package profiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/KevinKickass/OpenInverterCore/internal/types"
)

var ErrProfileNotFound = errors.New("profile not found")

var extensions = []string{".json", ".yaml", ".yml"}

type ProfileLoader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewProfileLoader(searchPaths []string) (*ProfileLoader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &ProfileLoader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

// Load reads a profile by name from the search paths (JSON or YAML), or
// from name itself when it is an existing file.
func (l *ProfileLoader) Load(name string) (*types.SensorProfileDefinition, error) {
	if cached, ok := l.cache.Load(name); ok {
		return cached.(*types.SensorProfileDefinition), nil
	}

	path, data, err := l.find(name)
	if err != nil {
		return nil, err
	}

	profile, err := l.Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	l.cache.Store(name, profile)

	return profile, nil
}

// LoadAll loads every profile file found directly in the search paths.
func (l *ProfileLoader) LoadAll() ([]*types.SensorProfileDefinition, error) {
	var out []*types.SensorProfileDefinition
	for _, dir := range l.searchPaths {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", dir, err)
		}
		for _, e := range entries {
			ext := filepath.Ext(e.Name())
			if e.IsDir() || !isProfileExt(ext) {
				continue
			}
			p, err := l.Load(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
	}
	return out, nil
}

func (l *ProfileLoader) find(name string) (string, []byte, error) {
	if isProfileExt(filepath.Ext(name)) {
		if data, err := os.ReadFile(name); err == nil {
			return name, data, nil
		}
	}

	for _, searchPath := range l.searchPaths {
		for _, ext := range extensions {
			fullPath := filepath.Join(searchPath, name+ext)
			if data, err := os.ReadFile(fullPath); err == nil {
				return fullPath, data, nil
			}
		}
	}

	return "", nil, fmt.Errorf("%w: %s (searched in: %v)", ErrProfileNotFound, name, l.searchPaths)
}

// Parse validates and decodes a profile document. ext selects YAML
// (".yaml", ".yml") or JSON.
func (l *ProfileLoader) Parse(data []byte, ext string) (*types.SensorProfileDefinition, error) {
	if ext == ".yaml" || ext == ".yml" {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert YAML: %w", err)
		}
		data = converted
	}

	if err := l.validator.ValidateProfile(data); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var profile types.SensorProfileDefinition
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &profile, nil
}

func (l *ProfileLoader) ClearCache() {
	l.cache.Range(func(key, value any) bool {
		l.cache.Delete(key)
		return true
	})
}

func isProfileExt(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}
