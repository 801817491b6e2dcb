package system

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenInverterCore/internal/catalog"
	"github.com/KevinKickass/OpenInverterCore/internal/config"
	"github.com/KevinKickass/OpenInverterCore/internal/inverter"
	"github.com/KevinKickass/OpenInverterCore/internal/profiles"
	"github.com/KevinKickass/OpenInverterCore/internal/sensors"
	"github.com/KevinKickass/OpenInverterCore/internal/types"
)

// BuildRegistry registers the catalog and every custom profile, then links
// all bound references.
func BuildRegistry(cfg config.ProfilesConfig, logger *zap.Logger) (*sensors.Registry, error) {
	r := sensors.NewRegistry()
	if err := catalog.Register(r); err != nil {
		return nil, fmt.Errorf("failed to register catalog: %w", err)
	}

	defs, err := loadProfiles(cfg)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		logger.Info("Registering sensor profile",
			zap.String("profile", def.Profile.ID),
			zap.Int("sensors", len(def.Sensors)))
	}
	if err := profiles.Register(r, defs...); err != nil {
		return nil, fmt.Errorf("failed to register profiles: %w", err)
	}

	if err := r.Link(); err != nil {
		return nil, fmt.Errorf("failed to link sensor bounds: %w", err)
	}
	return r, nil
}

func loadProfiles(cfg config.ProfilesConfig) ([]*types.SensorProfileDefinition, error) {
	if len(cfg.SearchPaths) == 0 && len(cfg.Files) == 0 {
		return nil, nil
	}

	loader, err := profiles.NewProfileLoader(cfg.SearchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile loader: %w", err)
	}

	var defs []*types.SensorProfileDefinition
	if len(cfg.SearchPaths) > 0 {
		all, err := loader.LoadAll()
		if err != nil {
			return nil, err
		}
		defs = append(defs, all...)
	}
	for _, f := range cfg.Files {
		def, err := loader.Load(f)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// SelectSensors resolves the configured sensor ids, or every sensor of the
// configured model when none are listed. Filter suffixes ("id:filter") are
// ignored here, see SensorFilters.
func SelectSensors(r *sensors.Registry, cfg config.Config) ([]sensors.Sensor, error) {
	if len(cfg.Sensors.Selected) == 0 {
		if cfg.Inverter.Model == "" {
			return r.All(), nil
		}
		return r.ForModel(cfg.Inverter.Model), nil
	}

	out := make([]sensors.Sensor, 0, len(cfg.Sensors.Selected))
	seen := make(map[string]bool, len(cfg.Sensors.Selected))
	for _, sel := range cfg.Sensors.Selected {
		name, _, _ := strings.Cut(sel, ":")
		s, err := r.Lookup(sensors.Slug(name))
		if err != nil {
			return nil, err
		}
		if seen[s.ID()] {
			continue
		}
		seen[s.ID()] = true
		out = append(out, s)
	}
	return out, nil
}

// SensorFilters collects the filter definitions of the selection and of
// sensors.filters, keyed by sensor id. Selection suffixes win.
func SensorFilters(cfg config.SensorsConfig) (map[string]string, error) {
	specs := make(map[string]string)
	for id, spec := range cfg.Filters {
		specs[sensors.Slug(id)] = spec
	}
	for _, sel := range cfg.Selected {
		name, spec, ok := strings.Cut(sel, ":")
		if !ok {
			continue
		}
		specs[sensors.Slug(name)] = spec
	}
	for id, spec := range specs {
		if err := inverter.ParseFilter(spec); err != nil {
			return nil, fmt.Errorf("sensor %s: %w", id, err)
		}
	}
	return specs, nil
}
