package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AreaLayout is the root of the area configuration file
type AreaLayout struct {
	Areas []AreaConfig `yaml:"areas"`
}

// AreaConfig describes one monitored area and its sensors
type AreaConfig struct {
	Name      string         `yaml:"name"`
	Purpose   string         `yaml:"purpose"`   // sleeping, social, working, passthrough
	Threshold float64        `yaml:"threshold"` // occupancy threshold, 0 means default
	Sensors   []SensorConfig `yaml:"sensors"`

	// Decay configuration. HalfLifeSec overrides the purpose-derived
	// default. The sleep window only applies to the sleeping purpose.
	DecayHalfLifeSec      int               `yaml:"decay_half_life_sec"`
	SleepDecayHalfLifeSec int               `yaml:"sleep_decay_half_life_sec"`
	SleepWindow           SleepWindowConfig `yaml:"sleep_window"`
}

// SensorConfig describes one sensor within an area
type SensorConfig struct {
	Entity   string  `yaml:"entity"`
	Category string  `yaml:"category"` // motion, door, window, media, appliance, environmental
	Weight   float64 `yaml:"weight"`   // 0 means category default

	// Optional overrides for what counts as active. At most one of
	// the two forms may be set; the category default applies otherwise.
	ActiveStates []string `yaml:"active_states"`
	ActiveMin    *float64 `yaml:"active_min"`
	ActiveMax    *float64 `yaml:"active_max"`
}

// SleepWindowConfig defines when the sleeping half-life applies.
// Mode "fixed" uses StartHour/EndHour wall-clock hours; mode "sun"
// derives the window from sunset and sunrise at the configured location.
type SleepWindowConfig struct {
	Mode      string `yaml:"mode"`
	StartHour int    `yaml:"start_hour"`
	EndHour   int    `yaml:"end_hour"`
}

var validCategories = map[string]bool{
	"motion":        true,
	"door":          true,
	"window":        true,
	"media":         true,
	"appliance":     true,
	"environmental": true,
}

// LoadAreas reads and validates the area layout YAML file
func LoadAreas(path string) (*AreaLayout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read areas file: %w", err)
	}

	var layout AreaLayout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("failed to parse areas file: %w", err)
	}

	if err := layout.Validate(); err != nil {
		return nil, err
	}

	return &layout, nil
}

// Validate checks the area layout for structural errors
func (l *AreaLayout) Validate() error {
	if len(l.Areas) == 0 {
		return fmt.Errorf("areas file defines no areas")
	}

	seen := make(map[string]bool)
	for _, area := range l.Areas {
		if area.Name == "" {
			return fmt.Errorf("area with empty name")
		}
		if seen[area.Name] {
			return fmt.Errorf("duplicate area name: %s", area.Name)
		}
		seen[area.Name] = true

		if area.Threshold < 0 || area.Threshold > 1 {
			return fmt.Errorf("area %s: threshold must be within [0,1]", area.Name)
		}

		switch area.SleepWindow.Mode {
		case "", "fixed", "sun":
		default:
			return fmt.Errorf("area %s: sleep window mode must be fixed or sun", area.Name)
		}

		sensorSeen := make(map[string]bool)
		for _, sensor := range area.Sensors {
			if sensor.Entity == "" {
				return fmt.Errorf("area %s: sensor with empty entity", area.Name)
			}
			if sensorSeen[sensor.Entity] {
				return fmt.Errorf("area %s: duplicate sensor entity %s", area.Name, sensor.Entity)
			}
			sensorSeen[sensor.Entity] = true

			if !validCategories[sensor.Category] {
				return fmt.Errorf("area %s: sensor %s has invalid category %q", area.Name, sensor.Entity, sensor.Category)
			}
			if sensor.Weight < 0 || sensor.Weight > 1 {
				return fmt.Errorf("area %s: sensor %s weight must be within [0,1]", area.Name, sensor.Entity)
			}

			hasStates := len(sensor.ActiveStates) > 0
			hasRange := sensor.ActiveMin != nil || sensor.ActiveMax != nil
			if hasStates && hasRange {
				return fmt.Errorf("area %s: sensor %s sets both active states and a numeric range", area.Name, sensor.Entity)
			}
			if hasRange && (sensor.ActiveMin == nil || sensor.ActiveMax == nil) {
				return fmt.Errorf("area %s: sensor %s numeric range needs both active_min and active_max", area.Name, sensor.Entity)
			}
		}
	}

	return nil
}
