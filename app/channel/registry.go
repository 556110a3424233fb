package channel

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/tube-digest/app/failure"
)

//go:embed channels.yml
var defaultChannels []byte

// Registry is the fixed, ordered list of channels polled by a run.
type Registry struct {
	channels []Channel
}

// New builds a registry from an explicit channel list.
func New(channels []Channel) (*Registry, error) {
	r := &Registry{channels: make([]Channel, 0, len(channels))}

	seen := make(map[string]bool, len(channels))
	for i, ch := range channels {
		ch.ID = strings.TrimSpace(ch.ID)
		ch.Name = strings.TrimSpace(ch.Name)

		if err := validateChannel(ch); err != nil {
			return nil, fmt.Errorf("%w: channel at index %d: %v", failure.ErrConfigurationMissing, i, err)
		}
		if seen[ch.ID] {
			return nil, fmt.Errorf("%w: duplicate channel id %s", failure.ErrConfigurationMissing, ch.ID)
		}
		seen[ch.ID] = true

		r.channels = append(r.channels, ch)
	}

	if len(r.channels) == 0 {
		return nil, fmt.Errorf("%w: channel registry is empty", failure.ErrConfigurationMissing)
	}

	return r, nil
}

// Parse builds a registry from YAML data.
func Parse(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", failure.ErrConfigurationMissing, err)
	}
	return New(f.Channels)
}

// Load reads the registry from path. An empty path selects the built-in
// channel list.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read channels file: %v", failure.ErrConfigurationMissing, err)
	}

	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid channels file %s: %w", path, err)
	}

	slog.Debug("Channel registry loaded", "file", path, "channels", r.Len())
	return r, nil
}

// Default returns the built-in registry.
func Default() (*Registry, error) {
	return Parse(defaultChannels)
}

// Channels returns the channels in processing order.
func (r *Registry) Channels() []Channel {
	out := make([]Channel, len(r.channels))
	copy(out, r.channels)
	return out
}

func (r *Registry) Len() int {
	return len(r.channels)
}

func validateChannel(ch Channel) error {
	requiredFields := map[string]string{
		"id":   ch.ID,
		"name": ch.Name,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	validFields := map[string]bool{
		FieldTitle: true,
		FieldLink:  true,
	}

	for i, filter := range ch.Filters {
		if !validFields[filter.Field] {
			return fmt.Errorf("invalid filter field at index %d: %s", i, filter.Field)
		}
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}

	return nil
}
