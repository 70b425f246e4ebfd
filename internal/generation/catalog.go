package generation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Provider names understood by the registry.
const (
	ProviderBedrock = "bedrock"
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
)

// DefaultModeKey is the mode used when a submission does not name one.
const DefaultModeKey = "claude-4-5-sonnet"

// Mode is one selectable operation mode: a model on a provider plus the
// parameters it is called with.
type Mode struct {
	Key         string  `yaml:"key" json:"key"`
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	Provider    string  `yaml:"provider" json:"provider"`
	ModelID     string  `yaml:"model_id" json:"model_id"`
	Streaming   bool    `yaml:"streaming" json:"streaming"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature" json:"temperature,omitempty"`
}

// Validate checks that the mode names a provider and a model.
func (m Mode) Validate() error {
	if m.Key == "" {
		return fmt.Errorf("%w: mode key is required", ErrInvalidConfig)
	}
	if m.Provider == "" {
		return fmt.Errorf("%w: mode %s has no provider", ErrInvalidConfig, m.Key)
	}
	if m.ModelID == "" {
		return fmt.Errorf("%w: mode %s has no model_id", ErrInvalidConfig, m.Key)
	}
	if m.MaxTokens < 0 {
		return fmt.Errorf("%w: mode %s has negative max_tokens", ErrInvalidConfig, m.Key)
	}
	if m.Temperature < 0 || m.Temperature > 2 {
		return fmt.Errorf("%w: mode %s temperature out of range", ErrInvalidConfig, m.Key)
	}
	return nil
}

// BuiltinModes returns the modes available without a catalog file.
func BuiltinModes() []Mode {
	return []Mode{
		{
			Key:         "claude-4-5-opus",
			Name:        "Claude 4.5 Opus",
			Description: "Most capable model, for the most complex documents",
			Provider:    ProviderBedrock,
			ModelID:     "global.anthropic.claude-opus-4-5-20251101-v1:0",
			Streaming:   true,
		},
		{
			Key:         "claude-4-5-sonnet",
			Name:        "Claude 4.5 Sonnet",
			Description: "Balanced performance, speed and cost",
			Provider:    ProviderBedrock,
			ModelID:     "global.anthropic.claude-sonnet-4-5-20250929-v1:0",
			Streaming:   true,
		},
		{
			Key:         "claude-4-5-haiku",
			Name:        "Claude 4.5 Haiku",
			Description: "Fast responses for simple documents",
			Provider:    ProviderBedrock,
			ModelID:     "global.anthropic.claude-haiku-4-5-20251001-v1:0",
			Streaming:   true,
		},
	}
}

// Catalog is the ordered set of operation modes. It is read-only once the
// service starts.
type Catalog struct {
	modes      []Mode
	byKey      map[string]int
	defaultKey string
}

// NewCatalog builds a catalog from modes. A later mode with the same key
// replaces an earlier one in place.
func NewCatalog(defaultKey string, modes ...Mode) (*Catalog, error) {
	c := &Catalog{byKey: make(map[string]int), defaultKey: defaultKey}
	for _, m := range modes {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if i, ok := c.byKey[m.Key]; ok {
			c.modes[i] = m
			continue
		}
		c.byKey[m.Key] = len(c.modes)
		c.modes = append(c.modes, m)
	}
	if _, ok := c.byKey[defaultKey]; !ok {
		return nil, fmt.Errorf("%w: default mode %q is not in the catalog", ErrInvalidConfig, defaultKey)
	}
	return c, nil
}

// catalogFile is the YAML layout of a models file.
type catalogFile struct {
	Default string `yaml:"default"`
	Modes   []Mode `yaml:"modes"`
}

// LoadCatalog builds a catalog from the built-in modes, extended or
// overridden by the YAML file at path when path is not empty. The file's
// default key wins over defaultKey when set.
func LoadCatalog(path, defaultKey string) (*Catalog, error) {
	modes := BuiltinModes()
	if defaultKey == "" {
		defaultKey = DefaultModeKey
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read models file: %w", err)
		}

		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("%w: parse models file: %v", ErrInvalidConfig, err)
		}
		modes = append(modes, file.Modes...)
		if file.Default != "" {
			defaultKey = file.Default
		}
	}

	return NewCatalog(defaultKey, modes...)
}

// InheritParameters gives every mode without its own max_tokens the
// service-wide maxTokens and temperature.
func (c *Catalog) InheritParameters(maxTokens int, temperature float64) {
	for i := range c.modes {
		if c.modes[i].MaxTokens == 0 {
			c.modes[i].MaxTokens = maxTokens
			c.modes[i].Temperature = temperature
		}
	}
}

// Lookup returns the mode registered under key. An empty key selects the
// default mode.
func (c *Catalog) Lookup(key string) (Mode, error) {
	if key == "" {
		key = c.defaultKey
	}
	i, ok := c.byKey[key]
	if !ok {
		return Mode{}, fmt.Errorf("%w: %s", ErrUnknownMode, key)
	}
	return c.modes[i], nil
}

// Default returns the default mode.
func (c *Catalog) Default() Mode {
	return c.modes[c.byKey[c.defaultKey]]
}

// DefaultKey returns the key of the default mode.
func (c *Catalog) DefaultKey() string {
	return c.defaultKey
}

// Modes returns a copy of all modes in catalog order.
func (c *Catalog) Modes() []Mode {
	out := make([]Mode, len(c.modes))
	copy(out, c.modes)
	return out
}
