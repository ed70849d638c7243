package session

// Config holds session initialization parameters.
type Config struct {
	// InitialMessage overrides the localized greeting when set.
	InitialMessage string `json:"initial_message,omitempty" yaml:"initial_message" toml:"initial_message"`
}

// DefaultConfig returns the default configuration: the localized greeting.
func DefaultConfig() Config {
	return Config{}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.InitialMessage != "" {
		c.InitialMessage = source.InitialMessage
	}
}
