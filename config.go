package telreg

// Config holds the global configuration for a Registry.
type Config struct {
	// Name identifies the registry in logs and dump denials.
	Name string

	// LogLevel controls log verbosity ("debug", "info", "warn", "error").
	LogLevel string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:     "telephony.registry",
		LogLevel: "info",
	}
}
