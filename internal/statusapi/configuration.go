package statusapi

import "strings"

const defaultListenAddressConstant = "0.0.0.0:5001"

// ServeConfiguration captures persisted configuration for the status API.
type ServeConfiguration struct {
	ListenAddress string `mapstructure:"listen"`
}

// DefaultServeConfiguration returns baseline configuration values for the status API.
func DefaultServeConfiguration() ServeConfiguration {
	return ServeConfiguration{ListenAddress: defaultListenAddressConstant}
}

// Sanitize trims configured values and restores defaults for empty ones.
func (configuration ServeConfiguration) Sanitize() ServeConfiguration {
	sanitized := configuration
	sanitized.ListenAddress = strings.TrimSpace(configuration.ListenAddress)
	if len(sanitized.ListenAddress) == 0 {
		sanitized.ListenAddress = defaultListenAddressConstant
	}
	return sanitized
}
