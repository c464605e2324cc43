package gitlabapi

import (
	"net/url"
	"strings"
)

const (
	cloneProtocolHTTPSValueConstant = "https"
	cloneProtocolSSHValueConstant   = "ssh"
	defaultSSHPortConstant          = 22
)

// CloneProtocol selects how repository locators are built.
type CloneProtocol string

// Supported clone protocols.
const (
	CloneProtocolHTTPS CloneProtocol = CloneProtocol(cloneProtocolHTTPSValueConstant)
	CloneProtocolSSH   CloneProtocol = CloneProtocol(cloneProtocolSSHValueConstant)
)

// InstanceConfiguration describes one GitLab instance as it appears in configuration files.
type InstanceConfiguration struct {
	BaseURL         string `mapstructure:"url"`
	Token           string `mapstructure:"token"`
	TokenSource     string `mapstructure:"token_source"`
	SSHHost         string `mapstructure:"ssh_host"`
	SSHPort         int    `mapstructure:"ssh_port"`
	CloneProtocol   string `mapstructure:"clone_protocol"`
	IncludeArchived bool   `mapstructure:"include_archived"`
}

// Sanitize trims values and applies protocol and port defaults.
func (configuration InstanceConfiguration) Sanitize() InstanceConfiguration {
	sanitized := configuration
	sanitized.BaseURL = strings.TrimSpace(configuration.BaseURL)
	sanitized.Token = strings.TrimSpace(configuration.Token)
	sanitized.TokenSource = strings.TrimSpace(configuration.TokenSource)
	sanitized.SSHHost = strings.TrimSpace(configuration.SSHHost)
	if sanitized.SSHPort <= 0 {
		sanitized.SSHPort = defaultSSHPortConstant
	}
	switch CloneProtocol(strings.ToLower(strings.TrimSpace(configuration.CloneProtocol))) {
	case CloneProtocolSSH:
		sanitized.CloneProtocol = cloneProtocolSSHValueConstant
	default:
		sanitized.CloneProtocol = cloneProtocolHTTPSValueConstant
	}
	if len(sanitized.SSHHost) == 0 {
		if parsedURL, parseError := url.Parse(sanitized.BaseURL); parseError == nil {
			sanitized.SSHHost = parsedURL.Hostname()
		}
	}
	return sanitized
}

// ClientOptions carries the resolved settings used to construct a Client.
type ClientOptions struct {
	Role            string
	BaseURL         string
	Token           string
	CloneProtocol   CloneProtocol
	SSHHost         string
	SSHPort         int
	IncludeArchived bool
}

// OptionsFromConfiguration combines a sanitized instance configuration with a resolved token.
func OptionsFromConfiguration(role string, configuration InstanceConfiguration, token string) ClientOptions {
	sanitized := configuration.Sanitize()
	return ClientOptions{
		Role:            role,
		BaseURL:         sanitized.BaseURL,
		Token:           token,
		CloneProtocol:   CloneProtocol(sanitized.CloneProtocol),
		SSHHost:         sanitized.SSHHost,
		SSHPort:         sanitized.SSHPort,
		IncludeArchived: sanitized.IncludeArchived,
	}
}
