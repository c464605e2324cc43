package gitlabapi

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	oauthUsernameConstant             = "oauth2"
	sshLocatorTemplateConstant        = "ssh://git@%s:%d/%s.git"
	httpsFallbackPathTemplateConstant = "%s.git"
	locatorParseErrorTemplateConstant = "unable to parse repository URL %q: %w"
	urlPathSeparatorConstant          = "/"
)

// ErrProjectPathMissing indicates that a clone locator could not be derived because the project path is empty.
var ErrProjectPathMissing = errors.New("project full path is required to build a clone locator")

// cloneLocatorBuilder turns project metadata into a git remote that carries the instance credentials.
type cloneLocatorBuilder struct {
	protocol CloneProtocol
	baseURL  string
	token    string
	sshHost  string
	sshPort  int
}

func (builder cloneLocatorBuilder) build(httpRepositoryURL string, fullPath string) (string, error) {
	trimmedFullPath := strings.Trim(strings.TrimSpace(fullPath), urlPathSeparatorConstant)
	if builder.protocol == CloneProtocolSSH {
		if len(trimmedFullPath) == 0 {
			return "", ErrProjectPathMissing
		}
		return fmt.Sprintf(sshLocatorTemplateConstant, builder.sshHost, builder.sshPort, trimmedFullPath), nil
	}

	repositoryURL := strings.TrimSpace(httpRepositoryURL)
	if len(repositoryURL) == 0 {
		if len(trimmedFullPath) == 0 {
			return "", ErrProjectPathMissing
		}
		repositoryURL = strings.TrimRight(builder.baseURL, urlPathSeparatorConstant) + urlPathSeparatorConstant + fmt.Sprintf(httpsFallbackPathTemplateConstant, trimmedFullPath)
	}

	parsedURL, parseError := url.Parse(repositoryURL)
	if parseError != nil {
		return "", fmt.Errorf(locatorParseErrorTemplateConstant, repositoryURL, parseError)
	}
	if len(builder.token) > 0 {
		parsedURL.User = url.UserPassword(oauthUsernameConstant, builder.token)
	}
	return parsedURL.String(), nil
}
