package migrate

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/temirov/glmigrate/internal/gitlabapi"
	pathutils "github.com/temirov/glmigrate/internal/utils/path"
)

const (
	defaultScratchDirectoryNameConstant   = "glmigrate-scratch"
	defaultPagePauseConstant              = 100 * time.Millisecond
	defaultProjectPauseConstant           = 300 * time.Millisecond
	targetParentIDInvalidTemplateConstant = "target parent id %q is not a valid group id: %w"
	targetParentIDNegativeMessageConstant = "must not be negative"
)

var (
	errNegativeTargetParentID = errors.New(targetParentIDNegativeMessageConstant)
	homeDirectoryExpander     = pathutils.NewHomeExpander()
)

// CommandConfiguration captures persisted configuration for migration runs.
type CommandConfiguration struct {
	Source            gitlabapi.InstanceConfiguration `mapstructure:"source"`
	Target            gitlabapi.InstanceConfiguration `mapstructure:"target"`
	TargetParentID    string                          `mapstructure:"target_parent_id"`
	ScratchDirectory  string                          `mapstructure:"scratch_dir"`
	ReportPath        string                          `mapstructure:"report"`
	NamespacePageSize int                             `mapstructure:"namespace_page_size"`
	ProjectPageSize   int                             `mapstructure:"project_page_size"`
	PagePause         time.Duration                   `mapstructure:"page_pause"`
	ProjectPause      time.Duration                   `mapstructure:"project_pause"`
	LogCapacity       int                             `mapstructure:"log_capacity"`
}

// DefaultCommandConfiguration returns baseline configuration values for migration runs.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		ScratchDirectory:  filepath.Join(".", defaultScratchDirectoryNameConstant),
		NamespacePageSize: defaultNamespacePageSizeConstant,
		ProjectPageSize:   defaultProjectPageSizeConstant,
		PagePause:         defaultPagePauseConstant,
		ProjectPause:      defaultProjectPauseConstant,
	}
}

// Sanitize trims configured values, expands ~ in paths and replaces invalid numbers with defaults.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	defaults := DefaultCommandConfiguration()
	sanitized := configuration
	sanitized.Source = configuration.Source.Sanitize()
	sanitized.Target = configuration.Target.Sanitize()
	sanitized.TargetParentID = strings.TrimSpace(configuration.TargetParentID)
	sanitized.ScratchDirectory = homeDirectoryExpander.Expand(strings.TrimSpace(configuration.ScratchDirectory))
	sanitized.ReportPath = homeDirectoryExpander.Expand(strings.TrimSpace(configuration.ReportPath))

	if len(sanitized.ScratchDirectory) == 0 {
		sanitized.ScratchDirectory = defaults.ScratchDirectory
	}
	if sanitized.NamespacePageSize <= 0 {
		sanitized.NamespacePageSize = defaults.NamespacePageSize
	}
	if sanitized.ProjectPageSize <= 0 {
		sanitized.ProjectPageSize = defaults.ProjectPageSize
	}
	if sanitized.PagePause < 0 {
		sanitized.PagePause = 0
	}
	if sanitized.ProjectPause < 0 {
		sanitized.ProjectPause = 0
	}
	if sanitized.LogCapacity < 0 {
		sanitized.LogCapacity = 0
	}
	return sanitized
}

// ParseTargetParentID converts the configured target parent. Empty means top level.
func ParseTargetParentID(value string) (int, error) {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 {
		return 0, nil
	}
	parsedValue, parseError := strconv.Atoi(trimmedValue)
	if parseError != nil {
		return 0, fmt.Errorf(targetParentIDInvalidTemplateConstant, trimmedValue, parseError)
	}
	if parsedValue < 0 {
		return 0, fmt.Errorf(targetParentIDInvalidTemplateConstant, trimmedValue, errNegativeTargetParentID)
	}
	return parsedValue, nil
}

// ServiceOptions converts the configuration into run options. An invalid target parent yields top level and the parse error.
func (configuration CommandConfiguration) ServiceOptions() (ServiceOptions, error) {
	targetParentID, parseError := ParseTargetParentID(configuration.TargetParentID)
	return ServiceOptions{
		TargetParentID:    targetParentID,
		NamespacePageSize: configuration.NamespacePageSize,
		ProjectPageSize:   configuration.ProjectPageSize,
		PagePause:         configuration.PagePause,
		ProjectPause:      configuration.ProjectPause,
		ReportPath:        configuration.ReportPath,
	}, parseError
}
