package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	reportPathRequiredMessageConstant    = "report path must be provided"
	reportEncodeErrorTemplateConstant    = "failed to encode migration report: %w"
	reportDirectoryErrorTemplateConstant = "failed to create report directory: %w"
	reportWriteErrorTemplateConstant     = "failed to write migration report: %w"
	reportReadErrorTemplateConstant      = "failed to read migration report: %w"
	reportParseErrorTemplateConstant     = "failed to parse migration report: %w"
	reportDirectoryPermissionsConstant   = 0o755
	reportFilePermissionsConstant        = 0o644
	reportTemporaryPatternConstant       = ".glmigrate-report-*.yaml"
)

// ErrReportPathRequired indicates an empty report path.
var ErrReportPathRequired = errors.New(reportPathRequiredMessageConstant)

// WriteReport stores summary as YAML at reportPath, replacing any previous report atomically.
func WriteReport(reportPath string, summary RunSummary) error {
	trimmedPath := strings.TrimSpace(reportPath)
	if len(trimmedPath) == 0 {
		return ErrReportPathRequired
	}

	contentBytes, encodeError := yaml.Marshal(summary)
	if encodeError != nil {
		return fmt.Errorf(reportEncodeErrorTemplateConstant, encodeError)
	}

	reportDirectory := filepath.Dir(trimmedPath)
	if directoryError := os.MkdirAll(reportDirectory, reportDirectoryPermissionsConstant); directoryError != nil {
		return fmt.Errorf(reportDirectoryErrorTemplateConstant, directoryError)
	}

	temporaryFile, createError := os.CreateTemp(reportDirectory, reportTemporaryPatternConstant)
	if createError != nil {
		return fmt.Errorf(reportWriteErrorTemplateConstant, createError)
	}
	temporaryPath := temporaryFile.Name()
	defer os.Remove(temporaryPath)

	if _, writeError := temporaryFile.Write(contentBytes); writeError != nil {
		temporaryFile.Close()
		return fmt.Errorf(reportWriteErrorTemplateConstant, writeError)
	}
	if closeError := temporaryFile.Close(); closeError != nil {
		return fmt.Errorf(reportWriteErrorTemplateConstant, closeError)
	}
	if chmodError := os.Chmod(temporaryPath, reportFilePermissionsConstant); chmodError != nil {
		return fmt.Errorf(reportWriteErrorTemplateConstant, chmodError)
	}
	if renameError := os.Rename(temporaryPath, trimmedPath); renameError != nil {
		return fmt.Errorf(reportWriteErrorTemplateConstant, renameError)
	}
	return nil
}

// ReadReport loads a report previously written by WriteReport.
func ReadReport(reportPath string) (RunSummary, error) {
	trimmedPath := strings.TrimSpace(reportPath)
	if len(trimmedPath) == 0 {
		return RunSummary{}, ErrReportPathRequired
	}

	contentBytes, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return RunSummary{}, fmt.Errorf(reportReadErrorTemplateConstant, readError)
	}

	var summary RunSummary
	if unmarshalError := yaml.Unmarshal(contentBytes, &summary); unmarshalError != nil {
		return RunSummary{}, fmt.Errorf(reportParseErrorTemplateConstant, unmarshalError)
	}
	summary.ReportPath = trimmedPath
	return summary, nil
}
