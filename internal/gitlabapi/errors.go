package gitlabapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/xanzy/go-gitlab"

	"github.com/temirov/glmigrate/internal/platform"
)

const (
	errorBodyMessagePathConstant = "message"
	errorBodyErrorPathConstant   = "error"
)

var takenPathMarkers = []string{
	"has already been taken",
	"already exists",
}

// translateError maps go-gitlab failures onto the platform error taxonomy.
func translateError(operation platform.OperationName, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return platform.OperationError{Operation: operation, Cause: err}
	}

	var responseError *gitlab.ErrorResponse
	if errors.As(err, &responseError) && responseError.Response != nil {
		switch responseError.Response.StatusCode {
		case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
			if reportsTakenPath(responseError) {
				return platform.ConflictError{Operation: operation, Path: path, Cause: err}
			}
		}
	}
	return platform.OperationError{Operation: operation, Cause: err}
}

func reportsTakenPath(responseError *gitlab.ErrorResponse) bool {
	candidates := []string{responseError.Message}
	if gjson.ValidBytes(responseError.Body) {
		candidates = append(candidates,
			gjson.GetBytes(responseError.Body, errorBodyMessagePathConstant).String(),
			gjson.GetBytes(responseError.Body, errorBodyErrorPathConstant).String(),
		)
	} else {
		candidates = append(candidates, string(responseError.Body))
	}

	for _, candidate := range candidates {
		loweredCandidate := strings.ToLower(candidate)
		for _, marker := range takenPathMarkers {
			if strings.Contains(loweredCandidate, marker) {
				return true
			}
		}
	}
	return false
}
