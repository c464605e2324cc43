package platform

import (
	"errors"
	"fmt"
)

const (
	conflictErrorTemplateConstant           = "%s: path %q already exists"
	conflictErrorWithCauseTemplateConstant  = "%s: path %q already exists: %s"
	notFoundErrorTemplateConstant           = "%s: %s not found"
	operationErrorMessageTemplateConstant   = "%s operation failed"
	operationErrorWithCauseTemplateConstant = "%s operation failed: %s"
)

// OperationName identifies a platform API call.
type OperationName string

// Platform operations.
const (
	OperationAuthenticate     OperationName = "Authenticate"
	OperationListNamespaces   OperationName = "ListNamespaces"
	OperationSearchNamespaces OperationName = "SearchNamespaces"
	OperationListProjects     OperationName = "ListProjects"
	OperationCountNamespaces  OperationName = "CountNamespaces"
	OperationCountProjects    OperationName = "CountProjects"
	OperationCreateNamespace  OperationName = "CreateNamespace"
	OperationCreateProject    OperationName = "CreateProject"
	OperationFindProject      OperationName = "FindProject"
)

// ErrorKind is the structured classification of a platform failure.
type ErrorKind int

// Error kinds.
const (
	ErrorKindNone ErrorKind = iota
	ErrorKindConflict
	ErrorKindNotFound
	ErrorKindOther
)

// ConflictError reports that a create call was rejected because the path is taken.
type ConflictError struct {
	Operation OperationName
	Path      string
	Cause     error
}

// Error describes the conflict.
func (conflictError ConflictError) Error() string {
	if conflictError.Cause == nil {
		return fmt.Sprintf(conflictErrorTemplateConstant, conflictError.Operation, conflictError.Path)
	}
	return fmt.Sprintf(conflictErrorWithCauseTemplateConstant, conflictError.Operation, conflictError.Path, conflictError.Cause)
}

// Unwrap exposes the underlying cause.
func (conflictError ConflictError) Unwrap() error {
	return conflictError.Cause
}

// NotFoundError reports that a lookup found nothing.
type NotFoundError struct {
	Operation OperationName
	Resource  string
}

// Error describes the missing resource.
func (notFoundError NotFoundError) Error() string {
	return fmt.Sprintf(notFoundErrorTemplateConstant, notFoundError.Operation, notFoundError.Resource)
}

// OperationError wraps every other platform failure.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(operationErrorMessageTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(operationErrorWithCauseTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// Classify maps an error returned by a Client to its ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var conflictError ConflictError
	if errors.As(err, &conflictError) {
		return ErrorKindConflict
	}
	var notFoundError NotFoundError
	if errors.As(err, &notFoundError) {
		return ErrorKindNotFound
	}
	return ErrorKindOther
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	return Classify(err) == ErrorKindConflict
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	return Classify(err) == ErrorKindNotFound
}
