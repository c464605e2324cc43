package platform

import (
	"context"
	"strings"
)

const (
	namespaceKindGroupValueConstant = "group"
	namespaceKindUserValueConstant  = "user"
	visibilityPrivateValueConstant  = "private"
	visibilityInternalValueConstant = "internal"
	visibilityPublicValueConstant   = "public"
)

// NamespaceKind distinguishes group-owned projects from projects owned by a user.
type NamespaceKind string

// Namespace kinds reported by project listings.
const (
	NamespaceKindGroup NamespaceKind = NamespaceKind(namespaceKindGroupValueConstant)
	NamespaceKindUser  NamespaceKind = NamespaceKind(namespaceKindUserValueConstant)
)

// Visibility is the access level of a namespace or project.
type Visibility string

// Visibility levels.
const (
	VisibilityPrivate  Visibility = Visibility(visibilityPrivateValueConstant)
	VisibilityInternal Visibility = Visibility(visibilityInternalValueConstant)
	VisibilityPublic   Visibility = Visibility(visibilityPublicValueConstant)
)

// NormalizeVisibility maps unknown or empty values to private.
func NormalizeVisibility(value string) Visibility {
	switch Visibility(strings.ToLower(strings.TrimSpace(value))) {
	case VisibilityPublic:
		return VisibilityPublic
	case VisibilityInternal:
		return VisibilityInternal
	default:
		return VisibilityPrivate
	}
}

// Namespace describes a group or subgroup. ParentID is zero for top-level namespaces.
type Namespace struct {
	ID          int
	Name        string
	Path        string
	FullPath    string
	Description string
	Visibility  Visibility
	ParentID    int
}

// IsTopLevel reports whether the namespace has no parent.
func (namespace Namespace) IsTopLevel() bool {
	return namespace.ParentID == 0
}

// Project describes a repository-bearing project together with everything needed to recreate and mirror it.
type Project struct {
	ID              int
	Name            string
	Path            string
	FullPath        string
	Description     string
	Visibility      Visibility
	NamespaceKind   NamespaceKind
	NamespaceID     int
	CloneLocator    string
	EmptyRepository bool
}

// Identity is the account a client authenticated as.
type Identity struct {
	ID       int
	Username string
}

// Page selects one page of a listing. Numbers start at 1.
type Page struct {
	Number int
	Size   int
}

// NamespaceSpec carries the attributes of a namespace to create. ParentID zero creates a top-level namespace.
type NamespaceSpec struct {
	Name        string
	Path        string
	Description string
	Visibility  Visibility
	ParentID    int
}

// ProjectSpec carries the attributes of a project to create. NamespaceID zero targets the authenticated user's namespace.
type ProjectSpec struct {
	Name        string
	Path        string
	Description string
	Visibility  Visibility
	NamespaceID int
}

// Client is the platform API surface the migration needs.
//
// Create calls report an already-used path as ConflictError and lookups report
// absence as NotFoundError; every other failure is an OperationError.
type Client interface {
	Authenticate(executionContext context.Context) (Identity, error)
	ListNamespaces(executionContext context.Context, parentID int, page Page) ([]Namespace, error)
	SearchNamespaces(executionContext context.Context, path string) ([]Namespace, error)
	ListProjects(executionContext context.Context, page Page) ([]Project, error)
	CountNamespaces(executionContext context.Context) (int, error)
	CountProjects(executionContext context.Context) (int, error)
	CreateNamespace(executionContext context.Context, spec NamespaceSpec) (Namespace, error)
	CreateProject(executionContext context.Context, spec ProjectSpec) (Project, error)
	FindProject(executionContext context.Context, namespaceID int, path string) (Project, error)
}
