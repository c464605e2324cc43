package testsupport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/temirov/glmigrate/internal/platform"
)

const (
	fakeUsernameConstant              = "migration-bot"
	fakeUserIDConstant                = 1
	fakeCloneLocatorTemplateConstant  = "https://%s/%s.git"
	fakeFullPathSeparatorConstant     = "/"
	fakeDefaultFirstCreatedIDConstant = 1000
)

// FakePlatform is an in-memory platform.Client recording every mutating call.
// SearchLag makes that many initial searches return nothing, like a lagging search index.
type FakePlatform struct {
	mutex sync.Mutex

	host     string
	username string
	nextID   int

	namespaces []platform.Namespace
	projects   []platform.Project

	AuthenticateError     error
	ListNamespacesErrors  map[int]error
	SearchNamespacesError error
	ListProjectsError     error
	CountError            error
	CreateNamespaceErrors map[string]error
	CreateProjectErrors   map[string]error
	FindProjectError      error
	SearchLag             int

	CreatedNamespaces   []platform.NamespaceSpec
	CreatedProjects     []platform.ProjectSpec
	SearchCalls         []string
	FindProjectCalls    int
	ListNamespacesCalls int
	ListProjectsCalls   int
}

// NewFakePlatform returns an empty platform for host. Created entities receive identifiers starting at firstCreatedID.
func NewFakePlatform(host string, firstCreatedID int) *FakePlatform {
	if firstCreatedID <= 0 {
		firstCreatedID = fakeDefaultFirstCreatedIDConstant
	}
	return &FakePlatform{host: host, username: fakeUsernameConstant, nextID: firstCreatedID}
}

// AddGroup seeds a namespace beneath parentID (zero for top level) and returns it.
func (fake *FakePlatform) AddGroup(id int, parentID int, path string) platform.Namespace {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	namespace := platform.Namespace{
		ID:         id,
		Name:       strings.ToUpper(path[:1]) + path[1:],
		Path:       path,
		FullPath:   fake.fullPathLocked(parentID, path),
		Visibility: platform.VisibilityPrivate,
		ParentID:   parentID,
	}
	fake.namespaces = append(fake.namespaces, namespace)
	return namespace
}

// AddProject seeds a project in the given namespace and returns it. Kind user places it in the fake user's namespace.
func (fake *FakePlatform) AddProject(id int, kind platform.NamespaceKind, namespaceID int, path string) platform.Project {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	project := fake.newProjectLocked(id, kind, namespaceID, path)
	fake.projects = append(fake.projects, project)
	return project
}

// Namespaces returns a copy of every namespace.
func (fake *FakePlatform) Namespaces() []platform.Namespace {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	return append([]platform.Namespace(nil), fake.namespaces...)
}

// Projects returns a copy of every project.
func (fake *FakePlatform) Projects() []platform.Project {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	return append([]platform.Project(nil), fake.projects...)
}

// NamespaceByFullPath looks up a namespace by its full path.
func (fake *FakePlatform) NamespaceByFullPath(fullPath string) (platform.Namespace, bool) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	for _, namespace := range fake.namespaces {
		if namespace.FullPath == fullPath {
			return namespace, true
		}
	}
	return platform.Namespace{}, false
}

// Authenticate implements platform.Client.
func (fake *FakePlatform) Authenticate(executionContext context.Context) (platform.Identity, error) {
	if contextError := executionContext.Err(); contextError != nil {
		return platform.Identity{}, platform.OperationError{Operation: platform.OperationAuthenticate, Cause: contextError}
	}
	if fake.AuthenticateError != nil {
		return platform.Identity{}, fake.AuthenticateError
	}
	return platform.Identity{ID: fakeUserIDConstant, Username: fake.username}, nil
}

// ListNamespaces implements platform.Client.
func (fake *FakePlatform) ListNamespaces(executionContext context.Context, parentID int, page platform.Page) ([]platform.Namespace, error) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.ListNamespacesCalls++
	if contextError := executionContext.Err(); contextError != nil {
		return nil, platform.OperationError{Operation: platform.OperationListNamespaces, Cause: contextError}
	}
	if listError, exists := fake.ListNamespacesErrors[parentID]; exists {
		return nil, listError
	}
	var children []platform.Namespace
	for _, namespace := range fake.namespaces {
		if namespace.ParentID == parentID {
			children = append(children, namespace)
		}
	}
	return paginate(children, page), nil
}

// SearchNamespaces implements platform.Client. Matching is by substring, like the GitLab search parameter.
func (fake *FakePlatform) SearchNamespaces(executionContext context.Context, path string) ([]platform.Namespace, error) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.SearchCalls = append(fake.SearchCalls, path)
	if contextError := executionContext.Err(); contextError != nil {
		return nil, platform.OperationError{Operation: platform.OperationSearchNamespaces, Cause: contextError}
	}
	if fake.SearchNamespacesError != nil {
		return nil, fake.SearchNamespacesError
	}
	if fake.SearchLag > 0 {
		fake.SearchLag--
		return nil, nil
	}
	var matches []platform.Namespace
	for _, namespace := range fake.namespaces {
		if strings.Contains(namespace.Path, path) {
			matches = append(matches, namespace)
		}
	}
	return matches, nil
}

// ListProjects implements platform.Client.
func (fake *FakePlatform) ListProjects(executionContext context.Context, page platform.Page) ([]platform.Project, error) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.ListProjectsCalls++
	if contextError := executionContext.Err(); contextError != nil {
		return nil, platform.OperationError{Operation: platform.OperationListProjects, Cause: contextError}
	}
	if fake.ListProjectsError != nil {
		return nil, fake.ListProjectsError
	}
	return paginate(fake.projects, page), nil
}

// CountNamespaces implements platform.Client.
func (fake *FakePlatform) CountNamespaces(context.Context) (int, error) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	if fake.CountError != nil {
		return 0, fake.CountError
	}
	return len(fake.namespaces), nil
}

// CountProjects implements platform.Client.
func (fake *FakePlatform) CountProjects(context.Context) (int, error) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	if fake.CountError != nil {
		return 0, fake.CountError
	}
	return len(fake.projects), nil
}

// CreateNamespace implements platform.Client. A sibling with the same path yields ConflictError.
func (fake *FakePlatform) CreateNamespace(executionContext context.Context, spec platform.NamespaceSpec) (platform.Namespace, error) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.CreatedNamespaces = append(fake.CreatedNamespaces, spec)
	if contextError := executionContext.Err(); contextError != nil {
		return platform.Namespace{}, platform.OperationError{Operation: platform.OperationCreateNamespace, Cause: contextError}
	}
	if createError, exists := fake.CreateNamespaceErrors[spec.Path]; exists {
		return platform.Namespace{}, createError
	}
	for _, namespace := range fake.namespaces {
		if namespace.ParentID == spec.ParentID && namespace.Path == spec.Path {
			return platform.Namespace{}, platform.ConflictError{Operation: platform.OperationCreateNamespace, Path: namespace.FullPath}
		}
	}
	namespace := platform.Namespace{
		ID:          fake.nextID,
		Name:        spec.Name,
		Path:        spec.Path,
		FullPath:    fake.fullPathLocked(spec.ParentID, spec.Path),
		Description: spec.Description,
		Visibility:  spec.Visibility,
		ParentID:    spec.ParentID,
	}
	fake.nextID++
	fake.namespaces = append(fake.namespaces, namespace)
	return namespace, nil
}

// CreateProject implements platform.Client. A project with the same path in the namespace yields ConflictError.
func (fake *FakePlatform) CreateProject(executionContext context.Context, spec platform.ProjectSpec) (platform.Project, error) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.CreatedProjects = append(fake.CreatedProjects, spec)
	if contextError := executionContext.Err(); contextError != nil {
		return platform.Project{}, platform.OperationError{Operation: platform.OperationCreateProject, Cause: contextError}
	}
	if createError, exists := fake.CreateProjectErrors[spec.Path]; exists {
		return platform.Project{}, createError
	}
	if existing, found := fake.findProjectLocked(spec.NamespaceID, spec.Path); found {
		return platform.Project{}, platform.ConflictError{Operation: platform.OperationCreateProject, Path: existing.FullPath}
	}
	kind := platform.NamespaceKindGroup
	if spec.NamespaceID == 0 {
		kind = platform.NamespaceKindUser
	}
	project := fake.newProjectLocked(fake.nextID, kind, spec.NamespaceID, spec.Path)
	project.Name = spec.Name
	project.Description = spec.Description
	project.Visibility = spec.Visibility
	fake.nextID++
	fake.projects = append(fake.projects, project)
	return project, nil
}

// FindProject implements platform.Client.
func (fake *FakePlatform) FindProject(executionContext context.Context, namespaceID int, path string) (platform.Project, error) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.FindProjectCalls++
	if contextError := executionContext.Err(); contextError != nil {
		return platform.Project{}, platform.OperationError{Operation: platform.OperationFindProject, Cause: contextError}
	}
	if fake.FindProjectError != nil {
		return platform.Project{}, fake.FindProjectError
	}
	if project, found := fake.findProjectLocked(namespaceID, path); found {
		return project, nil
	}
	return platform.Project{}, platform.NotFoundError{Operation: platform.OperationFindProject, Resource: path}
}

func (fake *FakePlatform) findProjectLocked(namespaceID int, path string) (platform.Project, bool) {
	for _, project := range fake.projects {
		if project.Path != path {
			continue
		}
		if namespaceID == 0 && project.NamespaceKind == platform.NamespaceKindUser {
			return project, true
		}
		if namespaceID != 0 && project.NamespaceKind == platform.NamespaceKindGroup && project.NamespaceID == namespaceID {
			return project, true
		}
	}
	return platform.Project{}, false
}

func (fake *FakePlatform) newProjectLocked(id int, kind platform.NamespaceKind, namespaceID int, path string) platform.Project {
	var fullPath string
	switch kind {
	case platform.NamespaceKindUser:
		fullPath = fake.username + fakeFullPathSeparatorConstant + path
		namespaceID = 0
	default:
		fullPath = fake.fullPathLocked(namespaceID, path)
	}
	return platform.Project{
		ID:            id,
		Name:          path,
		Path:          path,
		FullPath:      fullPath,
		Visibility:    platform.VisibilityPrivate,
		NamespaceKind: kind,
		NamespaceID:   namespaceID,
		CloneLocator:  fmt.Sprintf(fakeCloneLocatorTemplateConstant, fake.host, fullPath),
	}
}

func (fake *FakePlatform) fullPathLocked(parentID int, path string) string {
	if parentID == 0 {
		return path
	}
	for _, namespace := range fake.namespaces {
		if namespace.ID == parentID {
			return namespace.FullPath + fakeFullPathSeparatorConstant + path
		}
	}
	return path
}

func paginate[T any](items []T, page platform.Page) []T {
	if page.Size <= 0 {
		return append([]T(nil), items...)
	}
	number := page.Number
	if number < 1 {
		number = 1
	}
	start := (number - 1) * page.Size
	if start >= len(items) {
		return nil
	}
	end := start + page.Size
	if end > len(items) {
		end = len(items)
	}
	return append([]T(nil), items[start:end]...)
}
