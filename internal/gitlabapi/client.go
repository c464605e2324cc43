package gitlabapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/xanzy/go-gitlab"
	"go.uber.org/zap"

	"github.com/temirov/glmigrate/internal/platform"
)

const (
	countPageSizeConstant                = 1
	searchPageSizeConstant               = 100
	firstPageNumberConstant              = 1
	logMessageAuthenticatedConstant      = "Authenticated with GitLab instance"
	logMessageNamespaceCreatedConstant   = "Created namespace"
	logMessageProjectCreatedConstant     = "Created project"
	logMessageLocatorUnavailableConstant = "Unable to build clone locator for project"
	logFieldRoleConstant                 = "role"
	logFieldBaseURLConstant              = "base_url"
	logFieldUsernameConstant             = "username"
	logFieldNamespaceIDConstant          = "namespace_id"
	logFieldFullPathConstant             = "full_path"
	logFieldProjectIDConstant            = "project_id"
)

var (
	// ErrBaseURLNotConfigured indicates the client was constructed without an instance URL.
	ErrBaseURLNotConfigured = errors.New("gitlab base URL not configured")
	// ErrTokenNotConfigured indicates the client was constructed without an access token.
	ErrTokenNotConfigured   = errors.New("gitlab access token not configured")
)

// ClientDependencies captures optional collaborators for the client.
type ClientDependencies struct {
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client implements platform.Client on top of the GitLab REST API.
type Client struct {
	api             *gitlab.Client
	logger          *zap.Logger
	role            string
	baseURL         string
	includeArchived bool
	locatorBuilder  cloneLocatorBuilder

	identityMutex sync.Mutex
	identity      *platform.Identity
}

// NewClient constructs a GitLab client. Retries are disabled so every failure surfaces to the caller once.
func NewClient(options ClientOptions, dependencies ClientDependencies) (*Client, error) {
	baseURL := strings.TrimSpace(options.BaseURL)
	if len(baseURL) == 0 {
		return nil, ErrBaseURLNotConfigured
	}
	token := strings.TrimSpace(options.Token)
	if len(token) == 0 {
		return nil, ErrTokenNotConfigured
	}

	clientOptions := []gitlab.ClientOptionFunc{
		gitlab.WithBaseURL(baseURL),
		gitlab.WithoutRetries(),
	}
	if dependencies.HTTPClient != nil {
		clientOptions = append(clientOptions, gitlab.WithHTTPClient(dependencies.HTTPClient))
	}

	api, clientError := gitlab.NewClient(token, clientOptions...)
	if clientError != nil {
		return nil, clientError
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sshPort := options.SSHPort
	if sshPort <= 0 {
		sshPort = defaultSSHPortConstant
	}

	return &Client{
		api:             api,
		logger:          logger,
		role:            options.Role,
		baseURL:         baseURL,
		includeArchived: options.IncludeArchived,
		locatorBuilder: cloneLocatorBuilder{
			protocol: options.CloneProtocol,
			baseURL:  baseURL,
			token:    token,
			sshHost:  options.SSHHost,
			sshPort:  sshPort,
		},
	}, nil
}

// Authenticate verifies the token and caches the identity of the current user.
func (client *Client) Authenticate(executionContext context.Context) (platform.Identity, error) {
	user, _, userError := client.api.Users.CurrentUser(gitlab.WithContext(executionContext))
	if userError != nil {
		return platform.Identity{}, translateError(platform.OperationAuthenticate, "", userError)
	}

	identity := platform.Identity{ID: user.ID, Username: user.Username}
	client.identityMutex.Lock()
	client.identity = &identity
	client.identityMutex.Unlock()

	client.logger.Info(
		logMessageAuthenticatedConstant,
		zap.String(logFieldRoleConstant, client.role),
		zap.String(logFieldBaseURLConstant, client.baseURL),
		zap.String(logFieldUsernameConstant, identity.Username),
	)
	return identity, nil
}

// ListNamespaces lists one page of top-level groups when parentID is zero, or of the parent's direct subgroups otherwise.
func (client *Client) ListNamespaces(executionContext context.Context, parentID int, page platform.Page) ([]platform.Namespace, error) {
	listOptions := gitlab.ListOptions{Page: page.Number, PerPage: page.Size}

	var groups []*gitlab.Group
	var listError error
	if parentID == 0 {
		groups, _, listError = client.api.Groups.ListGroups(&gitlab.ListGroupsOptions{
			ListOptions:  listOptions,
			TopLevelOnly: gitlab.Ptr(true),
		}, gitlab.WithContext(executionContext))
	} else {
		groups, _, listError = client.api.Groups.ListSubGroups(parentID, &gitlab.ListSubGroupsOptions{
			ListOptions: listOptions,
		}, gitlab.WithContext(executionContext))
	}
	if listError != nil {
		return nil, translateError(platform.OperationListNamespaces, "", listError)
	}
	return convertGroups(groups), nil
}

// SearchNamespaces returns every group whose path or name matches the query, reading all result pages. Matching is fuzzy; callers filter exactly.
func (client *Client) SearchNamespaces(executionContext context.Context, path string) ([]platform.Namespace, error) {
	var namespaces []platform.Namespace
	for pageNumber := firstPageNumberConstant; ; pageNumber++ {
		groups, _, searchError := client.api.Groups.ListGroups(&gitlab.ListGroupsOptions{
			ListOptions: gitlab.ListOptions{Page: pageNumber, PerPage: searchPageSizeConstant},
			Search:      gitlab.Ptr(path),
		}, gitlab.WithContext(executionContext))
		if searchError != nil {
			return nil, translateError(platform.OperationSearchNamespaces, path, searchError)
		}
		namespaces = append(namespaces, convertGroups(groups)...)
		if len(groups) < searchPageSizeConstant {
			return namespaces, nil
		}
	}
}

// ListProjects lists one page of projects visible to the token. Archived projects are excluded unless configured.
func (client *Client) ListProjects(executionContext context.Context, page platform.Page) ([]platform.Project, error) {
	listOptions := &gitlab.ListProjectsOptions{
		ListOptions: gitlab.ListOptions{Page: page.Number, PerPage: page.Size},
	}
	if !client.includeArchived {
		listOptions.Archived = gitlab.Ptr(false)
	}

	projects, _, listError := client.api.Projects.ListProjects(listOptions, gitlab.WithContext(executionContext))
	if listError != nil {
		return nil, translateError(platform.OperationListProjects, "", listError)
	}
	return client.convertProjects(projects), nil
}

// CountNamespaces reports the total number of groups as announced by the pagination headers.
func (client *Client) CountNamespaces(executionContext context.Context) (int, error) {
	_, response, countError := client.api.Groups.ListGroups(&gitlab.ListGroupsOptions{
		ListOptions: gitlab.ListOptions{Page: firstPageNumberConstant, PerPage: countPageSizeConstant},
	}, gitlab.WithContext(executionContext))
	if countError != nil {
		return 0, translateError(platform.OperationCountNamespaces, "", countError)
	}
	return response.TotalItems, nil
}

// CountProjects reports the total number of listable projects as announced by the pagination headers.
func (client *Client) CountProjects(executionContext context.Context) (int, error) {
	listOptions := &gitlab.ListProjectsOptions{
		ListOptions: gitlab.ListOptions{Page: firstPageNumberConstant, PerPage: countPageSizeConstant},
	}
	if !client.includeArchived {
		listOptions.Archived = gitlab.Ptr(false)
	}
	_, response, countError := client.api.Projects.ListProjects(listOptions, gitlab.WithContext(executionContext))
	if countError != nil {
		return 0, translateError(platform.OperationCountProjects, "", countError)
	}
	return response.TotalItems, nil
}

// CreateNamespace creates a group, or a subgroup when spec.ParentID is set.
func (client *Client) CreateNamespace(executionContext context.Context, spec platform.NamespaceSpec) (platform.Namespace, error) {
	createOptions := &gitlab.CreateGroupOptions{
		Name:        gitlab.Ptr(spec.Name),
		Path:        gitlab.Ptr(spec.Path),
		Description: gitlab.Ptr(spec.Description),
		Visibility:  gitlab.Ptr(toVisibilityValue(spec.Visibility)),
	}
	if spec.ParentID != 0 {
		createOptions.ParentID = gitlab.Ptr(spec.ParentID)
	}

	group, _, createError := client.api.Groups.CreateGroup(createOptions, gitlab.WithContext(executionContext))
	if createError != nil {
		return platform.Namespace{}, translateError(platform.OperationCreateNamespace, spec.Path, createError)
	}

	namespace := convertGroup(group)
	client.logger.Debug(
		logMessageNamespaceCreatedConstant,
		zap.String(logFieldRoleConstant, client.role),
		zap.Int(logFieldNamespaceIDConstant, namespace.ID),
		zap.String(logFieldFullPathConstant, namespace.FullPath),
	)
	return namespace, nil
}

// CreateProject creates a project in spec.NamespaceID, or in the authenticated user's namespace when it is zero.
func (client *Client) CreateProject(executionContext context.Context, spec platform.ProjectSpec) (platform.Project, error) {
	createOptions := &gitlab.CreateProjectOptions{
		Name:        gitlab.Ptr(spec.Name),
		Path:        gitlab.Ptr(spec.Path),
		Description: gitlab.Ptr(spec.Description),
		Visibility:  gitlab.Ptr(toVisibilityValue(spec.Visibility)),
	}
	if spec.NamespaceID != 0 {
		createOptions.NamespaceID = gitlab.Ptr(spec.NamespaceID)
	}

	project, _, createError := client.api.Projects.CreateProject(createOptions, gitlab.WithContext(executionContext))
	if createError != nil {
		return platform.Project{}, translateError(platform.OperationCreateProject, spec.Path, createError)
	}

	converted, conversionError := client.convertProject(project)
	if conversionError != nil {
		return platform.Project{}, platform.OperationError{Operation: platform.OperationCreateProject, Cause: conversionError}
	}
	client.logger.Debug(
		logMessageProjectCreatedConstant,
		zap.String(logFieldRoleConstant, client.role),
		zap.Int(logFieldProjectIDConstant, converted.ID),
		zap.String(logFieldFullPathConstant, converted.FullPath),
	)
	return converted, nil
}

// FindProject locates a project by exact path inside a group, or inside the authenticated user's namespace when namespaceID is zero.
// Search results are read page by page until the exact path turns up or the results run out.
func (client *Client) FindProject(executionContext context.Context, namespaceID int, path string) (platform.Project, error) {
	var ownerID int
	if namespaceID == 0 {
		identity, identityError := client.currentIdentity(executionContext)
		if identityError != nil {
			return platform.Project{}, translateError(platform.OperationFindProject, path, identityError)
		}
		ownerID = identity.ID
	}

	for pageNumber := firstPageNumberConstant; ; pageNumber++ {
		projects, searchError := client.searchProjects(executionContext, namespaceID, ownerID, path, pageNumber)
		if searchError != nil {
			return platform.Project{}, translateError(platform.OperationFindProject, path, searchError)
		}

		for _, project := range projects {
			if project == nil || project.Path != path {
				continue
			}
			if namespaceID != 0 && (project.Namespace == nil || project.Namespace.ID != namespaceID) {
				continue
			}
			converted, conversionError := client.convertProject(project)
			if conversionError != nil {
				return platform.Project{}, platform.OperationError{Operation: platform.OperationFindProject, Cause: conversionError}
			}
			return converted, nil
		}

		if len(projects) < searchPageSizeConstant {
			return platform.Project{}, platform.NotFoundError{Operation: platform.OperationFindProject, Resource: path}
		}
	}
}

func (client *Client) searchProjects(executionContext context.Context, namespaceID int, ownerID int, path string, pageNumber int) ([]*gitlab.Project, error) {
	listOptions := gitlab.ListOptions{Page: pageNumber, PerPage: searchPageSizeConstant}
	if namespaceID != 0 {
		projects, _, searchError := client.api.Groups.ListGroupProjects(namespaceID, &gitlab.ListGroupProjectsOptions{
			ListOptions: listOptions,
			Search:      gitlab.Ptr(path),
		}, gitlab.WithContext(executionContext))
		return projects, searchError
	}
	projects, _, searchError := client.api.Projects.ListUserProjects(ownerID, &gitlab.ListProjectsOptions{
		ListOptions: listOptions,
		Search:      gitlab.Ptr(path),
	}, gitlab.WithContext(executionContext))
	return projects, searchError
}

func (client *Client) currentIdentity(executionContext context.Context) (platform.Identity, error) {
	client.identityMutex.Lock()
	cachedIdentity := client.identity
	client.identityMutex.Unlock()
	if cachedIdentity != nil {
		return *cachedIdentity, nil
	}

	user, _, userError := client.api.Users.CurrentUser(gitlab.WithContext(executionContext))
	if userError != nil {
		return platform.Identity{}, userError
	}
	identity := platform.Identity{ID: user.ID, Username: user.Username}
	client.identityMutex.Lock()
	client.identity = &identity
	client.identityMutex.Unlock()
	return identity, nil
}

// convertProjects keeps a project whose clone locator cannot be built, with an empty locator, so the page length stays intact.
func (client *Client) convertProjects(projects []*gitlab.Project) []platform.Project {
	converted := make([]platform.Project, 0, len(projects))
	for _, project := range projects {
		if project == nil {
			continue
		}
		convertedProject, conversionError := client.convertProject(project)
		if conversionError != nil {
			client.logger.Warn(
				logMessageLocatorUnavailableConstant,
				zap.String(logFieldRoleConstant, client.role),
				zap.Int(logFieldProjectIDConstant, project.ID),
				zap.String(logFieldFullPathConstant, project.PathWithNamespace),
				zap.Error(conversionError),
			)
			convertedProject = describeProject(project)
		}
		converted = append(converted, convertedProject)
	}
	return converted
}

func (client *Client) convertProject(project *gitlab.Project) (platform.Project, error) {
	cloneLocator, locatorError := client.locatorBuilder.build(project.HTTPURLToRepo, project.PathWithNamespace)
	if locatorError != nil {
		return platform.Project{}, locatorError
	}

	converted := describeProject(project)
	converted.CloneLocator = cloneLocator
	return converted, nil
}

func describeProject(project *gitlab.Project) platform.Project {
	described := platform.Project{
		ID:              project.ID,
		Name:            project.Name,
		Path:            project.Path,
		FullPath:        project.PathWithNamespace,
		Description:     project.Description,
		Visibility:      platform.NormalizeVisibility(string(project.Visibility)),
		EmptyRepository: project.EmptyRepo,
	}
	if project.Namespace != nil {
		described.NamespaceKind = platform.NamespaceKind(project.Namespace.Kind)
		described.NamespaceID = project.Namespace.ID
	}
	return described
}

func convertGroups(groups []*gitlab.Group) []platform.Namespace {
	namespaces := make([]platform.Namespace, 0, len(groups))
	for _, group := range groups {
		if group == nil {
			continue
		}
		namespaces = append(namespaces, convertGroup(group))
	}
	return namespaces
}

func convertGroup(group *gitlab.Group) platform.Namespace {
	return platform.Namespace{
		ID:          group.ID,
		Name:        group.Name,
		Path:        group.Path,
		FullPath:    group.FullPath,
		Description: group.Description,
		Visibility:  platform.NormalizeVisibility(string(group.Visibility)),
		ParentID:    group.ParentID,
	}
}

func toVisibilityValue(visibility platform.Visibility) gitlab.VisibilityValue {
	switch visibility {
	case platform.VisibilityPublic:
		return gitlab.PublicVisibility
	case platform.VisibilityInternal:
		return gitlab.InternalVisibility
	default:
		return gitlab.PrivateVisibility
	}
}
