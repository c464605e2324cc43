package migrate

import (
	"strconv"
	"sync"
)

// DefaultOwnerScopeKey is the registry scope of projects created in the authenticated user's namespace.
const DefaultOwnerScopeKey = "default-owner-namespace"

// IdentifierMapping pairs a source namespace identifier with its target counterpart.
type IdentifierMapping struct {
	OldID int `yaml:"old_id"`
	NewID int `yaml:"new_id"`
}

// IdentifierMap records source to target namespace identifiers in insertion order. Entries are never replaced.
type IdentifierMap struct {
	order  []int
	values map[int]int
}

// NewIdentifierMap returns an empty map.
func NewIdentifierMap() *IdentifierMap {
	return &IdentifierMap{values: make(map[int]int)}
}

// Lookup returns the target identifier recorded for oldID.
func (identifierMap *IdentifierMap) Lookup(oldID int) (int, bool) {
	newID, exists := identifierMap.values[oldID]
	return newID, exists
}

// Record stores oldID -> newID. It reports false and keeps the existing entry when oldID is already mapped.
func (identifierMap *IdentifierMap) Record(oldID int, newID int) bool {
	if _, exists := identifierMap.values[oldID]; exists {
		return false
	}
	identifierMap.values[oldID] = newID
	identifierMap.order = append(identifierMap.order, oldID)
	return true
}

// Len returns the number of entries.
func (identifierMap *IdentifierMap) Len() int {
	return len(identifierMap.order)
}

// Entries returns the mappings in insertion order.
func (identifierMap *IdentifierMap) Entries() []IdentifierMapping {
	entries := make([]IdentifierMapping, 0, len(identifierMap.order))
	for _, oldID := range identifierMap.order {
		entries = append(entries, IdentifierMapping{OldID: oldID, NewID: identifierMap.values[oldID]})
	}
	return entries
}

// CreatedPathRegistry remembers which project paths were claimed in each target scope during a run.
type CreatedPathRegistry struct {
	scopes map[string]map[string]struct{}
}

// NewCreatedPathRegistry returns an empty registry.
func NewCreatedPathRegistry() *CreatedPathRegistry {
	return &CreatedPathRegistry{scopes: make(map[string]map[string]struct{})}
}

// ScopeKey returns the registry scope for a target namespace; zero selects the default owner namespace.
func ScopeKey(namespaceID int) string {
	if namespaceID == 0 {
		return DefaultOwnerScopeKey
	}
	return strconv.Itoa(namespaceID)
}

// Contains reports whether path was claimed in scope.
func (registry *CreatedPathRegistry) Contains(scope string, path string) bool {
	paths, exists := registry.scopes[scope]
	if !exists {
		return false
	}
	_, claimed := paths[path]
	return claimed
}

// Add claims path in scope.
func (registry *CreatedPathRegistry) Add(scope string, path string) {
	paths, exists := registry.scopes[scope]
	if !exists {
		paths = make(map[string]struct{})
		registry.scopes[scope] = paths
	}
	paths[path] = struct{}{}
}

// FailureRecord describes a namespace or project that could not be migrated.
type FailureRecord struct {
	ID       int    `yaml:"id"`
	FullPath string `yaml:"full_path"`
	Reason   string `yaml:"reason"`
}

// RunContext carries the state of one migration run. The map and registry are owned by the run goroutine.
type RunContext struct {
	RunID        string
	Identifiers  *IdentifierMap
	CreatedPaths *CreatedPathRegistry

	failureMutex      sync.Mutex
	namespaceFailures []FailureRecord
	projectFailures   []FailureRecord
}

// NewRunContext returns a fresh context for runID.
func NewRunContext(runID string) *RunContext {
	return &RunContext{
		RunID:        runID,
		Identifiers:  NewIdentifierMap(),
		CreatedPaths: NewCreatedPathRegistry(),
	}
}

// RecordNamespaceFailure appends a failed namespace to the run record.
func (runContext *RunContext) RecordNamespaceFailure(record FailureRecord) {
	runContext.failureMutex.Lock()
	defer runContext.failureMutex.Unlock()
	runContext.namespaceFailures = append(runContext.namespaceFailures, record)
}

// RecordProjectFailure appends a failed project to the run record.
func (runContext *RunContext) RecordProjectFailure(record FailureRecord) {
	runContext.failureMutex.Lock()
	defer runContext.failureMutex.Unlock()
	runContext.projectFailures = append(runContext.projectFailures, record)
}

// NamespaceFailures returns a copy of the failed namespaces.
func (runContext *RunContext) NamespaceFailures() []FailureRecord {
	runContext.failureMutex.Lock()
	defer runContext.failureMutex.Unlock()
	return append([]FailureRecord(nil), runContext.namespaceFailures...)
}

// ProjectFailures returns a copy of the failed projects.
func (runContext *RunContext) ProjectFailures() []FailureRecord {
	runContext.failureMutex.Lock()
	defer runContext.failureMutex.Unlock()
	return append([]FailureRecord(nil), runContext.projectFailures...)
}
