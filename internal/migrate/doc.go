// Package migrate copies a GitLab group hierarchy and its projects from a source
// instance to a target instance.
//
// A run first walks the source groups depth first, creating or reusing each group on
// the target and recording the old to new identifier mapping. It then lists every
// source project, recreates it beneath its migrated group (or in the target user's
// namespace for personal projects) and mirrors the repository. Progress is reported
// through a jobstate.Tracker; Launcher runs at most one migration in the background
// for the HTTP status API.
package migrate
