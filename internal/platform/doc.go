// Package platform defines the namespace and project model shared by the
// source and target GitLab instances, the Client contract the migration
// drives, and the typed errors that separate path conflicts and missing
// resources from every other API failure.
package platform
