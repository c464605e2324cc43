// Package credentials resolves GitLab access tokens from literal values,
// environment variables, or files.
package credentials
