// Package gitlabapi adapts the GitLab REST API, through go-gitlab, to the
// platform.Client contract. It builds credentialed clone locators for every
// listed project and classifies "path already taken" responses as conflicts.
package gitlabapi
