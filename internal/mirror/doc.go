// Package mirror transfers complete repository histories between GitLab
// instances with git clone --mirror and git push --mirror.
//
// Each transfer runs in its own scratch workspace that is removed afterwards.
// Push failures caused only by server-managed hidden references are
// classified as acceptable; every other failure is final and never retried.
package mirror
