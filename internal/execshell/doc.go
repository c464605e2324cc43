// Package execshell provides structured helpers for invoking external tools.
//
// It wraps os/exec with logging via ShellExecutor, exposes OSCommandRunner for
// default process execution, and redacts credentials embedded in clone URLs
// before any command, output, or error reaches a log line.
package execshell
