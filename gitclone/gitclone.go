// Package gitclone shells out to the system git binary to fetch a
// repository for a deploy attempt, grounded directly on the teacher's
// build2/git_clone.go shallow-clone
// helper. The native binary is used instead of a pure-Go implementation
// (e.g. go-git) to avoid pulling in its large transitive dependency tree for
// a fire-and-forget, one-shot operation — the same tradeoff the teacher's
// comment documents.
package gitclone

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// Clone performs a shallow, single-branch clone of repoURL at branch into
// destinationDir, which must not already exist. Combined stdout/stderr from
// the git process is written to logWriter as it is produced.
func Clone(ctx context.Context, repoURL, branch, destinationDir string, logWriter io.Writer) error {
	if branch == "" {
		branch = "main"
	}

	cmd := exec.CommandContext(ctx, "git", "clone",
		"--depth", "1",
		"--single-branch",
		"--branch", branch,
		repoURL,
		destinationDir,
	)
	cmd.Stdout = logWriter
	cmd.Stderr = logWriter

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git clone %q (branch %q) failed: %w", repoURL, branch, err)
	}
	return nil
}
