package temporal

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CommitTimestamp shells out to `git show -s --format=%ct <ref>` to resolve
// a commit reference to its author timestamp — the external git-commit
// lookup step of the since-anchor resolution chain.
func CommitTimestamp(ctx context.Context, repoRoot, ref string) (time.Time, error) {
	cmd := exec.CommandContext(ctx, "git", "show", "-s", "--format=%ct", ref)
	cmd.Dir = repoRoot

	output, err := cmd.Output()
	if err != nil {
		return time.Time{}, fmt.Errorf("git show %s failed: %w", ref, err)
	}

	epochSeconds, err := strconv.ParseInt(strings.TrimSpace(string(output)), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unexpected git show output for %s: %w", ref, err)
	}

	return time.Unix(epochSeconds, 0).UTC(), nil
}
