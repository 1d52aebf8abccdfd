// Package git wraps the git command line for cloning and inspecting
// repositories under review.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// CommitInfo describes the HEAD commit of a repository.
type CommitInfo struct {
	Hash    string
	Subject string
	Date    time.Time
}

// CloneOptions controls a clone.
type CloneOptions struct {
	// Branch to check out; empty means the remote's default.
	Branch string
	// Depth of history; 0 or less means full history.
	Depth int
}

// Client defines the git operations the review pipeline needs.
type Client interface {
	Clone(ctx context.Context, url, dest string, opts CloneOptions) error
	CurrentBranch(path string) (string, error)
	LastCommit(path string) (CommitInfo, error)
}

// RealClient implements Client using real git commands.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.Command("git", fullArgs...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Clone clones url into dest, which must not exist or be empty.
func (c *RealClient) Clone(ctx context.Context, url, dest string, opts CloneOptions) error {
	args := []string{"clone", "--quiet"}
	if opts.Depth > 0 {
		args = append(args, "--depth", fmt.Sprint(opts.Depth))
	}
	if opts.Branch != "" {
		args = append(args, "--branch", opts.Branch)
	}
	args = append(args, "--", url, dest)

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("git clone %s: %w", url, ctx.Err())
		}
		return fmt.Errorf("git clone %s: %s", url, strings.TrimSpace(string(out)))
	}
	return nil
}

func (c *RealClient) CurrentBranch(path string) (string, error) {
	return gitCmd(path, "rev-parse", "--abbrev-ref", "HEAD")
}

func (c *RealClient) LastCommit(path string) (CommitInfo, error) {
	out, err := gitCmd(path, "log", "-1", "--format=%h%x00%aI%x00%s")
	if err != nil {
		return CommitInfo{}, err
	}
	parts := strings.SplitN(out, "\x00", 3)
	if len(parts) != 3 {
		return CommitInfo{}, fmt.Errorf("unexpected git log output: %q", out)
	}
	date, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return CommitInfo{}, fmt.Errorf("parse commit date: %w", err)
	}
	return CommitInfo{Hash: parts[0], Date: date, Subject: parts[2]}, nil
}

var remotePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://github\.com/`),
	regexp.MustCompile(`^https?://gitlab\.com/`),
	regexp.MustCompile(`^https?://bitbucket\.org/`),
	regexp.MustCompile(`^git@github\.com:`),
	regexp.MustCompile(`^git@gitlab\.com:`),
	regexp.MustCompile(`^git@bitbucket\.org:`),
	regexp.MustCompile(`^(https?|ssh|git)://.+`),
	regexp.MustCompile(`\.git/?$`),
}

// IsRemote reports whether locator looks like a git remote rather than a
// local path. Absolute and dot-relative paths are always local.
func IsRemote(locator string) bool {
	locator = strings.TrimSpace(locator)
	if locator == "" || strings.HasPrefix(locator, "/") || strings.HasPrefix(locator, ".") || strings.HasPrefix(locator, "~") {
		return false
	}
	for _, re := range remotePatterns {
		if re.MatchString(locator) {
			return true
		}
	}
	return false
}

// RepoName extracts the repository name from a remote URL.
//
//	https://github.com/user/my-repo.git -> my-repo
//	git@github.com:user/my-repo.git     -> my-repo
func RepoName(remoteURL string) string {
	url := strings.TrimRight(strings.TrimSpace(remoteURL), "/")
	url = strings.TrimSuffix(url, ".git")
	name := url[strings.LastIndex(url, "/")+1:]
	if i := strings.LastIndex(name, ":"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "unknown_repo"
	}
	return name
}
