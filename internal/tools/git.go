package tools

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/MEKXH/taskgate/internal/dispatch"
	"github.com/MEKXH/taskgate/internal/policy"
	"github.com/cloudwego/eino/schema"
)

const defaultRepoDir = "repo"

// remoteSchemes are the URL schemes clone-and-commit accepts. Local paths and
// file:// URLs would let the clone copy any repository on the host into the
// sandbox.
var remoteSchemes = map[string]bool{
	"https": true,
	"http":  true,
	"ssh":   true,
	"git":   true,
}

// scpRepoRe matches the scp-like form [user@]host:path. A slash before the
// first colon makes git read it as a local path, so the host part has none.
var scpRepoRe = regexp.MustCompile(`^(?:[A-Za-z0-9._-]+@)?[A-Za-z0-9][A-Za-z0-9.-]+:[^:].*$`)

// checkRepoURL accepts remote repository addresses only.
func checkRepoURL(raw string) error {
	switch {
	case strings.TrimSpace(raw) == "":
		return fmt.Errorf("repo_url is empty")
	case strings.HasPrefix(raw, "-"):
		return fmt.Errorf("repo_url must not start with '-'")
	case strings.Contains(raw, "::"):
		return fmt.Errorf("repo_url must not name a transport helper")
	}
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("repo_url: %w", err)
		}
		if !remoteSchemes[strings.ToLower(u.Scheme)] {
			return fmt.Errorf("repo_url scheme %q is not allowed; use https, http, ssh or git", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("repo_url has no host")
		}
		return nil
	}
	if scpRepoRe.MatchString(raw) {
		return nil
	}
	return fmt.Errorf("repo_url must be a remote URL, not a local path")
}

// CommitResult is the payload of clone-and-commit.
type CommitResult struct {
	Path   string `json:"path"`
	Cloned bool   `json:"cloned"`
	Commit string `json:"commit"`
}

type gitImpl struct {
	git GitRunner
}

// NewCloneAndCommit clones a repository into a fixed directory under the
// sandbox (unless it is already there), stages everything and commits.
func NewCloneAndCommit(git GitRunner, repoDir string) *dispatch.Spec {
	if strings.TrimSpace(repoDir) == "" {
		repoDir = defaultRepoDir
	}
	impl := &gitImpl{git: git}
	return &dispatch.Spec{
		Name: CloneAndCommit,
		Desc: "Clone a git repository into the sandbox repo directory and commit all changes",
		Params: map[string]*schema.ParameterInfo{
			"repo_url":       requiredString("Repository URL to clone"),
			"commit_message": requiredString("Message for the commit"),
		},
		Paths: []dispatch.PathParam{
			{Param: "repo", Intent: policy.IntentWriteIdempotent, Fixed: repoDir},
		},
		Validate: func(p dispatch.Params) error {
			return checkRepoURL(p.String("repo_url"))
		},
		Perform: impl.perform,
	}
}

func (g *gitImpl) perform(ctx context.Context, call *dispatch.Call) (any, error) {
	repo := call.Path("repo")
	res := &CommitResult{Path: repo}

	info, err := os.Stat(repo)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(repo), 0o755); err != nil {
			return nil, dispatch.Failf(err, "clone")
		}
		if _, err := g.git.Git(ctx, "", "clone", "--", call.Params.String("repo_url"), repo); err != nil {
			return nil, dispatch.Failf(err, "clone")
		}
		res.Cloned = true
	case err != nil:
		return nil, dispatch.Failf(err, "stat %s", repo)
	case !info.IsDir():
		return nil, dispatch.Failf(nil, "%s is not a directory", repo)
	default:
		if _, err := os.Stat(filepath.Join(repo, ".git")); err != nil {
			return nil, dispatch.Failf(err, "%s exists but is not a git repository", repo)
		}
	}

	if _, err := g.git.Git(ctx, "", "-C", repo, "add", "."); err != nil {
		return nil, dispatch.Failf(err, "add")
	}
	if _, err := g.git.Git(ctx, "", "-C", repo, "commit", "-m", call.Params.String("commit_message")); err != nil {
		return nil, dispatch.Failf(err, "commit")
	}
	head, err := g.git.Git(ctx, "", "-C", repo, "rev-parse", "HEAD")
	if err != nil {
		return nil, dispatch.Failf(err, "rev-parse")
	}
	res.Commit = strings.TrimSpace(head)
	return res, nil
}
