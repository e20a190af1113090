// Package gitsync reconciles a jobs directory with a remote Git
// repository by shelling out to the system git binary.
package gitsync

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cronsentinel/cronsentinel/internal/errs"
)

var sshShorthand = regexp.MustCompile(`^[\w.\-]+@[\w.\-]+:.+$`)

var allowedSchemes = map[string]bool{"http": true, "https": true, "git": true, "ssh": true}

// ValidateRepoURL requires the URL to parse and either use an allowed
// scheme or match the SSH shorthand "user@host:path".
func ValidateRepoURL(repoURL string) error {
	if sshShorthand.MatchString(repoURL) {
		return nil
	}
	u, err := url.Parse(repoURL)
	if err != nil || !allowedSchemes[u.Scheme] {
		return errs.New(errs.Validation, "invalid repository URL: %s", repoURL)
	}
	return nil
}

// ValidateJobsDir rejects any input form containing ".." as a path
// segment, before the path is expanded.
func ValidateJobsDir(dir string) error {
	for _, seg := range strings.Split(filepath.ToSlash(dir), "/") {
		if seg == ".." {
			return errs.New(errs.Validation, "jobs directory must not contain '..' segments: %s", dir)
		}
	}
	return nil
}

// Status is the repository status projection returned by health checks.
type Status struct {
	State          string `json:"status"`
	LastCommit     string `json:"last_commit,omitempty"`
	LastCommitDate string `json:"last_commit_date,omitempty"`
	Message        string `json:"message,omitempty"`
}

// MarshalJSON renders the bare string "not_cloned" when the repository
// hasn't been cloned yet, matching the health-check wire format; all
// other states marshal as the full status object.
func (s Status) MarshalJSON() ([]byte, error) {
	if s.State == "not_cloned" {
		return json.Marshal(s.State)
	}
	type alias Status
	return json.Marshal(alias(s))
}

// GitClient runs the git commands gitsync needs. *CommandClient is the
// production implementation; tests can substitute a fake.
type GitClient interface {
	Clone(ctx context.Context, repoURL, dir string) error
	Pull(ctx context.Context, dir string) error
	LastCommit(ctx context.Context, dir string) (sha, date string, err error)
}

// CommandClient shells out to the system "git" binary.
type CommandClient struct{}

func (CommandClient) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Clone performs "git clone --depth 1 repoURL dir".
func (c CommandClient) Clone(ctx context.Context, repoURL, dir string) error {
	out, err := exec.CommandContext(ctx, "git", "clone", "--depth", "1", repoURL, dir).CombinedOutput()
	if err != nil {
		return errs.Wrap(errs.Git, err, "Failed to sync repository: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// Pull performs "git pull --ff-only" inside dir.
func (c CommandClient) Pull(ctx context.Context, dir string) error {
	out, err := c.run(ctx, dir, "pull", "--ff-only")
	if err != nil {
		return errs.Wrap(errs.Git, err, "Failed to sync repository: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// LastCommit reads the short SHA and commit date of HEAD.
func (c CommandClient) LastCommit(ctx context.Context, dir string) (string, string, error) {
	out, err := c.run(ctx, dir, "log", "-1", "--format=%h|%cI")
	if err != nil {
		return "", "", errs.Wrap(errs.Git, err, "Failed to read repository status: %s", strings.TrimSpace(string(out)))
	}
	parts := strings.SplitN(strings.TrimSpace(string(out)), "|", 2)
	if len(parts) != 2 {
		return "", "", errs.New(errs.Git, "unexpected git log output")
	}
	return parts[0], parts[1], nil
}

// Syncer reconciles jobsDir with repoURL.
type Syncer struct {
	RepoURL string
	JobsDir string
	Client  GitClient
}

// New builds a Syncer after validating repoURL and jobsDir.
func New(repoURL, jobsDir string) (*Syncer, error) {
	if err := ValidateRepoURL(repoURL); err != nil {
		return nil, err
	}
	if err := ValidateJobsDir(jobsDir); err != nil {
		return nil, err
	}
	return &Syncer{RepoURL: repoURL, JobsDir: jobsDir, Client: CommandClient{}}, nil
}

// IsCloned reports whether JobsDir already contains a .git directory.
func (s *Syncer) IsCloned() bool {
	info, err := os.Stat(filepath.Join(s.JobsDir, ".git"))
	return err == nil && info.IsDir()
}

// Sync performs the clone-or-pull reconciliation: a fast-forward pull
// if jobs_dir/.git exists, otherwise any non-empty contents are removed
// and the repository is cloned fresh.
func (s *Syncer) Sync(ctx context.Context) error {
	if s.IsCloned() {
		return s.Client.Pull(ctx, s.JobsDir)
	}

	entries, err := os.ReadDir(s.JobsDir)
	if err == nil && len(entries) > 0 {
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(s.JobsDir, e.Name())); err != nil {
				return errs.Wrap(errs.Git, err, "Failed to sync repository: could not clear %s", s.JobsDir)
			}
		}
	}
	if err := os.MkdirAll(filepath.Dir(s.JobsDir), 0o755); err != nil {
		return errs.Wrap(errs.Git, err, "Failed to sync repository: could not prepare %s", s.JobsDir)
	}
	if err := os.RemoveAll(s.JobsDir); err != nil {
		return errs.Wrap(errs.Git, err, "Failed to sync repository: could not clear %s", s.JobsDir)
	}
	return s.Client.Clone(ctx, s.RepoURL, s.JobsDir)
}

// RepositoryStatus builds the health-check status projection.
func (s *Syncer) RepositoryStatus(ctx context.Context) Status {
	if !s.IsCloned() {
		return Status{State: "not_cloned"}
	}
	sha, date, err := s.Client.LastCommit(ctx, s.JobsDir)
	if err != nil {
		return Status{State: "error", Message: err.Error()}
	}
	return Status{State: "healthy", LastCommit: sha, LastCommitDate: date}
}

