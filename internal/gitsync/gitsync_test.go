package gitsync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cronsentinel/cronsentinel/internal/errs"
)

func TestValidateRepoURL(t *testing.T) {
	valid := []string{
		"https://github.com/example/jobs.git",
		"http://example.com/jobs.git",
		"git://example.com/jobs.git",
		"ssh://git@example.com/jobs.git",
		"git@github.com:example/jobs.git",
	}
	for _, u := range valid {
		assert.NoError(t, ValidateRepoURL(u), u)
	}

	invalid := []string{"", "not-a-url", "ftp://example.com/jobs.git"}
	for _, u := range invalid {
		assert.Error(t, ValidateRepoURL(u), u)
	}
}

func TestValidateJobsDir(t *testing.T) {
	assert.NoError(t, ValidateJobsDir("./jobs"))
	assert.NoError(t, ValidateJobsDir("jobs"))
	err := ValidateJobsDir("../jobs")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Validation))
}

type fakeClient struct {
	cloneErr  error
	pullErr   error
	commitErr error
	sha       string
	date      string
	cloned    bool
	pulled    bool
}

func (f *fakeClient) Clone(ctx context.Context, repoURL, dir string) error {
	f.cloned = true
	if f.cloneErr != nil {
		return f.cloneErr
	}
	return os.MkdirAll(filepath.Join(dir, ".git"), 0o755)
}

func (f *fakeClient) Pull(ctx context.Context, dir string) error {
	f.pulled = true
	return f.pullErr
}

func (f *fakeClient) LastCommit(ctx context.Context, dir string) (string, string, error) {
	if f.commitErr != nil {
		return "", "", f.commitErr
	}
	return f.sha, f.date, nil
}

func TestSync_ClonesWhenNotCloned(t *testing.T) {
	dir := t.TempDir()
	s := &Syncer{RepoURL: "https://example.com/jobs.git", JobsDir: filepath.Join(dir, "jobs"), Client: &fakeClient{}}

	require.NoError(t, os.MkdirAll(s.JobsDir, 0o755))
	fc := s.Client.(*fakeClient)
	require.NoError(t, s.Sync(context.Background()))
	assert.True(t, fc.cloned)
	assert.False(t, fc.pulled)
}

func TestSync_PullsWhenAlreadyCloned(t *testing.T) {
	dir := t.TempDir()
	jobsDir := filepath.Join(dir, "jobs")
	require.NoError(t, os.MkdirAll(filepath.Join(jobsDir, ".git"), 0o755))

	fc := &fakeClient{}
	s := &Syncer{RepoURL: "https://example.com/jobs.git", JobsDir: jobsDir, Client: fc}

	require.NoError(t, s.Sync(context.Background()))
	assert.True(t, fc.pulled)
	assert.False(t, fc.cloned)
}

func TestRepositoryStatus_NotCloned(t *testing.T) {
	dir := t.TempDir()
	s := &Syncer{JobsDir: filepath.Join(dir, "jobs"), Client: &fakeClient{}}

	status := s.RepositoryStatus(context.Background())
	assert.Equal(t, "not_cloned", status.State)
}

func TestRepositoryStatus_Healthy(t *testing.T) {
	dir := t.TempDir()
	jobsDir := filepath.Join(dir, "jobs")
	require.NoError(t, os.MkdirAll(filepath.Join(jobsDir, ".git"), 0o755))

	fc := &fakeClient{sha: "abc1234", date: "2026-01-01T00:00:00Z"}
	s := &Syncer{JobsDir: jobsDir, Client: fc}

	status := s.RepositoryStatus(context.Background())
	assert.Equal(t, "healthy", status.State)
	assert.Equal(t, "abc1234", status.LastCommit)
}

func TestRepositoryStatus_Error(t *testing.T) {
	dir := t.TempDir()
	jobsDir := filepath.Join(dir, "jobs")
	require.NoError(t, os.MkdirAll(filepath.Join(jobsDir, ".git"), 0o755))

	fc := &fakeClient{commitErr: errs.New(errs.Git, "boom")}
	s := &Syncer{JobsDir: jobsDir, Client: fc}

	status := s.RepositoryStatus(context.Background())
	assert.Equal(t, "error", status.State)
	assert.NotEmpty(t, status.Message)
}

func TestNew_RejectsInvalidURL(t *testing.T) {
	_, err := New("ftp://bad", "./jobs")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Validation))
}
