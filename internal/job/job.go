// Package job discovers, validates, and builds executable descriptors for
// job directories found in the synchronized working tree. A job directory
// is treated as untrusted input: its config.yml is scanned for unsafe
// YAML type tags before parsing, and its execute.rb is scanned for a
// small blacklist of dangerous constructs before scheduling.
package job

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cronsentinel/cronsentinel/internal/errs"
)

// DefaultTimeoutSeconds is used when config.yml omits "timeout".
const DefaultTimeoutSeconds = 300

const (
	configFileName     = "config.yml"
	executableFileName = "execute.rb"
	scanWindowBytes    = 1024
)

// forbiddenSubstrings is a shallow, deliberately documented-insufficient
// blacklist: it catches the obvious shell-out constructs but is not a
// substitute for sandboxing the interpreter itself.
var forbiddenSubstrings = []string{"`", "system(", "exec("}

// Secrets is the minimal resolver the loader needs to resolve a job's
// environment; *secrets.Store satisfies it.
type Secrets interface {
	Resolve(mapping map[string]string) (map[string]string, error)
}

// Warner receives a side-channel warning when environment resolution
// degrades instead of failing the job outright.
type Warner interface {
	Warn(msg string)
}

// WarnFunc adapts a plain function to Warner.
type WarnFunc func(string)

// Warn implements Warner.
func (f WarnFunc) Warn(msg string) { f(msg) }

// Descriptor is the immutable, loader-produced description of one
// schedulable job.
type Descriptor struct {
	Name           string
	Path           string
	Schedule       string
	Description    string
	TimeoutSeconds int
	Environment    map[string]string // name -> value expression, unresolved
}

// Load builds a Descriptor from dir, whose base name becomes the job's
// identifier: it validates the name, confirms the required files are
// present, runs the textual YAML-safety prescan, parses config.yml with
// a strict/safe decoder, validates its shape, and runs the executable's
// shallow safety scan.
func Load(dir string) (*Descriptor, error) {
	name := filepath.Base(dir)
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, err, "cannot resolve job path")
	}
	info, err := os.Stat(absPath)
	if err != nil || !info.IsDir() {
		return nil, errs.New(errs.Configuration, "job path is not a directory: %s", absPath)
	}

	configPath := filepath.Join(absPath, configFileName)
	execPath := filepath.Join(absPath, executableFileName)

	rawConfig, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "cannot read %s", configFileName)
	}

	if err := scanYAMLSafety(rawConfig); err != nil {
		return nil, err
	}

	parsed, err := parseConfig(rawConfig)
	if err != nil {
		return nil, err
	}
	if err := validateConfig(parsed); err != nil {
		return nil, err
	}

	if err := scanExecutableSafety(execPath); err != nil {
		return nil, err
	}

	timeout := DefaultTimeoutSeconds
	if parsed.Timeout != nil {
		timeout = *parsed.Timeout
	}

	return &Descriptor{
		Name:           name,
		Path:           absPath,
		Schedule:       parsed.Schedule,
		Description:    parsed.Description,
		TimeoutSeconds: timeout,
		Environment:    parsed.Environment,
	}, nil
}

// Valid is a cheap boolean check used by the reload scan to skip
// directories that are not yet complete: both required files exist and a
// schedule is present, without running the full safety/shape validation.
func Valid(dir string) bool {
	configPath := filepath.Join(dir, configFileName)
	execPath := filepath.Join(dir, executableFileName)

	if _, err := os.Stat(configPath); err != nil {
		return false
	}
	if _, err := os.Stat(execPath); err != nil {
		return false
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return false
	}
	parsed, err := parseConfig(raw)
	if err != nil {
		return false
	}
	return strings.TrimSpace(parsed.Schedule) != ""
}

// HasRequiredFiles reports whether dir contains both config.yml and
// execute.rb, used by the reload pass to silently skip incomplete
// directories before attempting a full Load.
func HasRequiredFiles(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, configFileName)); err != nil {
		return false
	}
	if _, err := os.Stat(filepath.Join(dir, executableFileName)); err != nil {
		return false
	}
	return true
}

// ExecutablePath returns the absolute path to this job's executable.
func (d *Descriptor) ExecutablePath() string {
	return filepath.Join(d.Path, executableFileName)
}

// RevalidateExecutable re-runs the shallow executable safety scan,
// guarding against the executable being swapped out between load and
// fire.
func (d *Descriptor) RevalidateExecutable() error {
	return scanExecutableSafety(d.ExecutablePath())
}

// ResolveEnvironment resolves this job's environment through secrets. If
// resolution fails (a missing secret, an unavailable store), the
// descriptor does NOT fail: it warns via warn and returns the unresolved
// mapping verbatim, so the scheduler can keep operating with secrets
// unavailable.
func (d *Descriptor) ResolveEnvironment(secrets Secrets, warn Warner) map[string]string {
	resolved, err := secrets.Resolve(d.Environment)
	if err != nil {
		if warn != nil {
			warn.Warn("Warning: Failed to resolve secrets: " + err.Error())
		}
		return cloneEnv(d.Environment)
	}
	return resolved
}

func cloneEnv(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func scanExecutableSafety(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.Wrap(errs.Configuration, err, "cannot open %s", executableFileName)
	}
	defer f.Close()

	buf := make([]byte, scanWindowBytes)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return errs.Wrap(errs.Configuration, err, "cannot read %s", executableFileName)
	}
	window := buf[:n]

	windowStr := string(window)
	for _, bad := range forbiddenSubstrings {
		if strings.Contains(windowStr, bad) {
			return errs.New(errs.Security, "%s contains unsafe system calls", executableFileName)
		}
	}
	return nil
}
