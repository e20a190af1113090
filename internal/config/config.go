// Package config loads the scheduler's runtime configuration: a
// repository URL, a jobs directory, and the paths of its durable
// artifacts, via a viper.Viper bound to environment variables and CLI
// flags.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/cronsentinel/cronsentinel/internal/errs"
	"github.com/cronsentinel/cronsentinel/internal/gitsync"
	"github.com/cronsentinel/cronsentinel/pkg/utils"
)

const envPrefix = "CRONSENTINEL"

// SupervisorConfig holds everything the scheduler daemon needs to start.
type SupervisorConfig struct {
	RepoURL        string `mapstructure:"repo_url"`
	JobsDir        string `mapstructure:"jobs_dir"`
	HistoryFile    string `mapstructure:"history_file"`
	SecretsFile    string `mapstructure:"secrets_file"`
	SecretsKeyFile string `mapstructure:"secrets_key_file"`
	Interpreter    string `mapstructure:"interpreter"`
	Verbose        bool   `mapstructure:"verbose"`
}

// LoadViper builds a *viper.Viper bound to CRONSENTINEL_-prefixed
// environment variables, pre-seeded with this package's defaults. CLI
// flags are expected to be bound on top by the caller via v.BindPFlag.
func LoadViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func setDefaults(v *viper.Viper) {
	// An empty default registers the key, so Unmarshal picks up
	// CRONSENTINEL_REPO_URL through AutomaticEnv.
	v.SetDefault("repo_url", "")
	v.SetDefault("jobs_dir", "./jobs")
	v.SetDefault("history_file", "./job_history.json")
	v.SetDefault("secrets_file", "./secrets.json.enc")
	v.SetDefault("secrets_key_file", "./secrets.key")
	v.SetDefault("interpreter", "ruby")
	v.SetDefault("verbose", false)
}

// Load unmarshals v into a SupervisorConfig, validates the raw input
// form (traversal segments are rejected before expansion), then expands
// leading-"~" and relative paths to absolute ones.
func Load(v *viper.Viper) (*SupervisorConfig, error) {
	var cfg SupervisorConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Wrap(errs.Configuration, err, "failed to parse configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.JobsDir = utils.ExpandPath(cfg.JobsDir)
	cfg.HistoryFile = utils.ExpandPath(cfg.HistoryFile)
	cfg.SecretsFile = utils.ExpandPath(cfg.SecretsFile)
	cfg.SecretsKeyFile = utils.ExpandPath(cfg.SecretsKeyFile)

	return &cfg, nil
}

// Validate enforces the repository URL and jobs-directory invariants,
// run once at supervisor construction.
func (c *SupervisorConfig) Validate() error {
	if strings.TrimSpace(c.RepoURL) == "" {
		return errs.New(errs.Validation, "repo_url is required")
	}
	if err := gitsync.ValidateRepoURL(c.RepoURL); err != nil {
		return err
	}
	return gitsync.ValidateJobsDir(c.JobsDir)
}
