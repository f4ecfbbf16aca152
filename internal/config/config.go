// Package config loads runner configuration from the environment,
// performs the bare-repository checkout, and derives the per-run
// settings (container name prefix, cleanup policy, name column width)
// that the engine and worker need while executing a pipeline.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/swarmguard/runr/internal/resilience"
)

const defaultPipelineFilename = "runr.yaml"

// Config is the static configuration read once at startup.
type Config struct {
	BarePath         string
	RepoName         string
	RepoBranch       string
	DefaultImage     string // empty means "no override"
	PipelineFilename string
	Cleanup          bool
	ContainerEngine  string // e.g. "podman"
	Timestamp        int64

	CronSchedule string // optional, internal/schedule
	NatsURL      string // optional, internal/notify
	HistoryDB    string
}

// FromEnv reads Config from the process environment. BRANCH is required;
// everything else has a sensible default, mirroring the original runner's
// Config::from_env.
func FromEnv() (*Config, error) {
	barePath := os.Getenv("BARE_PATH")
	if barePath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
		barePath = wd
	}
	repoName := filepath.Base(barePath)
	if repoName == "." || repoName == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid BARE_PATH %q", barePath)
	}

	branch := os.Getenv("BRANCH")
	if branch == "" {
		return nil, fmt.Errorf("BRANCH is required")
	}

	cleanup := true
	if v := os.Getenv("CLEANUP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CLEANUP value %q: %w", v, err)
		}
		cleanup = b
	}

	pipelineFilename := os.Getenv("PIPELINE_FILENAME")
	if pipelineFilename == "" {
		pipelineFilename = defaultPipelineFilename
	}

	engine := os.Getenv("RUNR_CONTAINER_ENGINE")
	if engine == "" {
		engine = "podman"
	}

	historyDB := os.Getenv("RUNR_HISTORY_DB")
	if historyDB == "" {
		historyDB = filepath.Join(os.TempDir(), "runr-history.db")
	}

	return &Config{
		BarePath:         barePath,
		RepoName:         repoName,
		RepoBranch:       branch,
		DefaultImage:     os.Getenv("DEFAULT_IMAGE"),
		PipelineFilename: pipelineFilename,
		Cleanup:          cleanup,
		ContainerEngine:  engine,
		Timestamp:        time.Now().Unix(),
		CronSchedule:     os.Getenv("CRON_SCHEDULE"),
		NatsURL:          os.Getenv("NATS_URL"),
		HistoryDB:        historyDB,
	}, nil
}

// RepoPath is the directory the repository is checked out into:
// <tmp>/<repo-name>/<branch>/<timestamp>.
func (c *Config) RepoPath() string {
	return filepath.Join(os.TempDir(), c.RepoName, c.RepoBranch, strconv.FormatInt(c.Timestamp, 10))
}

// PipelinePath is the full path to the pipeline definition file inside
// the checked-out repository.
func (c *Config) PipelinePath() string {
	return filepath.Join(c.RepoPath(), c.PipelineFilename)
}

// CleanupRepo removes the checked-out repository if Cleanup is enabled.
func (c *Config) CleanupRepo() error {
	if !c.Cleanup {
		return nil
	}
	if err := os.RemoveAll(c.RepoPath()); err != nil {
		return fmt.Errorf("remove repo checkout: %w", err)
	}
	return nil
}

// RunConfig is the subset of Config the engine and worker consume while a
// pipeline is running.
type RunConfig struct {
	RepoPath            string
	ContainerNamePrefix string
	Cleanup             bool
	TaskNameWidth       int
	ContainerEngine     string
}

// NewRunConfig derives a RunConfig from c and the loaded pipeline's name
// width.
func (c *Config) NewRunConfig(nameWidth int) RunConfig {
	return RunConfig{
		RepoPath:            c.RepoPath(),
		ContainerNamePrefix: fmt.Sprintf("runr-%s-%s-%d", c.RepoName, c.RepoBranch, c.Timestamp),
		Cleanup:             c.Cleanup,
		TaskNameWidth:       nameWidth,
		ContainerEngine:     c.ContainerEngine,
	}
}

// ContainerName derives a unique container name for one task execution
// from the configured prefix, the task name, and the current time.
func (rc RunConfig) ContainerName(taskName string) string {
	return fmt.Sprintf("%s-%s-%d", rc.ContainerNamePrefix, taskName, time.Now().Unix())
}

// CheckoutRepo clones the bare repository and checks out the configured
// branch, making up to 3 clone-and-checkout attempts with jittered
// exponential backoff between them (resilience.Retry).
func CheckoutRepo(ctx context.Context, c *Config) error {
	_, err := resilience.Retry(ctx, 3, 200*time.Millisecond, func() (struct{}, error) {
		return struct{}{}, cloneAndCheckout(c)
	})
	return err
}
