package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/distribution/reference"
	"github.com/skroutz/imageset-e2e/pkg/dispatch"
	"github.com/skroutz/imageset-e2e/pkg/extract"
	"github.com/skroutz/imageset-e2e/pkg/filesystem"
	"github.com/skroutz/imageset-e2e/pkg/types"
	"github.com/skroutz/imageset-e2e/pkg/utils"
	"gopkg.in/yaml.v3"
)

// Environment variables read at startup. The first four are required.
const (
	EnvBuildURL        = "BUILD_URL"
	EnvBuildID         = "BUILD_ID"
	EnvJenkinsURL      = "JENKINS_URL"
	EnvToken           = "OCM_TOKEN"
	EnvJenkinsUser     = "JENKINS_USER"
	EnvJenkinsAPIToken = "JENKINS_API_TOKEN"
)

// DefaultImage is the test-runner image used unless configured otherwise.
const DefaultImage = "quay.io/app-sre/osde2e:latest"

// DefaultRegistry holds the upstream jobs that apply ClusterImageSets, by
// the environment they deploy to.
var DefaultRegistry = types.Registry{
	"openshift-saas-deploy-saas-clusterimagesets-hivei01ue1": "int",
	"openshift-saas-deploy-saas-clusterimagesets-hives02ue1": "stage",
	"openshift-saas-deploy-saas-clusterimagesets-hivep01ue1": "prod",
}

// DefaultTargets are the targets every ClusterImageSet is tested on unless
// configured otherwise.
var DefaultTargets = []types.Target{
	{Provider: "aws", Region: "us-east-1"},
	{Provider: "gcp", Region: "us-east1"},
}

// DefaultArgs are the arguments passed to the test-runner image unless
// configured otherwise.
var DefaultArgs = []string{"test", "--configs", "{env},e2e-suite"}

// Config holds the configuration values of a run. It is loaded once at
// startup and never mutated afterwards.
type Config struct {
	FileSystem    filesystem.FileSystem `json:"-" yaml:"-"`
	Runtime       types.Runtime         `json:"-" yaml:"-"`
	RuntimeBinary string                `json:"-" yaml:"-"`

	Registry      types.Registry `json:"registry" yaml:"registry"`
	Targets       []types.Target `json:"targets" yaml:"targets"`
	Image         string         `json:"image" yaml:"image"`
	Args          []string       `json:"args" yaml:"args"`
	ExpiryMinutes int            `json:"expiry_minutes" yaml:"expiry_minutes"`
	ReportDir     string         `json:"report_dir" yaml:"report_dir"`
	SkipPull      bool           `json:"skip_pull" yaml:"skip_pull"`
	Prefix        string         `json:"prefix" yaml:"prefix"`

	// populated from the environment
	BuildURL        string `json:"-" yaml:"-"`
	BuildID         string `json:"-" yaml:"-"`
	JenkinsURL      string `json:"-" yaml:"-"`
	Token           string `json:"-" yaml:"-"`
	JenkinsUser     string `json:"-" yaml:"-"`
	JenkinsAPIToken string `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	cfg := new(Config)
	cfg.setDefaults()
	return cfg
}

// ParseConfig accepts a reader from which to parse the configuration and
// its format ("json" or "yaml"), and returns a Config with defaults applied
// to every field the reader leaves unset.
func ParseConfig(r io.Reader, format string) (*Config, error) {
	cfg := new(Config)

	var err error
	switch format {
	case "json":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	case "yaml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		err = dec.Decode(cfg)
		if err == io.EOF {
			err = nil
		}
	default:
		return nil, fmt.Errorf("unknown configuration format '%s'", format)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse configuration; %s", err)
	}

	cfg.setDefaults()
	return cfg, nil
}

// ParseConfigFile parses the configuration at path. The format is deduced
// from its extension.
func ParseConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot parse configuration; %s", err)
	}
	defer f.Close()

	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	return ParseConfig(f, format)
}

func (cfg *Config) setDefaults() {
	if len(cfg.Registry) == 0 {
		cfg.Registry = DefaultRegistry
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = DefaultTargets
	}
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if cfg.Args == nil {
		cfg.Args = DefaultArgs
	}
	if cfg.ExpiryMinutes == 0 {
		cfg.ExpiryMinutes = dispatch.DefaultExpiryMinutes
	}
	if cfg.ReportDir == "" {
		cfg.ReportDir = "report"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = extract.DefaultPrefix
	}
	if cfg.Runtime == "" {
		cfg.Runtime = types.Docker
	}
}

// LoadEnv populates cfg from the environment. It fails if any of the
// required variables is missing.
func (cfg *Config) LoadEnv() error {
	env, err := utils.RequireEnv(EnvBuildURL, EnvBuildID, EnvJenkinsURL, EnvToken)
	if err != nil {
		return err
	}
	cfg.BuildURL = env[EnvBuildURL]
	cfg.BuildID = env[EnvBuildID]
	cfg.JenkinsURL = env[EnvJenkinsURL]
	cfg.Token = env[EnvToken]
	cfg.JenkinsUser = os.Getenv(EnvJenkinsUser)
	cfg.JenkinsAPIToken = os.Getenv(EnvJenkinsAPIToken)
	return nil
}

// Validate checks the configuration for errors, normalizes the image
// reference and makes the report directory absolute.
func (cfg *Config) Validate() error {
	if cfg.FileSystem == nil {
		return errors.New("filesystem must be provided")
	}

	for job, label := range cfg.Registry {
		if strings.TrimSpace(job) == "" {
			return errors.New("registry contains an empty job name")
		}
		if label == "" {
			return fmt.Errorf("job '%s' has no environment label", job)
		}
	}

	seen := make(map[types.Target]bool)
	for _, t := range cfg.Targets {
		if t.Provider == "" {
			return fmt.Errorf("target %v has no provider", t)
		}
		if seen[t] {
			return fmt.Errorf("target %s is listed twice", t)
		}
		seen[t] = true
	}

	if cfg.ExpiryMinutes < 0 {
		return fmt.Errorf("invalid expiry_minutes %d", cfg.ExpiryMinutes)
	}

	named, err := reference.ParseNormalizedNamed(cfg.Image)
	if err != nil {
		return fmt.Errorf("invalid image '%s'; %s", cfg.Image, err)
	}
	cfg.Image = reference.FamiliarString(reference.TagNameOnly(named))

	cfg.ReportDir, err = filepath.Abs(cfg.ReportDir)
	if err != nil {
		return fmt.Errorf("invalid report_dir; %s", err)
	}
	err = utils.PathIsDir(cfg.ReportDir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("invalid report_dir; %s", err)
	}

	switch cfg.Runtime {
	case types.Docker, types.DryRun:
	case types.Podman:
		if cfg.RuntimeBinary == "" {
			cfg.RuntimeBinary = string(types.Podman)
		}
	default:
		return fmt.Errorf("unknown runtime '%s' (%v)", cfg.Runtime, types.Runtimes)
	}

	return nil
}
