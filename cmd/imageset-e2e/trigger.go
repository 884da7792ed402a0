package main

import (
	"context"
	"io"
	"path/filepath"

	"github.com/Sirupsen/logrus"
	units "github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/skroutz/imageset-e2e/cmd/imageset-e2e/metrics"
	"github.com/skroutz/imageset-e2e/pkg/dispatch"
	"github.com/skroutz/imageset-e2e/pkg/extract"
	"github.com/skroutz/imageset-e2e/pkg/jenkins"
	"github.com/skroutz/imageset-e2e/pkg/types"
	"github.com/skroutz/imageset-e2e/pkg/utils"
)

// CI is the part of the CI server the trigger needs. It is implemented by
// *jenkins.Client.
type CI interface {
	VerifyRegistry(ctx context.Context, r types.Registry) error
	Upstream(ctx context.Context, buildURL string) (*types.UpstreamRef, error)
	ConsoleText(ctx context.Context, job string, build int) (io.ReadCloser, error)
}

// Trigger ties the resolution of the upstream build, the extraction of the
// changed ClusterImageSets and the dispatching of the test runs together.
type Trigger struct {
	Log *logrus.Entry
	cfg *Config

	ci         CI
	matcher    *extract.Matcher
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Recorder
}

// NewTrigger accepts a loaded and validated configuration, and returns a
// Trigger that launches test runs with runner.
func NewTrigger(cfg *Config, runner dispatch.Runner, logger *logrus.Entry) (*Trigger, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	ci, err := jenkins.NewClient(cfg.JenkinsURL, logger.WithField("component", "jenkins"))
	if err != nil {
		return nil, err
	}
	ci.User = cfg.JenkinsUser
	ci.APIToken = cfg.JenkinsAPIToken

	matcher, err := extract.NewMatcher(cfg.Prefix)
	if err != nil {
		return nil, err
	}

	t := new(Trigger)
	t.Log = logger.WithField("component", "trigger")
	t.cfg = cfg
	t.ci = ci
	t.matcher = matcher
	t.metrics = metrics.NewRecorder(logger.WithField("component", "metrics"))
	t.dispatcher = &dispatch.Dispatcher{
		Log:           logger.WithField("component", "dispatch"),
		Runner:        runner,
		Image:         cfg.Image,
		Args:          cfg.Args,
		ExpiryMinutes: cfg.ExpiryMinutes,
		Token:         cfg.Token,
		ReportRoot:    cfg.ReportDir,
		FS:            cfg.FileSystem,
		Recorder:      t.metrics,
	}
	return t, nil
}

// Run performs a whole trigger run. It returns whether every launched test
// run passed; a run that launches nothing is successful. A non-nil error is
// fatal and means that no test run was launched.
func (t *Trigger) Run(ctx context.Context) (bool, error) {
	err := t.ci.VerifyRegistry(ctx, t.cfg.Registry)
	if err != nil {
		return false, err
	}

	upstream, err := t.ci.Upstream(ctx, t.cfg.BuildURL)
	if err != nil {
		return false, err
	}
	if upstream == nil {
		t.Log.Infof("build %s was not triggered by CI, nothing to do", t.cfg.BuildID)
		return true, nil
	}

	env, ok := t.cfg.Registry.Label(upstream.Job)
	if !ok {
		t.Log.Infof("%s is not a recognized job, nothing to do", upstream.Job)
		return true, nil
	}
	log := t.Log.WithFields(logrus.Fields{"upstream": upstream.String(), "env": env})

	changed, err := t.changedResources(ctx, upstream)
	if err != nil {
		return false, err
	}
	if len(changed) == 0 {
		log.WithField("prefix", t.matcher.Prefix()).Info("no ClusterImageSet changes detected")
		return true, nil
	}
	log.Infof("changed ClusterImageSets: %v", changed)

	err = utils.EnsureDirExists(t.cfg.ReportDir)
	if err != nil {
		return false, errors.Wrap(err, "could not create report directory")
	}

	ok, results := t.dispatcher.Run(ctx, env, changed, t.cfg.Targets)
	t.summarize(log, results)

	t.metrics.RecordRun(ok)
	t.metrics.WriteTextfile(filepath.Join(t.cfg.ReportDir, metrics.TextfileName))
	return ok, nil
}

// changedResources returns the ClusterImageSets applied by upstream, each
// one once, in the order they were first applied.
func (t *Trigger) changedResources(ctx context.Context, upstream *types.UpstreamRef) ([]string, error) {
	body, err := t.ci.ConsoleText(ctx, upstream.Job, upstream.Build)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	names, err := t.matcher.Extract(body)
	if err != nil {
		return nil, errors.Wrapf(err, "could not extract changes of %s", upstream)
	}
	return extract.Unique(names), nil
}

func (t *Trigger) summarize(log *logrus.Entry, results []types.DispatchResult) {
	failed := 0
	for _, r := range results {
		if r.Success() {
			log.Infof("%s (%s)", r, units.HumanDuration(r.Duration))
		} else {
			failed++
			log.Errorf("%s (%s)", r, units.HumanDuration(r.Duration))
		}
	}
	log.Infof("%d/%d test runs passed", len(results)-failed, len(results))
}
