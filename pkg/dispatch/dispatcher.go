// Package dispatch launches the end-to-end test runner once for every
// ClusterImageSet and target pair and aggregates the outcome.
package dispatch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Sirupsen/logrus"
	units "github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/skroutz/imageset-e2e/pkg/filesystem"
	"github.com/skroutz/imageset-e2e/pkg/types"
)

// DefaultExpiryMinutes is the lifetime of the clusters created by the test
// runner, unless configured otherwise.
const DefaultExpiryMinutes = 360

// Recorder receives the result of every dispatch.
type Recorder interface {
	RecordDispatch(types.DispatchResult)
}

// Dispatcher launches test runs. Every field except Recorder and Out is
// required.
type Dispatcher struct {
	Log    *logrus.Entry
	Runner Runner

	// Image and Args describe the test-runner invocation. Args may contain
	// the {env}, {resource}, {provider} and {region} placeholders.
	Image string
	Args  []string

	ExpiryMinutes int

	// Token is the credential passed through to the test runner.
	Token string

	// ReportRoot is the shared directory under which every invocation
	// gets a report directory of its own.
	ReportRoot string
	FS         filesystem.FileSystem

	Recorder Recorder

	// Out receives the output of the test runner. Defaults to os.Stdout.
	Out io.Writer
}

// ReportDir returns the report directory of running resource against
// target.
func (d *Dispatcher) ReportDir(resource string, target types.Target) string {
	dir := target.Provider
	if target.Region != "" {
		dir += "-" + target.Region
	}
	return filepath.Join(d.ReportRoot, resource, dir)
}

// withinRoot reports whether dir lies strictly under the report root.
func (d *Dispatcher) withinRoot(dir string) bool {
	rel, err := filepath.Rel(d.ReportRoot, dir)
	if err != nil || rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Invocation returns the invocation that tests resource on target for the
// environment env.
func (d *Dispatcher) Invocation(env, resource string, target types.Target) Invocation {
	params := types.Params{
		EnvOCMEnv:    env,
		EnvVersion:   resource,
		EnvProvider:  target.Provider,
		EnvExpiry:    strconv.Itoa(d.ExpiryMinutes),
		EnvReportDir: ReportMount,
		EnvOCMToken:  d.Token,
	}
	if target.Region != "" {
		params[EnvRegion] = target.Region
	}

	return Invocation{
		Name:      ContainerName(resource, target),
		Image:     d.Image,
		Args:      expandArgs(d.Args, env, resource, target),
		Env:       params,
		ReportDir: d.ReportDir(resource, target),
	}
}

// Dispatch runs the test suite for resource on target and blocks until it
// finishes. It never fails: launch errors and non-zero exit codes are
// recorded in the returned result.
func (d *Dispatcher) Dispatch(ctx context.Context, env, resource string, target types.Target) (res types.DispatchResult) {
	log := d.Log.WithFields(logrus.Fields{"clusterimageset": resource, "target": target.String()})
	res = types.NewDispatchResult(resource, target)
	start := time.Now()

	defer func() {
		res.Duration = time.Since(start).Truncate(time.Millisecond)
		if d.Recorder != nil {
			d.Recorder.RecordDispatch(res)
		}
	}()

	inv := d.Invocation(env, resource, target)
	if !d.withinRoot(inv.ReportDir) {
		res.Err = errors.Errorf("report directory %s is outside of %s", inv.ReportDir, d.ReportRoot)
		log.Error(res.Err)
		return res
	}

	err := filesystem.Reset(d.FS, inv.ReportDir)
	if err != nil {
		res.Err = errors.Wrap(err, "could not prepare report directory")
		log.Error(res.Err)
		return res
	}

	log.Infof("launching %s in %s", inv.Image, inv.Name)
	out := d.Out
	if out == nil {
		out = os.Stdout
	}
	code, err := d.Runner.Run(ctx, inv, out)
	if err != nil {
		res.Err = errors.Wrap(err, "could not launch test runner")
		log.Error(res.Err)
		return res
	}
	res.ExitCode = code

	elapsed := units.HumanDuration(time.Since(start))
	if code != 0 {
		log.Errorf("test run failed with exit code %d after %s", code, elapsed)
	} else {
		log.Infof("test run passed after %s", elapsed)
	}
	return res
}

// Run dispatches every resource to every target, resources first and
// targets in the given order. Every pair is attempted exactly once
// regardless of the outcome of the others. It returns whether all of them
// succeeded along with the individual results.
func (d *Dispatcher) Run(ctx context.Context, env string, resources []string, targets []types.Target) (bool, []types.DispatchResult) {
	results := make([]types.DispatchResult, 0, len(resources)*len(targets))
	for _, r := range resources {
		for _, t := range targets {
			results = append(results, d.Dispatch(ctx, env, r, t))
		}
	}
	return types.Aggregate(results), results
}
