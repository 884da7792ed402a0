// Copyright 2018-present Skroutz S.A.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Sirupsen/logrus"
	"github.com/skroutz/imageset-e2e/pkg/dispatch"
	"github.com/skroutz/imageset-e2e/pkg/filesystem"
	_ "github.com/skroutz/imageset-e2e/pkg/filesystem/plainfs"
	"github.com/skroutz/imageset-e2e/pkg/types"
	"github.com/urfave/cli"
)

// Version contains the release version of imageset-e2e, adhering to SemVer.
const Version = "0.1.0"

// VersionSuffix is populated at build-time with -ldflags and typically
// contains the Git SHA1 of the tip that the binary is build from. It is then
// appended to Version.
var VersionSuffix string

func main() {
	availableFS := []string{}
	for fs := range filesystem.Registry {
		availableFS = append(availableFS, fs)
	}
	fs := "[" + strings.Join(availableFS, ", ") + "]"

	runtimes := []string{}
	for _, r := range types.Runtimes {
		runtimes = append(runtimes, string(r))
	}

	app := cli.NewApp()
	app.Name = "imageset-e2e"
	app.Usage = "Run the e2e suite against ClusterImageSets applied by an upstream deploy job"
	app.Version = Version
	if VersionSuffix != "" && len(VersionSuffix) >= 7 {
		app.Version = Version + "-" + VersionSuffix[:7]
	}
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "Load configuration from `FILE` (JSON or YAML). Built-in defaults are used if not set",
		},
		cli.StringFlag{
			Name:  "runtime",
			Value: string(types.Docker),
			Usage: "How to launch the test runner. Options: [" + strings.Join(runtimes, ", ") + "]",
		},
		cli.StringFlag{
			Name:  "runtime-binary",
			Usage: "The container CLI used by the podman runtime (default: podman)",
		},
		cli.StringFlag{
			Name:  "report-dir",
			Usage: "Directory where test reports are placed, overrides the configuration",
		},
		cli.StringFlag{
			Name:  "filesystem",
			Value: "plain",
			Usage: "Which filesystem adapter to use for report directories. Options: " + fs,
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "enable debug logging",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "log format, either text or json",
		},
	}
	app.Action = func(c *cli.Context) error {
		logger, err := newLogger(c.String("log-format"), c.Bool("verbose"), os.Stderr)
		if err != nil {
			return err
		}

		cfg, err := parseConfigFromCli(c)
		if err != nil {
			return err
		}

		runner, closeRunner, err := newRunner(cfg, logger)
		if err != nil {
			return err
		}
		defer closeRunner()

		return run(context.Background(), cfg, runner, logger)
	}

	os.Exit(exitStatus(app.Run(os.Args), os.Stderr))
}

// run performs a trigger run with runner. It returns an error if the run
// could not complete or if any of the launched test runs failed.
func run(ctx context.Context, cfg *Config, runner dispatch.Runner, logger *logrus.Entry) error {
	t, err := NewTrigger(cfg, runner, logger)
	if err != nil {
		return err
	}

	ok, err := t.Run(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("some test runs failed, see the reports under %s", cfg.ReportDir)
	}
	return nil
}

// exitStatus maps the result of the app to the process exit status, printing
// err to w.
func exitStatus(err error, w io.Writer) int {
	if err != nil {
		fmt.Fprintln(w, err)
		return 1
	}
	return 0
}

// parseConfigFromCli loads the configuration file, the environment and the
// command line overrides, in that order, and validates the result.
func parseConfigFromCli(c *cli.Context) (*Config, error) {
	fs, err := filesystem.Get(c.String("filesystem"))
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if path := c.String("config"); path != "" {
		cfg, err = ParseConfigFile(path)
		if err != nil {
			return nil, err
		}
	}

	err = cfg.LoadEnv()
	if err != nil {
		return nil, err
	}

	cfg.FileSystem = fs
	cfg.Runtime = types.Runtime(c.String("runtime"))
	cfg.RuntimeBinary = c.String("runtime-binary")
	if dir := c.String("report-dir"); dir != "" {
		cfg.ReportDir = dir
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(format string, verbose bool, out io.Writer) (*logrus.Entry, error) {
	logger := logrus.New()
	logger.Out = out
	switch format {
	case "text":
		logger.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	case "json":
		logger.Formatter = &logrus.JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format '%s'", format)
	}
	if verbose {
		logger.Level = logrus.DebugLevel
	}
	return logrus.NewEntry(logger), nil
}

// newRunner returns the runner for the configured runtime and a function
// that releases its resources.
func newRunner(cfg *Config, logger *logrus.Entry) (dispatch.Runner, func(), error) {
	log := logger.WithField("component", "runner")

	switch cfg.Runtime {
	case types.Docker:
		r, err := dispatch.NewDockerRunner(!cfg.SkipPull, log)
		if err != nil {
			return nil, nil, err
		}
		return r, func() {
			err := r.Close()
			if err != nil {
				log.Warnf("could not close docker client: %s", err)
			}
		}, nil
	case types.Podman:
		return &dispatch.ExecRunner{Log: log, Binary: cfg.RuntimeBinary}, func() {}, nil
	case types.DryRun:
		return &dispatch.DryRunner{Log: log}, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown runtime '%s'", cfg.Runtime)
}
