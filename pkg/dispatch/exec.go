package dispatch

import (
	"context"
	"io"

	"github.com/Sirupsen/logrus"
	"github.com/skroutz/imageset-e2e/pkg/utils"
)

// ExecRunner launches invocations through a container CLI with a
// docker-compatible `run` subcommand, typically podman(1).
//
// Environment values are handed to the CLI through its own environment and
// only referenced by name on the command line, so that credentials never
// show up in the process list.
type ExecRunner struct {
	Log *logrus.Entry

	// Binary is the container CLI, eg. "podman".
	Binary string
}

// Command returns the argument vector that launches inv.
func (r *ExecRunner) Command(inv Invocation) []string {
	cmd := []string{r.Binary, "run", "--rm", "--name", inv.Name,
		"-v", inv.ReportDir + ":" + ReportMount + ":z"}
	for _, k := range inv.Env.Keys() {
		cmd = append(cmd, "-e", k)
	}
	cmd = append(cmd, inv.Image)
	return append(cmd, inv.Args...)
}

// Run launches inv and blocks until it exits.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation, out io.Writer) (int, error) {
	args := r.Command(inv)
	r.Log.Debugf("running %v", args)
	return utils.RunCmd(args, inv.Env.Environ(), out)
}
