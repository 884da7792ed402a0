package dispatch

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skroutz/imageset-e2e/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePodman prints its arguments and the token it received through its
// environment, then exits with $FAKE_EXIT.
const fakePodman = `#!/bin/sh
echo "args: $*"
echo "token: $OCM_TOKEN"
exit ${FAKE_EXIT:-0}
`

func TestExecRunnerCommand(t *testing.T) {
	r := &ExecRunner{Log: testLogger(), Binary: "podman"}
	inv := Invocation{
		Name:      "imageset-e2e-openshift-v4.14.3-aws-us-east-1",
		Image:     image,
		Args:      []string{"test", "--configs", "stage,e2e-suite"},
		Env:       types.Params{"OCM_TOKEN": "s3cr3t", "CLUSTER_VERSION": "openshift-v4.14.3"},
		ReportDir: "/tmp/report",
	}

	assert.Equal(t, []string{
		"podman", "run", "--rm", "--name", "imageset-e2e-openshift-v4.14.3-aws-us-east-1",
		"-v", "/tmp/report:/report:z",
		"-e", "CLUSTER_VERSION", "-e", "OCM_TOKEN",
		image, "test", "--configs", "stage,e2e-suite",
	}, r.Command(inv))

	for _, arg := range r.Command(inv) {
		assert.NotContains(t, arg, "s3cr3t")
	}
}

func TestExecRunnerRun(t *testing.T) {
	tmp, err := ioutil.TempDir("", "imageset-e2e-exec")
	require.NoError(t, err)
	defer os.RemoveAll(tmp)

	bin := filepath.Join(tmp, "podman")
	require.NoError(t, ioutil.WriteFile(bin, []byte(fakePodman), 0755))

	r := &ExecRunner{Log: testLogger(), Binary: bin}
	inv := Invocation{Name: "n", Image: image, Env: types.Params{"OCM_TOKEN": "s3cr3t"}, ReportDir: tmp}

	var out bytes.Buffer
	code, err := r.Run(context.Background(), inv, &out)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "token: s3cr3t")
	assert.Contains(t, out.String(), "-e OCM_TOKEN "+image)

	inv.Env["FAKE_EXIT"] = "2"
	out.Reset()
	code, err = r.Run(context.Background(), inv, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, code)

	r.Binary = filepath.Join(tmp, "missing")
	code, err = r.Run(context.Background(), inv, &out)
	assert.Error(t, err)
	assert.Equal(t, types.ContainerFailureExitCode, code)
	assert.False(t, strings.Contains(out.String(), "panic"))
}
