package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"

	"github.com/Sirupsen/logrus"
	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	docker "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"
)

// DockerRunner launches invocations through the docker engine API.
type DockerRunner struct {
	Log    *logrus.Entry
	Client docker.CommonAPIClient

	// Pull instructs the runner to pull each image before its first use.
	Pull bool

	// pulls holds the outcome of every image pull, so that an image is
	// pulled at most once per run.
	pulls map[string]error
}

// NewDockerRunner returns a DockerRunner configured from the DOCKER_*
// environment variables.
func NewDockerRunner(pull bool, logger *logrus.Entry) (*DockerRunner, error) {
	c, err := docker.NewEnvClient()
	if err != nil {
		return nil, errors.Wrap(err, "could not create docker client")
	}
	return &DockerRunner{Log: logger, Client: c, Pull: pull, pulls: make(map[string]error)}, nil
}

// Close releases the docker client.
func (r *DockerRunner) Close() error {
	if c, ok := r.Client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Run creates and runs the container of inv. It blocks until the container
// exits and returns the exit code of the container command. If there was an
// error starting the container, the exit code is irrelevant.
func (r *DockerRunner) Run(ctx context.Context, inv Invocation, out io.Writer) (int, error) {
	err := r.ensureImage(ctx, inv.Image, out)
	if err != nil {
		return 0, err
	}

	config := container.Config{Image: inv.Image, Cmd: inv.Args, Env: inv.Env.Environ()}

	mnts := []mount.Mount{{Type: mount.TypeBind, Source: inv.ReportDir, Target: ReportMount}}
	hostConfig := container.HostConfig{Mounts: mnts, AutoRemove: false}

	err = renameIfExists(ctx, r.Client, inv.Name)
	if err != nil {
		return 0, errors.Wrap(err, "could not rename stale container")
	}
	res, err := r.Client.ContainerCreate(ctx, &config, &hostConfig, nil, inv.Name)
	if err != nil {
		return 0, err
	}

	defer func(id string) {
		err := r.Client.ContainerRemove(ctx, id, dockertypes.ContainerRemoveOptions{Force: true})
		if err != nil {
			r.Log.Warnf("[%s] cannot remove container: %s", inv.Name, err)
		}
	}(res.ID)

	err = r.Client.ContainerStart(ctx, res.ID, dockertypes.ContainerStartOptions{})
	if err != nil {
		return 0, err
	}

	logs, err := r.Client.ContainerLogs(ctx, res.ID,
		dockertypes.ContainerLogsOptions{Follow: true, ShowStdout: true, ShowStderr: true})
	if err != nil {
		return 0, err
	}
	defer logs.Close()

	_, err = stdcopy.StdCopy(out, out, logs)
	if err != nil {
		return 0, err
	}

	// the log stream may close before the daemon marks the container as
	// stopped
	code, err := r.Client.ContainerWait(ctx, res.ID)
	if err != nil {
		return 0, errors.Wrap(err, "could not wait for container")
	}
	return int(code), nil
}

// ensureImage pulls image if pulling is enabled and it wasn't attempted
// already, then verifies the image is present locally.
func (r *DockerRunner) ensureImage(ctx context.Context, image string, out io.Writer) error {
	if r.Pull {
		if r.pulls == nil {
			r.pulls = make(map[string]error)
		}
		err, attempted := r.pulls[image]
		if !attempted {
			err = r.pullImage(ctx, image, out)
			r.pulls[image] = err
		}
		if err != nil {
			return err
		}
	}

	_, _, err := r.Client.ImageInspectWithRaw(ctx, image)
	if err != nil {
		return errors.Wrapf(err, "image %s is not available", image)
	}
	return nil
}

func (r *DockerRunner) pullImage(ctx context.Context, image string, out io.Writer) error {
	r.Log.Infof("pulling %s...", image)
	resp, err := r.Client.ImagePull(ctx, image, dockertypes.ImagePullOptions{})
	if err != nil {
		return errors.Wrapf(err, "could not pull %s", image)
	}
	defer resp.Close()

	err = jsonmessage.DisplayJSONMessagesStream(resp, out, 0, false, nil)
	if err != nil {
		return errors.Wrapf(err, "could not pull %s", image)
	}
	return nil
}

// renameIfExists searches for containers with the passed name and renames them
// by appending a random suffix to their name
func renameIfExists(ctx context.Context, c docker.CommonAPIClient, name string) error {
	filter := filters.NewArgs()
	filter.Add("name", name)
	containers, err := c.ContainerList(ctx, dockertypes.ContainerListOptions{
		Quiet:   true,
		All:     true,
		Limit:   -1,
		Filters: filter,
	})
	if err != nil {
		return err
	}
	for _, container := range containers {
		err := c.ContainerRename(ctx, container.ID, name+"-renamed-"+randomHexString())
		if err != nil {
			return err
		}
	}
	return nil
}

func randomHexString() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
