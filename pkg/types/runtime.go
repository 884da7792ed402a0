package types

// Runtime indicates how test-runner containers are launched.
type Runtime string

const (
	// Docker talks to the docker engine API directly. It is the default.
	Docker Runtime = "docker"

	// Podman shells out to the podman(1) binary, or any CLI with a
	// compatible `run` subcommand.
	Podman Runtime = "podman"

	// DryRun logs every invocation without launching anything and reports
	// it as successful.
	DryRun Runtime = "dry-run"
)

// Runtimes lists the supported runtimes.
var Runtimes = []Runtime{Docker, Podman, DryRun}
