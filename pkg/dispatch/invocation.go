package dispatch

import (
	"context"
	"io"
	"regexp"
	"strings"

	"github.com/skroutz/imageset-e2e/pkg/types"
)

// ReportMount is the path, inside the test-runner container, where the
// report directory of an invocation is mounted.
const ReportMount = "/report"

// CntPrefix is the common prefix added to the names of all containers
// launched by imageset-e2e.
const CntPrefix = "imageset-e2e-"

// Environment variables understood by the test runner.
const (
	EnvOCMEnv    = "OCM_ENV"
	EnvVersion   = "CLUSTER_VERSION"
	EnvProvider  = "CLOUD_PROVIDER_ID"
	EnvRegion    = "CLOUD_PROVIDER_REGION"
	EnvExpiry    = "CLUSTER_EXPIRY_IN_MINUTES"
	EnvReportDir = "REPORT_DIR"
	EnvOCMToken  = "OCM_TOKEN"
)

// maxNameLen bounds the length of container names.
const maxNameLen = 128

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// Invocation is a single launch of the test-runner image. It is fully
// structured: arguments and environment are never joined into a shell
// string.
type Invocation struct {
	// Name of the container.
	Name string

	Image string
	Args  []string
	Env   types.Params

	// ReportDir is the host directory mounted at ReportMount.
	ReportDir string
}

// Runner launches an Invocation and blocks until it exits.
type Runner interface {
	// Run returns the exit code of the test-runner command. A non-zero
	// exit code is not an error. If err is not nil the invocation could
	// not be launched and the exit code is irrelevant.
	Run(ctx context.Context, inv Invocation, out io.Writer) (int, error)
}

// ContainerName returns a valid, deterministic container name for running
// resource against target.
func ContainerName(resource string, target types.Target) string {
	parts := []string{resource, target.Provider}
	if target.Region != "" {
		parts = append(parts, target.Region)
	}
	name := CntPrefix + invalidNameChars.ReplaceAllString(strings.Join(parts, "-"), "-")
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return name
}

// expandArgs substitutes the {env}, {resource}, {provider} and {region}
// placeholders in every element of args. Elements are never split or
// joined.
func expandArgs(args []string, env, resource string, target types.Target) []string {
	r := strings.NewReplacer(
		"{env}", env,
		"{resource}", resource,
		"{provider}", target.Provider,
		"{region}", target.Region,
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}
