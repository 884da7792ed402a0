package types

import "fmt"

// UpstreamRef identifies the build that triggered the current run.
type UpstreamRef struct {
	Job   string
	Build int
}

func (u UpstreamRef) String() string {
	return fmt.Sprintf("%s#%d", u.Job, u.Build)
}

// Registry maps the name of each upstream job that is known to apply
// ClusterImageSets to the environment it deploys to.
type Registry map[string]string

// Label returns the environment label of job and whether the job is
// registered at all.
func (r Registry) Label(job string) (string, bool) {
	l, ok := r[job]
	return l, ok
}

// Jobs returns the registered job names in lexical order.
func (r Registry) Jobs() []string {
	return Params(r).Keys()
}
