package types

import "sort"

// Params are the environment variables handed to a single test-runner
// invocation.
type Params map[string]string

// Keys returns the names of p in lexical order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Environ returns p in the KEY=VALUE form expected by os/exec and the docker
// API, ordered by key.
func (p Params) Environ() []string {
	env := make([]string, 0, len(p))
	for _, k := range p.Keys() {
		env = append(env, k+"="+p[k])
	}
	return env
}
