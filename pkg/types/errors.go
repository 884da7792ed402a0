package types

import "fmt"

// ErrUpstreamUnavailable indicates that a job of the upstream registry could
// not be resolved on the CI server.
type ErrUpstreamUnavailable struct {
	Job    string
	Status int
	Err    error
}

func (e ErrUpstreamUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream job '%s' is unavailable: %s", e.Job, e.Err)
	}
	return fmt.Sprintf("upstream job '%s' is unavailable: http status %d", e.Job, e.Status)
}

// ErrMissingEnv indicates that a required environment variable was not set.
type ErrMissingEnv struct {
	Name string
}

func (e ErrMissingEnv) Error() string {
	return fmt.Sprintf("required environment variable %s is not set", e.Name)
}
