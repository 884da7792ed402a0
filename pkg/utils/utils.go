package utils

import (
	"errors"
	"io"
	"os"
	"os/exec"

	"github.com/skroutz/imageset-e2e/pkg/types"
)

// PathIsDir returns an error if p does not exist or is not a directory.
func PathIsDir(p string) error {
	fi, err := os.Stat(p)
	if err != nil {
		return err
	}

	if !fi.IsDir() {
		return errors.New("Path " + p + " is not a directory")
	}

	return nil
}

// EnsureDirExists verifies path is a directory and creates it, along with any
// missing parents, if it doesn't exist.
func EnsureDirExists(path string) error {
	fi, err := os.Stat(path)
	if err == nil {
		if !fi.IsDir() {
			return errors.New(path + " is not a directory")
		}
	} else {
		if os.IsNotExist(err) {
			err = os.MkdirAll(path, 0755)
			if err != nil {
				return err
			}
		} else {
			return err
		}
	}

	return nil
}

// RunCmd runs the command denoted by args, using the first element as the
// command and the remainder as its arguments. env is appended to the
// environment of the current process. The combined stdout/stderr of the
// command is written to out.
//
// It returns the exit code of the command. A non-zero exit code is not an
// error; err is only set if the command could not be started or waited on,
// in which case the exit code is irrelevant.
func RunCmd(args []string, env []string, out io.Writer) (int, error) {
	if len(args) == 0 {
		return types.ContainerFailureExitCode, errors.New("no command given")
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return types.ContainerFailureExitCode, err
	}
	return 0, nil
}

// RequireEnv returns the values of the given environment variables. It fails
// with types.ErrMissingEnv on the first one that is unset or empty.
func RequireEnv(names ...string) (map[string]string, error) {
	vals := make(map[string]string, len(names))
	for _, n := range names {
		v, ok := os.LookupEnv(n)
		if !ok || v == "" {
			return nil, types.ErrMissingEnv{Name: n}
		}
		vals[n] = v
	}
	return vals, nil
}
