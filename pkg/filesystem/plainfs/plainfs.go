package plainfs

import (
	"os"

	"github.com/skroutz/imageset-e2e/pkg/filesystem"
)

// PlainFS implements the FileSystem interface on top of the regular
// directory operations of the host.
type PlainFS struct{}

func init() {
	filesystem.Registry["plain"] = PlainFS{}
}

// Create creates a new directory at path, including any missing parents.
func (fs PlainFS) Create(path string) error {
	return os.MkdirAll(path, 0755)
}

// Remove deletes the path and all its contents
func (fs PlainFS) Remove(path string) error {
	return os.RemoveAll(path)
}
