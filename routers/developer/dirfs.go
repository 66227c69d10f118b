package developer

import (
	"io/fs"
	"os"
	"path/filepath"
)

// DirFS returns a filesystem rooted at root that also supports the write
// operations the editor needs, unlike os.DirFS which is read-only.
func DirFS(root string) fs.FS {
	return dirFS{root: root}
}

type dirFS struct {
	root string
}

func (d dirFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	return os.Open(filepath.Join(d.root, filepath.FromSlash(name)))
}

func (d dirFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	if !fs.ValidPath(name) {
		return &fs.PathError{Op: "write", Path: name, Err: fs.ErrInvalid}
	}
	return os.WriteFile(filepath.Join(d.root, filepath.FromSlash(name)), data, perm)
}

func (d dirFS) MkdirAll(name string, perm os.FileMode) error {
	if !fs.ValidPath(name) {
		return &fs.PathError{Op: "mkdir", Path: name, Err: fs.ErrInvalid}
	}
	return os.MkdirAll(filepath.Join(d.root, filepath.FromSlash(name)), perm)
}
