package scratch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Phase names a pipeline step that needs a scratch file.
type Phase string

const (
	// PhaseProbe holds the download used to learn a release's true version.
	PhaseProbe Phase = "probe"
	// PhaseInstall holds the download that gets installed.
	PhaseInstall Phase = "install"
)

// dirPermissions is the mode used for the scratch folder.
const dirPermissions = 0o700

// Dir is a scratch folder with fixed per-phase file names.
type Dir struct {
	// root is the folder holding the scratch files.
	root string
	// extension is appended to every scratch file name.
	extension string
}

// NewDir returns a scratch folder rooted at root whose files end with extension.
func NewDir(root, extension string) *Dir {
	return &Dir{
		root:      filepath.Clean(root),
		extension: extension,
	}
}

// Root returns the scratch folder.
func (d *Dir) Root() string {
	return d.root
}

// Path returns the fixed file path of a phase.
func (d *Dir) Path(phase Phase) string {
	return filepath.Join(d.root, string(phase)+d.extension)
}

// Use hands the phase's scratch path to fn and deletes the file afterwards,
// whatever fn returns. A leftover file from an earlier crashed run is removed first.
func (d *Dir) Use(phase Phase, fn func(path string) error) (err error) {
	if err = os.MkdirAll(d.root, dirPermissions); err != nil {
		return fmt.Errorf("create scratch folder: %w", err)
	}

	path := d.Path(phase)
	if err = remove(path); err != nil {
		return err
	}

	defer func() {
		if removeErr := remove(path); removeErr != nil && err == nil {
			err = removeErr
		}
	}()

	return fn(path)
}

// Clean removes every phase file. It is safe to call on a missing folder.
func (d *Dir) Clean() error {
	var errs []error

	for _, phase := range []Phase{PhaseProbe, PhaseInstall} {
		errs = append(errs, remove(d.Path(phase)))
	}

	return errors.Join(errs...)
}

// remove deletes path, treating a missing file as success.
func remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove scratch file: %w", err)
	}

	return nil
}
