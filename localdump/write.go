package localdump

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// FilesystemError is a local create, delete or rename that failed.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("localdump: couldn't %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// BackupFolderTimestamp is appended to folders that are moved out of the way, and names each
// run's output folder.
const BackupFolderTimestamp = "2006-01-02_15_04_05"

func createFolder(path string) error {
	// there's probably a nicer way to express 0750 but meh
	if err := os.Mkdir(path, 0750); err != nil {
		return &FilesystemError{Op: "create folder", Path: path, Err: err}
	}
	return nil
}

// createUniqueFolder makes a new folder for name under parent, disambiguated against siblings.
func createUniqueFolder(parent, name string) (string, error) {
	path, err := UniqueFolder(parent, Scrub(name))
	if err != nil {
		return "", err
	}
	if err := createFolder(path); err != nil {
		return "", err
	}
	return path, nil
}

// moveAsideAndCreate renames an existing folder to "<path>-<timestamp>" and creates a fresh empty
// one in its place.
func moveAsideAndCreate(path string, now time.Time) error {
	if _, err := os.Stat(path); err == nil {
		aside := path + "-" + now.Format(BackupFolderTimestamp)
		if err := os.Rename(path, aside); err != nil {
			return &FilesystemError{Op: "rename", Path: path, Err: err}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return &FilesystemError{Op: "stat", Path: path, Err: err}
	}

	if err := os.MkdirAll(path, 0750); err != nil {
		return &FilesystemError{Op: "create folder", Path: path, Err: err}
	}
	return nil
}

// clearAndCreate removes whatever is at path and creates it again, empty.
func clearAndCreate(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return &FilesystemError{Op: "delete", Path: path, Err: err}
	}
	if err := os.MkdirAll(path, 0750); err != nil {
		return &FilesystemError{Op: "create folder", Path: path, Err: err}
	}
	return nil
}

// reserveFile creates an empty file at path, failing if something is already there.
func reserveFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return &FilesystemError{Op: "create file", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &FilesystemError{Op: "close file", Path: path, Err: err}
	}
	return nil
}

// removeIncomplete deletes a file that was created but never got its full contents.
func removeIncomplete(path string, logger logrus.FieldLogger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.WithField("path", path).Warnf("Couldn't remove incomplete file: %v", err)
	}
}
