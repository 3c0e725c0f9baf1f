package localdump

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/toothbrush/smartsheet-backup/smartsheet"
)

// Runs of these become a single underscore.
var illegalChars = regexp.MustCompile(`[\\/:*?"<>|]+`)

// Scrub makes a remote name usable as one path segment.
func Scrub(name string) string {
	scrubbed := illegalChars.ReplaceAllString(name, "_")
	if scrubbed == "." || scrubbed == ".." {
		return strings.Repeat("_", len(scrubbed))
	}
	return scrubbed
}

// splitExtension splits "report.final.pdf" into "report.final" and ".pdf".  A leading dot does
// not start an extension.
func splitExtension(name string) (string, string) {
	ext := filepath.Ext(name)
	if ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

func StripExtension(name string) string {
	base, _ := splitExtension(name)
	return base
}

// UniqueFile returns the first of "name.ext", "name (2).ext", "name (3).ext"... that does not
// exist yet in dir.
func UniqueFile(dir, name string) (string, error) {
	base, ext := splitExtension(name)
	return unique(dir, name, func(n int) string {
		return fmt.Sprintf("%s (%d)%s", base, n, ext)
	})
}

// UniqueFolder is like UniqueFile, except the suffix always goes at the end.
func UniqueFolder(dir, name string) (string, error) {
	return unique(dir, name, func(n int) string {
		return fmt.Sprintf("%s (%d)", name, n)
	})
}

func unique(dir, name string, nth func(int) string) (string, error) {
	if name == "" {
		return "", &FilesystemError{Op: "name", Path: dir, Err: fmt.Errorf("empty file name")}
	}

	candidate := name
	for n := 2; ; n++ {
		p := filepath.Join(dir, candidate)
		_, err := os.Lstat(p)
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		if err != nil {
			return "", &FilesystemError{Op: "stat", Path: p, Err: err}
		}
		candidate = nth(n)
	}
}

// attachmentFileName is the scrubbed attachment name, with an extension derived from its MIME type
// when the name has none.
func attachmentFileName(a smartsheet.Attachment) string {
	name := Scrub(a.Name)
	if _, ext := splitExtension(name); ext != "" || a.MimeType == "" {
		return name
	}
	if m := mimetype.Lookup(a.MimeType); m != nil && m.Extension() != "" {
		return name + m.Extension()
	}
	return name
}

// addSniffedExtension gives a downloaded file that has no extension one that matches its
// contents, and returns the new path.  Content that can't be told apart from arbitrary bytes
// leaves the file as it is.
func addSniffedExtension(path string) (string, error) {
	name := filepath.Base(path)
	if _, ext := splitExtension(name); ext != "" {
		return path, nil
	}

	m, err := mimetype.DetectFile(path)
	if err != nil {
		return path, &FilesystemError{Op: "read", Path: path, Err: err}
	}
	if m.Extension() == "" {
		return path, nil
	}

	dir := filepath.Dir(path)
	for {
		dest, err := UniqueFile(dir, name+m.Extension())
		if err != nil {
			return path, err
		}
		// another worker may have taken the name since.
		if err := reserveFile(dest); err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return path, err
		}
		if err := os.Rename(path, dest); err != nil {
			_ = os.Remove(dest)
			return path, &FilesystemError{Op: "rename", Path: path, Err: err}
		}
		return dest, nil
	}
}
