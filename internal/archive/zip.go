// Package archive packs a finished backup folder into a single zip file.
package archive

import (
	"archive/zip"
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// ZipDir writes every regular file under dir into dest.  Entry names start with dir's base name,
// so unpacking the zip next to it recreates dir.  It returns the number of uncompressed bytes
// written.
func ZipDir(ctx context.Context, dir, dest string, logger logrus.FieldLogger) (int64, error) {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return 0, fmt.Errorf("archive: couldn't create %s: %w", dest, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	zw := zip.NewWriter(bw)

	root := filepath.Dir(dir)
	var total int64
	files := 0
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		if d.IsDir() {
			// keep empty folders, e.g. a member's empty Workspaces.
			_, err := zw.Create(name + "/")
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = name
		header.Method = zip.Deflate

		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		n, err := copyFile(w, path)
		if err != nil {
			return err
		}
		total += n
		files++
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("archive: couldn't zip %s: %w", dir, err)
	}

	if err := zw.Close(); err != nil {
		return total, fmt.Errorf("archive: couldn't finish %s: %w", dest, err)
	}
	if err := bw.Flush(); err != nil {
		return total, fmt.Errorf("archive: couldn't write %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		return total, fmt.Errorf("archive: couldn't close %s: %w", dest, err)
	}

	if logger != nil {
		logger.WithField("path", dest).Infof("Zipped %d files (%s)", files, humanize.Bytes(uint64(total)))
	}
	return total, nil
}

func copyFile(w io.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}
