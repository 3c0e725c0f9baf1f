package localdump

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/toothbrush/smartsheet-backup/internal/report"
	"github.com/toothbrush/smartsheet-backup/smartsheet"
)

const (
	SheetsFolder     = "Sheets"
	WorkspacesFolder = "Workspaces"

	sheetExtension    = ".xls"
	attachmentsSuffix = " - attachments"
	linksSuffix       = " - non-file attachments.csv"
)

var linksHeader = []string{"Name", "URL", "AttachmentType"}

// memberWalk reproduces one member's tree.  svc already acts as that member.
type memberWalk struct {
	svc      smartsheet.Service
	member   string
	poster   JobPoster
	reporter *report.Reporter
	logger   logrus.FieldLogger
}

func (w *memberWalk) saveFolders(ctx context.Context, parent string, folders []smartsheet.Folder) error {
	for _, folder := range folders {
		if err := w.saveFolder(ctx, parent, folder); err != nil {
			fields := logrus.Fields{"member": w.member, "folder": folder.Name, "path": parent}
			if err := w.reporter.Handle(report.ScopeFolder, err, fields); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *memberWalk) saveFolder(ctx context.Context, parent string, folder smartsheet.Folder) error {
	dir, err := createUniqueFolder(parent, folder.Name)
	if err != nil {
		return err
	}
	w.logger.WithField("path", dir).Debug("Created folder")

	if err := w.saveSheets(ctx, dir, folder.Sheets); err != nil {
		return err
	}
	return w.saveFolders(ctx, dir, folder.Folders)
}

func (w *memberWalk) saveSheets(ctx context.Context, dir string, sheets []smartsheet.Sheet) error {
	for _, sheet := range sheets {
		if err := w.saveSheet(ctx, dir, sheet); err != nil {
			fields := logrus.Fields{"member": w.member, "sheet": sheet.Name, "path": dir}
			if err := w.reporter.Handle(report.ScopeSheet, err, fields); err != nil {
				return err
			}
		}
	}
	return nil
}

// saveSheet writes the sheet file, then an attachments folder next to it holding the sheet's file
// attachments and a CSV listing the rest.
func (w *memberWalk) saveSheet(ctx context.Context, dir string, ref smartsheet.Sheet) error {
	logger := w.logger.WithField("sheet", ref.Name)
	if ref.AccessLevel != smartsheet.AccessOwner {
		logger.Debugf("Skipping sheet, access level is %s", ref.AccessLevel)
		return nil
	}

	sheetFile, err := w.writeSheetFile(ctx, dir, ref)
	if err != nil {
		return err
	}
	logger.WithField("path", sheetFile).Info("Saved sheet")

	sheet, err := w.svc.GetSheet(ctx, ref.Name, ref.ID)
	if err != nil {
		return err
	}

	attachments := flattenAttachments(sheet)
	if len(attachments) == 0 {
		return nil
	}

	attachmentsDir := filepath.Join(dir, StripExtension(filepath.Base(sheetFile))+attachmentsSuffix)
	if err := createFolder(attachmentsDir); err != nil {
		return err
	}

	links := &linkSummary{path: filepath.Join(attachmentsDir, Scrub(ref.Name)+linksSuffix)}
	for _, a := range attachments {
		if err := w.saveAttachment(ctx, ref, a, attachmentsDir, links); err != nil {
			fields := logrus.Fields{"member": w.member, "sheet": ref.Name, "attachment": a.Name, "path": attachmentsDir}
			if err := w.reporter.Handle(report.ScopeAttachment, err, fields); err != nil {
				return err
			}
		}
	}

	return nil
}

func (w *memberWalk) writeSheetFile(ctx context.Context, dir string, ref smartsheet.Sheet) (_ string, err error) {
	body, err := w.svc.ExportSheet(ctx, ref.Name, ref.ID)
	if err != nil {
		return "", err
	}
	defer body.Close()

	path, err := UniqueFile(dir, Scrub(ref.Name)+sheetExtension)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return "", &FilesystemError{Op: "create file", Path: path, Err: err}
	}
	defer func() {
		if err != nil {
			// a truncated export must not pass for a backup.
			removeIncomplete(path, w.logger)
		}
	}()
	defer f.Close()

	bw := bufio.NewWriterSize(f, AttachmentBufferSize)
	if _, err := io.Copy(bw, body); err != nil {
		return "", &smartsheet.ItemError{Type: smartsheet.ItemSheet, Name: ref.Name, ID: ref.ID, Err: err}
	}
	if err := bw.Flush(); err != nil {
		return "", &FilesystemError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &FilesystemError{Op: "close file", Path: path, Err: err}
	}

	return path, nil
}

func (w *memberWalk) saveAttachment(ctx context.Context, sheet smartsheet.Sheet, a smartsheet.Attachment, dir string, links *linkSummary) error {
	if a.AttachmentType != smartsheet.AttachmentFile {
		return links.add(a)
	}

	target, err := UniqueFile(dir, attachmentFileName(a))
	if err != nil {
		return err
	}
	// claim the name now, the download comes later.
	if err := reserveFile(target); err != nil {
		return err
	}

	err = w.poster.Post(ctx, Job{
		Service:        w.svc,
		Member:         w.member,
		SheetName:      sheet.Name,
		SheetID:        sheet.ID,
		AttachmentName: a.Name,
		AttachmentID:   a.ID,
		Target:         target,
	})
	if err != nil {
		removeIncomplete(target, w.logger)
	}
	return err
}

// flattenAttachments collects attachments from the sheet, its discussions, its rows, and the rows'
// discussions, in that order.
func flattenAttachments(sheet *smartsheet.Sheet) []smartsheet.Attachment {
	attachments := append([]smartsheet.Attachment{}, sheet.Attachments...)
	attachments = append(attachments, discussionAttachments(sheet.Discussions)...)
	for _, row := range sheet.Rows {
		attachments = append(attachments, row.Attachments...)
		attachments = append(attachments, discussionAttachments(row.Discussions)...)
	}
	return attachments
}

func discussionAttachments(discussions []smartsheet.Discussion) []smartsheet.Attachment {
	var attachments []smartsheet.Attachment
	for _, d := range discussions {
		attachments = append(attachments, d.CommentAttachments...)
	}
	return attachments
}

// linkSummary appends non-file attachments to a CSV file, writing the header before the first row.
type linkSummary struct {
	path string
}

func (l *linkSummary) add(a smartsheet.Attachment) error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0640)
	if err != nil {
		return &FilesystemError{Op: "open file", Path: l.path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &FilesystemError{Op: "stat", Path: l.path, Err: err}
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(linksHeader); err != nil {
			return &FilesystemError{Op: "write", Path: l.path, Err: err}
		}
	}
	if err := w.Write([]string{a.Name, a.URL, string(a.AttachmentType)}); err != nil {
		return &FilesystemError{Op: "write", Path: l.path, Err: err}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &FilesystemError{Op: "write", Path: l.path, Err: err}
	}

	return f.Close()
}

