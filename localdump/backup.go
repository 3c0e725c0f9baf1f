package localdump

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"github.com/toothbrush/smartsheet-backup/internal/report"
	"github.com/toothbrush/smartsheet-backup/smartsheet"
	"golang.org/x/exp/maps"
)

// Backup copies content from the service into a local folder tree.  Attachments are handed to
// Poster; the caller drains it once the walk is done.
type Backup struct {
	// Service acts as the administrator; each member gets its own identity-bearing copy.
	Service  smartsheet.Service
	Poster   JobPoster
	Reporter *report.Reporter
	Clock    clock.Clock
	Logger   logrus.FieldLogger
}

func (b *Backup) validate() error {
	if b.Service == nil || b.Poster == nil || b.Reporter == nil {
		return fmt.Errorf("localdump: backup needs a service, a job poster and a reporter")
	}
	if b.Clock == nil {
		b.Clock = clock.WallClock
	}
	if b.Logger == nil {
		b.Logger = logrus.StandardLogger()
	}
	return nil
}

// BackupOrgTo backs up every active member of the organization into dir/<email>.  An existing dir
// is moved aside first.  It returns the number of active members.
func (b *Backup) BackupOrgTo(ctx context.Context, dir string) (int, error) {
	if err := b.validate(); err != nil {
		return 0, err
	}

	members, err := smartsheet.ListAllMembers(ctx, b.Service)
	if err != nil {
		return 0, err
	}

	if err := moveAsideAndCreate(dir, b.Clock.Now()); err != nil {
		return 0, err
	}

	skipped := map[smartsheet.UserStatus]int{}
	for i, member := range members {
		logger := b.Logger.WithField("member", member.Email)
		if member.Status != smartsheet.StatusActive {
			logger.Infof("Skipping member %d of %d, status is %s", i+1, len(members), member.Status)
			skipped[member.Status]++
			continue
		}

		logger.Infof("Backing up member %d of %d", i+1, len(members))
		if err := b.backupMember(ctx, dir, member, logger); err != nil {
			fields := logrus.Fields{"member": member.Email, "path": dir}
			if err := b.Reporter.Handle(report.ScopeMember, err, fields); err != nil {
				return 0, err
			}
		}
	}

	statuses := maps.Keys(skipped)
	slices.Sort(statuses)
	total := 0
	for _, status := range statuses {
		b.Logger.Infof("Skipped %d %s member(s)", skipped[status], status)
		total += skipped[status]
	}

	return len(members) - total, nil
}

func (b *Backup) backupMember(ctx context.Context, dir string, member smartsheet.User, logger logrus.FieldLogger) error {
	svc := b.Service.AssumeUser(member.Email)
	defer logger.Debug("Finished acting as member, back to administrator identity")

	return b.backupTo(ctx, svc, filepath.Join(dir, Scrub(member.Email)), logger)
}

// BackupTo backs up everything svc's identity can see into dir, replacing what was there.
func (b *Backup) BackupTo(ctx context.Context, svc smartsheet.Service, dir string) error {
	if err := b.validate(); err != nil {
		return err
	}
	return b.backupTo(ctx, svc, dir, b.Logger.WithField("member", svc.AssumedUser()))
}

func (b *Backup) backupTo(ctx context.Context, svc smartsheet.Service, dir string, logger logrus.FieldLogger) error {
	home, err := svc.GetHome(ctx)
	if err != nil {
		return err
	}

	if err := clearAndCreate(dir); err != nil {
		return err
	}
	sheetsDir := filepath.Join(dir, SheetsFolder)
	if err := createFolder(sheetsDir); err != nil {
		return err
	}
	workspacesDir := filepath.Join(dir, WorkspacesFolder)
	if err := createFolder(workspacesDir); err != nil {
		return err
	}

	w := &memberWalk{
		svc:      svc,
		member:   svc.AssumedUser(),
		poster:   b.Poster,
		reporter: b.Reporter,
		logger:   logger,
	}

	if err := w.saveSheets(ctx, sheetsDir, home.Sheets); err != nil {
		return err
	}
	if err := w.saveFolders(ctx, sheetsDir, home.Folders); err != nil {
		return err
	}

	workspaces := make([]smartsheet.Folder, 0, len(home.Workspaces))
	for _, ws := range home.Workspaces {
		workspaces = append(workspaces, ws.Folder)
	}
	return w.saveFolders(ctx, workspacesDir, workspaces)
}
