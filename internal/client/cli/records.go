package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/charasync/internal/client/services"
	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/models"
)

// wait blocks on op and returns its result.
func (a *App) wait(ctx context.Context, op *services.Operation) (any, error) {
	res, err := op.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op.Kind, op.ID, err)
	}
	return res, nil
}

func (a *App) requireOnline() error {
	if a.mode() != ModeOnline {
		return fmt.Errorf("offline: %w", common.ErrTransportFailure)
	}
	return nil
}

func (a *App) ListRecords(_ context.Context, _ []string) error {
	recs := a.records.Records()
	if len(recs) == 0 {
		a.printf("No records\n")
		return nil
	}
	for _, r := range recs {
		marker := " "
		if e, ok := a.records.Edit(r.ID); ok && e.IsDirty() {
			marker = "*"
		}
		a.printf("%s %s\n", marker, recordLine(r))
	}
	return nil
}

func (a *App) CreateRecord(ctx context.Context, _ []string) error {
	if err := a.requireOnline(); err != nil {
		return err
	}
	if left := a.records.CreateCooldownLeft(); left > 0 {
		return fmt.Errorf("create again in %s: %w", left.Round(time.Second), common.ErrRateLimited)
	}
	res, err := a.wait(ctx, a.orchestrator.CreateRecord())
	if err != nil {
		return err
	}
	id, _ := res.(string)
	if rec, ok := a.records.Get(id); ok {
		a.printf("Created record %s, share code %s\n", id, rec.Code())
	}
	return nil
}

// working returns the record as it would be saved: the open edit if any,
// the canonical copy otherwise.
func (a *App) working(id string) (*models.CharaRecord, error) {
	if e, ok := a.records.Edit(id); ok {
		return e.Record(), nil
	}
	rec, ok := a.records.Get(id)
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, common.ErrNotFound)
	}
	return rec, nil
}

func (a *App) ShowRecord(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	rec, err := a.working(args[0])
	if err != nil {
		return err
	}
	dirty := ""
	if e, ok := a.records.Edit(rec.ID); ok && e.IsDirty() {
		dirty = e.Dirty().String()
	}
	a.printf("%s", recordDetails(rec, dirty))
	return nil
}

func (a *App) Describe(_ context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	e, err := a.records.BeginEdit(args[0])
	if err != nil {
		return err
	}
	text := strings.Join(args[1:], " ")
	if text == "" {
		if text, err = promptText(a.reader, "Enter description", a.out); err != nil {
			return err
		}
	}
	e.SetDescription(text)
	return nil
}

func (a *App) Expire(_ context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	at, err := parseExpiry(args[1], time.Now())
	if err != nil {
		return err
	}
	e, err := a.records.BeginEdit(args[0])
	if err != nil {
		return err
	}
	e.SetExpiresAt(at)
	return nil
}

func (a *App) SetAccess(_ context.Context, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	ar, sr, err := parseAccess(args[1], args[2])
	if err != nil {
		return err
	}
	e, err := a.records.BeginEdit(args[0])
	if err != nil {
		return err
	}
	if err := e.SetAccessRule(ar); err != nil {
		return err
	}
	return e.SetShareRule(sr)
}

func (a *App) Allow(_ context.Context, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	group, err := identityKind(args[1])
	if err != nil {
		return err
	}
	if group {
		return a.records.AddAllowedGroup(args[0], args[2])
	}
	return a.records.AddAllowedUser(args[0], args[2])
}

func (a *App) Deny(_ context.Context, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	group, err := identityKind(args[1])
	if err != nil {
		return err
	}
	var removed bool
	if group {
		removed, err = a.records.RemoveAllowedGroup(args[0], args[2])
	} else {
		removed, err = a.records.RemoveAllowedUser(args[0], args[2])
	}
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%s is not allowed: %w", args[2], common.ErrNotFound)
	}
	return nil
}

// SetAppearance imports the referenced files into the file cache and
// uploads the new appearance right away.
func (a *App) SetAppearance(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	if err := a.requireOnline(); err != nil {
		return err
	}
	payload, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	files := make([]models.FileEntry, 0, len(args)-2)
	for _, arg := range args[2:] {
		gamePath, local, err := parseFileArg(arg)
		if err != nil {
			return err
		}
		h, err := a.files.Import(local)
		if err != nil {
			return err
		}
		files = append(files, models.FileEntry{GamePath: gamePath, Hash: h})
	}

	if err := a.records.SetAppearance(ctx, args[0], payload, files); err != nil {
		return err
	}
	a.printf("Appearance set with %d files; run 'restore %s' to upload missing files\n", len(files), args[0])
	return nil
}

func (a *App) Pose(_ context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	e, err := a.records.BeginEdit(args[1])
	if err != nil {
		return err
	}

	switch args[0] {
	case "add":
		p := models.PoseEntry{Description: strings.Join(args[2:], " ")}
		if obs, ok := a.currentObserver(); ok {
			p.World = &models.WorldData{Location: obs.Location, Position: obs.Position, Facing: obs.Facing}
		}
		i, err := e.AddPose(p)
		if err != nil {
			return err
		}
		a.printf("Added pose %d\n", i)
		return nil
	case "clear":
		if len(args) != 3 {
			return errUsage
		}
		i, err := strconv.Atoi(args[2])
		if err != nil {
			return errUsage
		}
		return e.ClearPose(i)
	}
	return errUsage
}

func (a *App) Undo(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	e, ok := a.records.Edit(args[0])
	if !ok {
		return fmt.Errorf("record %s has no open edit: %w", args[0], common.ErrNotFound)
	}
	e.UndoAll()
	a.records.Deselect(args[0])
	return nil
}

// Save uploads the pending changes of a record and then any files the
// server is still missing for it.
func (a *App) Save(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := a.requireOnline(); err != nil {
		return err
	}
	res, err := a.wait(ctx, a.orchestrator.UploadRecord(args[0]))
	if err != nil {
		return err
	}
	a.printRestore(res)
	return nil
}

func (a *App) RestoreFiles(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := a.requireOnline(); err != nil {
		return err
	}
	res, err := a.wait(ctx, a.orchestrator.RestoreFiles(args[0]))
	if err != nil {
		return err
	}
	a.printRestore(res)
	return nil
}

func (a *App) printRestore(res any) {
	r, ok := res.(services.RestoreResult)
	if !ok {
		return
	}
	a.printf("Uploaded %d files\n", len(r.Uploaded))
	if len(r.Unavailable) > 0 {
		a.printf("Not in the local cache, the record stays undownloadable: %s\n", joinHashes(r.Unavailable))
	}
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := a.requireOnline(); err != nil {
		return err
	}
	ok := confirm(a.reader, "Delete record "+args[0]+"? This cannot be undone", a.out)
	if err := a.records.Delete(ctx, args[0], ok); err != nil {
		return err
	}
	a.printf("Deleted\n")
	return nil
}

// Refresh downloads the owned and the shared records.
func (a *App) Refresh(ctx context.Context, _ []string) error {
	if err := a.requireOnline(); err != nil {
		return err
	}
	owned, err := a.orchestrator.DownloadAllOwned()
	if err != nil {
		return err
	}
	shared, err := a.orchestrator.DownloadAllShared()
	if err != nil {
		return err
	}
	if _, err := a.wait(ctx, owned); err != nil {
		return err
	}
	if _, err := a.wait(ctx, shared); err != nil {
		return err
	}
	a.printf("%d owned, %d shared records\n", len(a.records.Records()), len(a.catalog.Records()))
	return nil
}

func (a *App) Operations(_ context.Context, _ []string) error {
	ops := a.orchestrator.Running()
	if len(ops) == 0 {
		a.printf("No running operations\n")
		return nil
	}
	for _, op := range ops {
		a.printf("%s\n", operationLine(op.ID, op.Kind, op.Status()))
	}
	return nil
}

func (a *App) CancelOperation(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	op, ok := a.orchestrator.Get(args[0])
	if !ok {
		return fmt.Errorf("operation %s: %w", args[0], common.ErrNotFound)
	}
	op.Cancel()
	return nil
}
