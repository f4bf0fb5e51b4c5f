package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/charasync/internal/models"
)

func (a *App) ListShared(_ context.Context, args []string) error {
	groups := a.catalog.GroupedByOwner(strings.Join(args, " "))
	if len(groups) == 0 {
		a.printf("Nothing shared with you\n")
		return nil
	}
	for _, g := range groups {
		a.printf("%s\n", g.OwnerID)
		for _, r := range g.Records {
			a.printf("  %s\n", recordLine(r))
		}
	}
	return nil
}

func (a *App) FetchMeta(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := a.requireOnline(); err != nil {
		return err
	}
	res, err := a.wait(ctx, a.orchestrator.FetchMeta(args[0]))
	if err != nil {
		return err
	}
	if meta, ok := res.(*models.RecordMeta); ok {
		a.printf("%s", metaDetails(meta))
	}
	return nil
}

// Download fetches the record behind a share code with its files.
func (a *App) Download(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := a.requireOnline(); err != nil {
		return err
	}
	res, err := a.wait(ctx, a.orchestrator.DownloadRecord(args[0]))
	if err != nil {
		return err
	}
	if rec, ok := res.(*models.CharaRecord); ok {
		a.printf("Downloaded %s with %d files\n", rec.Code(), len(rec.UniqueHashes()))
	}
	return nil
}

func (a *App) Favorite(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "list", "ls":
		favs, err := a.favorites.List(ctx)
		if err != nil {
			return err
		}
		if len(favs) == 0 {
			a.printf("No favorites\n")
		}
		for _, f := range favs {
			a.printf("%s  %s  %s\n", f.Code, f.CreatedAt.Format("2006-01-02"), f.Annotation)
		}
		return nil
	case "add":
		if len(args) != 2 {
			return errUsage
		}
		code, err := a.favorites.Add(ctx, args[1])
		if err != nil {
			return err
		}
		a.printf("Added %s\n", code)
		return nil
	case "note":
		if len(args) < 3 {
			return errUsage
		}
		code, err := models.ParseCode(args[1])
		if err != nil {
			return err
		}
		return a.favorites.Annotate(ctx, code, strings.Join(args[2:], " "))
	case "rm", "remove":
		if len(args) != 2 {
			return errUsage
		}
		code, err := models.ParseCode(args[1])
		if err != nil {
			return err
		}
		if err := a.favorites.Remove(ctx, code); err != nil {
			return fmt.Errorf("remove favorite: %w", err)
		}
		return nil
	}
	return errUsage
}
