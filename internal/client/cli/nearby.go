package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/charasync/internal/client/nearby"
	"github.com/dmitrijs2005/charasync/internal/common"
)

// WhereAmI sets the observer position used by nearby and for new poses.
func (a *App) WhereAmI(_ context.Context, args []string) error {
	loc, pos, facing, err := parseObserver(args)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.observer = &nearby.Observer{Location: loc, Position: pos, Facing: facing}
	a.mu.Unlock()
	return nil
}

// Nearby lists the discovered poses. "watch" shows the view so the
// background index keeps it fresh and later listings read the ticked
// result; "hide" stops that. A number sets a new radius.
func (a *App) Nearby(_ context.Context, args []string) error {
	if len(args) > 1 {
		return errUsage
	}
	if len(args) == 1 {
		switch args[0] {
		case "watch":
			a.nearby.SetVisible(true)
			a.nearby.Refresh()
			a.printf("Watching nearby poses, refreshed every %s\n", a.nearby.Tick())
			return nil
		case "hide":
			a.nearby.SetVisible(false)
			a.printf("Stopped watching nearby poses\n")
			return nil
		}
		r, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("radius %q: %w", args[0], common.ErrValidationFailed)
		}
		opts := a.nearby.Options()
		opts.Radius = r
		a.nearby.SetOptions(opts)
	}
	if _, ok := a.currentObserver(); !ok {
		a.printf("Position unknown, use whereami first\n")
		return nil
	}

	var poses []nearby.Pose
	if a.nearby.Visible() && len(args) == 0 {
		poses = a.nearby.Poses()
	} else {
		poses = a.nearby.Refresh()
	}
	if len(poses) == 0 {
		a.printf("No poses nearby\n")
		return nil
	}
	for _, p := range poses {
		a.printf("%s\n", poseLine(p))
	}
	return nil
}
