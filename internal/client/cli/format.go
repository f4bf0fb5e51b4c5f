package cli

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dmitrijs2005/charasync/internal/client/nearby"
	"github.com/dmitrijs2005/charasync/internal/client/services"
	"github.com/dmitrijs2005/charasync/internal/models"
)

const timeLayout = "2006-01-02 15:04"

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func expiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format(timeLayout)
}

func recordLine(r *models.CharaRecord) string {
	return fmt.Sprintf("%s  %-12s %-9s %3d poses  %s",
		r.Code(), r.AccessRule, r.ShareRule, r.ActivePoses(), orDash(r.Description))
}

func recordDetails(r *models.CharaRecord, dirty string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Code:        %s\n", r.Code())
	fmt.Fprintf(&b, "Description: %s\n", orDash(r.Description))
	fmt.Fprintf(&b, "Access:      %s / %s\n", r.AccessRule, r.ShareRule)
	if len(r.AllowedUsers) > 0 {
		fmt.Fprintf(&b, "Users:       %s\n", strings.Join(r.AllowedUsers, ", "))
	}
	if len(r.AllowedGroups) > 0 {
		fmt.Fprintf(&b, "Groups:      %s\n", strings.Join(r.AllowedGroups, ", "))
	}
	fmt.Fprintf(&b, "Expires:     %s\n", expiry(r.ExpiresAt))
	fmt.Fprintf(&b, "Downloads:   %d\n", r.DownloadCount)
	fmt.Fprintf(&b, "Appearance:  %d bytes, %d files\n", len(r.Appearance), len(r.UniqueHashes()))
	for i, p := range r.Poses {
		if p.Cleared() {
			continue
		}
		where := ""
		if p.World != nil {
			where = fmt.Sprintf(" @ map %d (%.1f, %.1f, %.1f)", p.World.Location.MapID,
				p.World.Position.X, p.World.Position.Y, p.World.Position.Z)
		}
		fmt.Fprintf(&b, "Pose %d:      %s%s\n", i, orDash(p.Description), where)
	}
	if dirty != "" {
		fmt.Fprintf(&b, "Unsaved:     %s\n", dirty)
	}
	return b.String()
}

func metaDetails(m *models.RecordMeta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Code:         %s\n", models.Code{OwnerID: m.OwnerID, RecordID: m.ID})
	fmt.Fprintf(&b, "Description:  %s\n", orDash(m.Description))
	fmt.Fprintf(&b, "Updated:      %s\n", m.UpdatedAt.Local().Format(timeLayout))
	fmt.Fprintf(&b, "Expires:      %s\n", expiry(m.ExpiresAt))
	fmt.Fprintf(&b, "Contents:     appearance=%t files=%d poses=%d\n", m.HasAppearance, m.FileCount, m.PoseCount)
	fmt.Fprintf(&b, "Downloadable: %t\n", m.Downloadable)
	return b.String()
}

func joinHashes(hs []models.Hash) string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = string(h)
	}
	return strings.Join(out, ", ")
}

func operationLine(id string, kind services.OpKind, st services.OpStatus) string {
	line := fmt.Sprintf("%s  %-16s %s", id, kind, st.State)
	if st.Progress.Total > 0 {
		line += fmt.Sprintf("  %s %d/%d", st.Progress.Stage, st.Progress.Done, st.Progress.Total)
	}
	return line
}

func lobbyStatusLine(st services.LobbyStatus) string {
	if st.State != services.LobbyActive {
		line := string(st.State)
		if st.LastFailed != "" {
			line += ", last failed: " + st.LastFailed
		}
		return line
	}
	return fmt.Sprintf("%s in %s with %d members", st.State, st.LobbyID, st.Members)
}

func memberLine(m models.LobbyMember) string {
	var parts []string
	parts = append(parts, m.UserID)
	if m.World != nil {
		p := m.World.Data.Position
		parts = append(parts, fmt.Sprintf("map %d (%.1f, %.1f, %.1f)", m.World.Data.Location.MapID, p.X, p.Y, p.Z))
	}
	if m.Appearance != nil {
		state := "ready"
		if m.Appearance.Pending {
			state = "pending"
		}
		parts = append(parts, fmt.Sprintf("appearance %d bytes %s", len(m.Appearance.Data), state))
	}
	if m.Actor != nil {
		parts = append(parts, fmt.Sprintf("actor %q", m.Actor.Name))
	}
	return strings.Join(parts, "  ")
}

func poseLine(p nearby.Pose) string {
	owner := p.OwnerID
	if p.Own {
		owner = "you"
	}
	deg := p.Bearing * 180 / math.Pi
	return fmt.Sprintf("%6.1fm %+4.0f°  %s  %s#%d  %s", p.Distance, deg, owner, p.RecordID, p.PoseIndex, orDash(p.Pose.Description))
}
