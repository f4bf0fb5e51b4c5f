package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/models"
)

func (a *App) commandSet() map[string]command {
	return map[string]command{
		"register": {usage: "register", public: true, run: a.Register},
		"login":    {usage: "login", public: true, run: a.Login},
		"logout":   {usage: "logout", run: a.Logout},

		"records":    {usage: "records", run: a.ListRecords},
		"create":     {usage: "create", run: a.CreateRecord},
		"show":       {usage: "show <record-id>", run: a.ShowRecord},
		"describe":   {usage: "describe <record-id> [text...]", run: a.Describe},
		"expire":     {usage: "expire <record-id> <duration|never>", run: a.Expire},
		"access":     {usage: "access <record-id> <specified|direct_pairs|all_pairs|everyone> <code_only|shared>", run: a.SetAccess},
		"allow":      {usage: "allow <record-id> user|group <id>", run: a.Allow},
		"deny":       {usage: "deny <record-id> user|group <id>", run: a.Deny},
		"appearance": {usage: "appearance <record-id> <payload-file> [game/path=local-file ...]", run: a.SetAppearance},
		"pose":       {usage: "pose add <record-id> <description...> | pose clear <record-id> <index>", run: a.Pose},
		"undo":       {usage: "undo <record-id>", run: a.Undo},
		"save":       {usage: "save <record-id>", run: a.Save},
		"delete":     {usage: "delete <record-id>", run: a.Delete},
		"restore":    {usage: "restore <record-id>", run: a.RestoreFiles},
		"refresh":    {usage: "refresh", run: a.Refresh},
		"ops":        {usage: "ops", run: a.Operations},
		"cancel":     {usage: "cancel <operation-id>", run: a.CancelOperation},

		"shared":   {usage: "shared [filter]", run: a.ListShared},
		"meta":     {usage: "meta <code>", run: a.FetchMeta},
		"download": {usage: "download <code>", run: a.Download},
		"fav":      {usage: "fav add <code> | fav note <code> <text...> | fav rm <code> | fav list", run: a.Favorite},

		"relations": {usage: "relations", run: a.Relations},
		"pair":      {usage: "pair <user>", run: a.Pair},
		"pause":     {usage: "pause <user>", run: a.PausePair},
		"resume":    {usage: "resume <user>", run: a.ResumePair},
		"group":     {usage: "group <group-id>", run: a.JoinGroup},

		"lobby": {usage: "lobby create | join <id> | leave | status | members | push <text...> | assign <user> <index> <name> | apply <user> | spawn <user>", run: a.Lobby},

		"whereami": {usage: "whereami <server> <map> <instance> <x> <y> <z> [facing]", run: a.WhereAmI},
		"nearby":   {usage: "nearby [watch|hide|radius]", run: a.Nearby},
	}
}

// identityKind parses the "user" or "group" selector of allow and deny.
func identityKind(s string) (group bool, err error) {
	switch strings.ToLower(s) {
	case "user", "u":
		return false, nil
	case "group", "g":
		return true, nil
	}
	return false, errUsage
}

func parseAccess(access, share string) (models.AccessRule, models.ShareRule, error) {
	ar, sr := models.AccessRule(strings.ToLower(access)), models.ShareRule(strings.ToLower(share))
	if !ar.Valid() || !sr.Valid() {
		return "", "", fmt.Errorf("access %q share %q: %w", access, share, common.ErrValidationFailed)
	}
	if !models.ValidRuleCombination(ar, sr) {
		return "", "", fmt.Errorf("%s records cannot be shared with everyone: %w", sr, common.ErrValidationFailed)
	}
	return ar, sr, nil
}

// parseExpiry reads "never" or a Go duration from now.
func parseExpiry(s string, now time.Time) (*time.Time, error) {
	if strings.EqualFold(s, "never") {
		return nil, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("expiry %q: %w", s, common.ErrValidationFailed)
	}
	t := now.Add(d).UTC()
	return &t, nil
}

// parseFileArg splits "game/path=local-file".
func parseFileArg(s string) (gamePath, local string, err error) {
	gamePath, local, ok := strings.Cut(s, "=")
	if !ok || gamePath == "" || local == "" {
		return "", "", fmt.Errorf("file %q must be game/path=local-file: %w", s, common.ErrValidationFailed)
	}
	return gamePath, local, nil
}

func parseObserver(args []string) (models.Location, models.Vec3, float64, error) {
	if len(args) < 6 || len(args) > 7 {
		return models.Location{}, models.Vec3{}, 0, errUsage
	}
	ids := make([]uint32, 3)
	for i := range ids {
		v, err := strconv.ParseUint(args[i], 10, 32)
		if err != nil {
			return models.Location{}, models.Vec3{}, 0, fmt.Errorf("%q: %w", args[i], common.ErrValidationFailed)
		}
		ids[i] = uint32(v)
	}
	nums := make([]float64, len(args)-3)
	for i := range nums {
		v, err := strconv.ParseFloat(args[3+i], 64)
		if err != nil {
			return models.Location{}, models.Vec3{}, 0, fmt.Errorf("%q: %w", args[3+i], common.ErrValidationFailed)
		}
		nums[i] = v
	}
	var facing float64
	if len(nums) == 4 {
		facing = nums[3]
	}
	loc := models.Location{ServerID: ids[0], MapID: ids[1], InstanceID: ids[2]}
	return loc, models.Vec3{X: nums[0], Y: nums[1], Z: nums[2]}, facing, nil
}
