package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/wiql"
)

var commandRegex = regexp.MustCompile(`(?:^|\s)/([a-zA-Z_]+)`)

// Commands lists the recognized slash commands with a short usage string.
var Commands = map[string]string{
	"state":       "/state <state>",
	"assigned_to": "/assigned_to <user|me>",
	"created_by":  "/created_by <user|me>",
	"type":        "/type <work item type>",
	"tag":         "/tag <tag>",
	"sprint":      "/sprint <sprint name or path|current>",
	"iteration":   "/iteration <iteration path>",
	"area":        "/area <area path>",
	"title":       "/title <text>",
	"description": "/description <text>",
	"id":          "/id <work item id>",
	"project":     "/project <project>",
	"team":        "/team <team>",
	"board":       "/board <board>",
	"priority":    "/priority <1-4>",
	"changed":     "/changed <days>",
	"mine":        "/mine",
	"queries":     "/queries",
	"help":        "/help",
}

var commandAliases = map[string]string{
	"assignee": "assigned_to",
	"assigned": "assigned_to",
	"creator":  "created_by",
	"author":   "created_by",
	"tags":     "tag",
	"label":    "tag",
	"recent":   "changed",
	"me":       "mine",
	"my":       "mine",
	"saved":    "queries",
	"item":     "id",
	"issue":    "id",
}

// ParseCommand recognizes slash-command input such as "/state Active /type Bug".
// It reports false when text does not start with a known command, leaving it
// to the other classifier paths.
func ParseCommand(text string) (models.Intent, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return models.Intent{}, false
	}
	locs := commandRegex.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 || locs[0][0] != 0 {
		return models.Intent{}, false
	}

	in := models.Intent{
		Type:         models.IntentCommand,
		DataRequired: true,
		Complexity:   models.ComplexitySimple,
		Confidence:   1.0,
		Source:       "fast_path",
	}
	for i, loc := range locs {
		name := strings.ToLower(text[loc[2]:loc[3]])
		if alias, ok := commandAliases[name]; ok {
			name = alias
		}
		if _, known := Commands[name]; !known {
			return models.Intent{}, false
		}
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		arg := strings.Trim(strings.TrimSpace(text[loc[1]:end]), `"'`)
		if !applyCommand(&in, name, arg) {
			return models.Intent{}, false
		}
		if arg != "" {
			in.Entities = append(in.Entities, arg)
		}
	}
	if in.Scope == "" {
		in.Scope = models.ScopeGlobal
	}
	return in, true
}

// applyCommand fills one slot. The first command decides the scope. It
// reports false for a missing or malformed argument.
func applyCommand(in *models.Intent, name, arg string) bool {
	needsArg := name != "mine" && name != "queries" && name != "help"
	if needsArg && arg == "" {
		return false
	}
	setScope := func(s models.Scope) {
		if in.Scope == "" {
			in.Scope = s
		}
	}
	switch name {
	case "state":
		in.States = append(in.States, splitList(arg)...)
		setScope(models.ScopeState)
	case "assigned_to":
		in.UserIdentifier = normalizeUser(arg)
		setScope(models.ScopeAssignee)
	case "created_by":
		in.UserIdentifier = normalizeUser(arg)
		setScope(models.ScopeCreator)
	case "mine":
		in.UserIdentifier = wiql.MacroMe
		setScope(models.ScopeAssignee)
	case "type":
		in.Types = append(in.Types, splitList(arg)...)
		setScope(models.ScopeType)
	case "tag":
		in.Tags = append(in.Tags, splitList(arg)...)
		setScope(models.ScopeTag)
	case "sprint":
		in.SprintIdentifier = normalizeSprint(arg)
		setScope(models.ScopeSprint)
	case "iteration":
		in.SprintIdentifier = normalizeSprint(arg)
		setScope(models.ScopeIteration)
	case "area":
		in.AreaIdentifier = arg
		setScope(models.ScopeArea)
	case "title":
		setScope(models.ScopeTitle)
	case "description":
		setScope(models.ScopeDescription)
	case "id":
		id := strings.TrimPrefix(arg, "#")
		if !issueIDRegex.MatchString(id) {
			return false
		}
		in.IssueID = strings.ToUpper(id)
		setScope(models.ScopeIssue)
	case "project":
		in.ProjectIdentifier = arg
		setScope(models.ScopeProject)
	case "team":
		in.TeamIdentifier = arg
		setScope(models.ScopeTeam)
	case "board":
		in.BoardIdentifier = arg
		setScope(models.ScopeBoard)
	case "priority":
		in.Priority = strings.TrimPrefix(strings.ToLower(arg), "p")
		setScope(models.ScopePriority)
	case "changed":
		days, err := strconv.Atoi(strings.Fields(arg)[0])
		if err != nil || days < 0 {
			return false
		}
		in.DateRange = &models.DateRange{From: wiql.Today(days)}
		setScope(models.ScopeDateRange)
	case "queries":
		setScope(models.ScopeSavedQuery)
	case "help":
		in.Type = models.IntentQuestion
		in.DataRequired = false
		setScope(models.ScopeGlobal)
	}
	return true
}

var issueIDRegex = regexp.MustCompile(`^(?:\d+|[A-Za-z][A-Za-z0-9]+-\d+)$`)

func splitList(arg string) []string {
	var out []string
	for _, part := range strings.Split(arg, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeUser(u string) string {
	switch strings.ToLower(strings.TrimSpace(u)) {
	case "me", "@me", "myself", "mine", "i":
		return wiql.MacroMe
	}
	return strings.TrimSpace(u)
}

func normalizeSprint(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "current", "this", "@currentiteration", "current sprint", "this sprint":
		return wiql.MacroCurrentIteration
	}
	return strings.TrimSpace(s)
}
