package tracker

import (
	"regexp"
	"strings"
	"time"

	"github.com/tuannvm/workitem-qa/internal/common"
	"github.com/tuannvm/workitem-qa/internal/models"
)

// Field aliases, ADO reference name first, then Jira names.
var (
	aliasTitle       = []string{"System.Title", "summary", "title"}
	aliasType        = []string{"System.WorkItemType", "issuetype", "type"}
	aliasState       = []string{"System.State", "status", "state"}
	aliasAssignedTo  = []string{"System.AssignedTo", "assignee", "assignedTo"}
	aliasCreatedBy   = []string{"System.CreatedBy", "reporter", "creator", "createdBy"}
	aliasCreated     = []string{"System.CreatedDate", "created", "createdDate"}
	aliasChanged     = []string{"System.ChangedDate", "updated", "changedDate"}
	aliasClosed      = []string{"Microsoft.VSTS.Common.ClosedDate", "resolutiondate", "closedDate"}
	aliasPriority    = []string{"Microsoft.VSTS.Common.Priority", "priority"}
	aliasTags        = []string{"System.Tags", "labels", "tags"}
	aliasIteration   = []string{"System.IterationPath", "sprint", "iterationPath"}
	aliasArea        = []string{"System.AreaPath", "components", "areaPath"}
	aliasStoryPoints = []string{"Microsoft.VSTS.Scheduling.StoryPoints", "story_points", "customfield_10016", "storyPoints"}
	aliasDescription = []string{"System.Description", "description"}
)

// nested objects are reduced to the first of these keys that holds a string.
var displayKeys = []string{"displayName", "name", "value", "uniqueName", "key"}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02",
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)
var trailingID = regexp.MustCompile(`/workItems/(\d+)$`)

// MapWorkItems maps every raw record, preserving order.
func MapWorkItems(raws []RawItem) []models.WorkItem {
	out := make([]models.WorkItem, 0, len(raws))
	for _, raw := range raws {
		out = append(out, MapWorkItem(raw))
	}
	return out
}

// MapWorkItem translates one raw record into a WorkItem. It understands ADO
// records ({"id", "fields": {"System.Title", ...}, "relations"}) and Jira
// issues ({"key", "fields": {"summary", "status": {"name"}, ...}}).
func MapWorkItem(raw RawItem) models.WorkItem {
	fields, _ := raw["fields"].(map[string]interface{})
	if fields == nil {
		fields = raw
	}

	item := models.WorkItem{
		ID:            itemID(raw),
		Title:         lookup(fields, aliasTitle),
		Type:          lookup(fields, aliasType),
		State:         lookup(fields, aliasState),
		AssignedTo:    lookup(fields, aliasAssignedTo),
		CreatedBy:     lookup(fields, aliasCreatedBy),
		CreatedDate:   parseDate(lookup(fields, aliasCreated)),
		ChangedDate:   parseDate(lookup(fields, aliasChanged)),
		ClosedDate:    parseDate(lookup(fields, aliasClosed)),
		Priority:      lookup(fields, aliasPriority),
		Tags:          tags(fields),
		IterationPath: lookup(fields, aliasIteration),
		AreaPath:      lookup(fields, aliasArea),
		Description:   cleanText(lookup(fields, aliasDescription)),
		Relations:     relations(raw, fields),
		URL:           common.GetString(raw, "url", common.GetString(raw, "self", "")),
	}
	for _, key := range aliasStoryPoints {
		if f, ok := common.AsFloat(fields[key]); ok {
			item.StoryPoints = f
			break
		}
	}
	return item
}

func itemID(raw RawItem) string {
	if key := common.GetString(raw, "key", ""); key != "" {
		return key
	}
	return common.GetString(raw, "id", "")
}

func lookup(fields map[string]interface{}, aliases []string) string {
	for _, key := range aliases {
		if s := display(fields[key]); s != "" {
			return s
		}
	}
	return ""
}

func display(v interface{}) string {
	switch t := v.(type) {
	case map[string]interface{}:
		for _, k := range displayKeys {
			if s := common.AsString(t[k]); s != "" {
				return s
			}
		}
	case []interface{}:
		if len(t) > 0 {
			return display(t[len(t)-1])
		}
	default:
		return common.AsString(v)
	}
	return ""
}

func tags(fields map[string]interface{}) []string {
	for _, key := range aliasTags {
		switch v := fields[key].(type) {
		case string:
			var out []string
			for _, tag := range strings.Split(v, ";") {
				if tag = strings.TrimSpace(tag); tag != "" {
					out = append(out, tag)
				}
			}
			if len(out) > 0 {
				return out
			}
		case []interface{}:
			var out []string
			for _, tag := range v {
				if s := display(tag); s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

// relations collects linked item ids from ADO relation urls and Jira issue
// links.
func relations(raw RawItem, fields map[string]interface{}) []string {
	var out []string
	for _, rel := range common.GetMapSlice(raw, "relations") {
		if m := trailingID.FindStringSubmatch(common.GetString(rel, "url", "")); len(m) == 2 {
			out = append(out, m[1])
		}
	}
	for _, link := range common.GetMapSlice(fields, "issuelinks") {
		for _, side := range []string{"inwardIssue", "outwardIssue"} {
			if issue := common.GetMap(link, side); issue != nil {
				if key := common.GetString(issue, "key", ""); key != "" {
					out = append(out, key)
				}
			}
		}
	}
	for _, sub := range common.GetMapSlice(fields, "subtasks") {
		if key := common.GetString(sub, "key", ""); key != "" {
			out = append(out, key)
		}
	}
	return out
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func cleanText(s string) string {
	s = htmlTag.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
