package synthesizer

import (
	"strings"

	"github.com/tuannvm/workitem-qa/internal/models"
)

// Chart types and fields a visualization may use.
var (
	chartTypes  = map[string]bool{"pie": true, "bar": true, "table": true}
	chartFields = map[string]bool{"state": true, "type": true, "priority": true, "assignee": true}
)

// Distribution counts items by field. Items without a value are counted
// under "Unassigned" for the assignee and "None" otherwise.
func Distribution(items []models.WorkItem, field string) map[string]int {
	out := map[string]int{}
	for _, it := range items {
		var v string
		switch field {
		case "state":
			v = it.State
		case "type":
			v = it.Type
		case "priority":
			v = it.Priority
		case "assignee":
			v = it.AssignedTo
			if v == "" {
				v = "Unassigned"
			}
		}
		if v == "" {
			v = "None"
		}
		out[v]++
	}
	return out
}

// DefaultVisualizations derives charts from the raw data alone: the state
// distribution, plus priority when any item has one.
func DefaultVisualizations(items []models.WorkItem) []models.Visualization {
	if len(items) == 0 {
		return nil
	}
	out := []models.Visualization{{
		Type:  "pie",
		Title: "Work items by state",
		Field: "state",
		Data:  Distribution(items, "state"),
	}}
	for _, it := range items {
		if it.Priority != "" {
			out = append(out, models.Visualization{
				Type:  "bar",
				Title: "Work items by priority",
				Field: "priority",
				Data:  Distribution(items, "priority"),
			})
			break
		}
	}
	return out
}

// checkVisualizations drops unsupported charts and recomputes data from the
// items, so numbers never come from the model.
func checkVisualizations(in []models.Visualization, items []models.WorkItem) []models.Visualization {
	var out []models.Visualization
	seen := map[string]bool{}
	for _, v := range in {
		v.Type = strings.ToLower(strings.TrimSpace(v.Type))
		v.Field = strings.ToLower(strings.TrimSpace(v.Field))
		if !chartTypes[v.Type] {
			continue
		}
		if v.Type != "table" && !chartFields[v.Field] {
			continue
		}
		if v.Field != "" && !chartFields[v.Field] {
			continue
		}
		key := v.Type + "/" + v.Field
		if seen[key] {
			continue
		}
		seen[key] = true
		v.Data = nil
		if v.Field != "" {
			v.Data = Distribution(items, v.Field)
		}
		if v.Title == "" {
			v.Title = "Work items"
			if v.Field != "" {
				v.Title += " by " + v.Field
			}
		}
		out = append(out, v)
	}
	return out
}
