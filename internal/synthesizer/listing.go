package synthesizer

import (
	"fmt"
	"strings"

	"github.com/tuannvm/workitem-qa/internal/models"
)

var kindLabels = map[models.MetadataKind][2]string{
	models.MetadataProjects:     {"project", "projects"},
	models.MetadataTeams:        {"team", "teams"},
	models.MetadataUsers:        {"user", "users"},
	models.MetadataStates:       {"state", "states"},
	models.MetadataTypes:        {"work item type", "work item types"},
	models.MetadataTags:         {"tag", "tags"},
	models.MetadataSprints:      {"sprint", "sprints"},
	models.MetadataAreas:        {"area", "areas"},
	models.MetadataSavedQueries: {"saved query", "saved queries"},
}

// Listing formats metadata results without the completion service.
func Listing(in Input) models.OrchestratedResponse {
	entries := in.Results.MetadataEntries()
	kind := listingKind(entries)
	resp := models.OrchestratedResponse{
		Success:     true,
		RawData:     []models.WorkItem{},
		Listing:     entries,
		Suggestions: listingSuggestions(kind, entries),
	}

	singular, plural := "entry", "entries"
	if l, ok := kindLabels[kind]; ok {
		singular, plural = l[0], l[1]
	}
	switch len(entries) {
	case 0:
		resp.Summary = fmt.Sprintf("No %s were found.", plural)
		return resp
	case 1:
		resp.Summary = fmt.Sprintf("Found 1 %s:", singular)
	default:
		resp.Summary = fmt.Sprintf("Found %d %s:", len(entries), plural)
	}

	var b strings.Builder
	b.WriteString(resp.Summary)
	for i, e := range entries {
		if i == maxListingLines {
			fmt.Fprintf(&b, "\n... and %d more", len(entries)-maxListingLines)
			break
		}
		b.WriteString("\n- " + e.Name)
		if e.Path != "" && e.Path != e.Name {
			b.WriteString(" (" + e.Path + ")")
		}
	}
	resp.Summary = b.String()
	return resp
}

// listingKind is the common kind of entries, or "" when mixed.
func listingKind(entries []models.MetadataEntry) models.MetadataKind {
	var kind models.MetadataKind
	for i, e := range entries {
		if i == 0 {
			kind = e.Kind
			continue
		}
		if e.Kind != kind {
			return ""
		}
	}
	return kind
}

func listingSuggestions(kind models.MetadataKind, entries []models.MetadataEntry) []string {
	var out []string
	if len(entries) > 0 {
		first := entries[0].Name
		switch kind {
		case models.MetadataSprints:
			out = append(out, "Show active items in sprint "+first)
		case models.MetadataUsers:
			out = append(out, "Show items assigned to "+first)
		case models.MetadataAreas:
			out = append(out, "Show items in area "+first)
		case models.MetadataTags:
			out = append(out, "Show items tagged "+first)
		case models.MetadataStates:
			out = append(out, "Show items in state "+first)
		}
	}
	out = append(out, "Show items assigned to me", "Show recently changed items")
	return FilterSuggestions(out, maxSuggestions)
}
