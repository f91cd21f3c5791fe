package ado

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/core"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/work"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/workitemtracking"

	"github.com/tuannvm/workitem-qa/internal/models"
)

const treeDepth = 5

func (c *Client) listProjects(ctx context.Context, api *APIs) ([]models.MetadataEntry, error) {
	var out []models.MetadataEntry
	args := core.GetProjectsArgs{}
	for {
		page, err := api.Core.GetProjects(ctx, args)
		if err != nil {
			return nil, err
		}
		if page == nil {
			return out, nil
		}
		for _, p := range page.Value {
			out = appendNamed(out, models.MetadataProjects, uuidString(p.Id), str(p.Name))
		}
		if page.ContinuationToken == "" {
			return out, nil
		}
		token, err := strconv.Atoi(page.ContinuationToken)
		if err != nil {
			return out, nil
		}
		args.ContinuationToken = &token
	}
}

func (c *Client) listTeams(ctx context.Context, api *APIs) ([]models.MetadataEntry, error) {
	teams, err := api.Core.GetTeams(ctx, core.GetTeamsArgs{ProjectId: &c.project})
	if err != nil || teams == nil {
		return nil, err
	}
	out := make([]models.MetadataEntry, 0, len(*teams))
	for _, t := range *teams {
		out = appendNamed(out, models.MetadataTeams, uuidString(t.Id), str(t.Name))
	}
	return out, nil
}

func (c *Client) listTags(ctx context.Context, api *APIs) ([]models.MetadataEntry, error) {
	tags, err := api.WIT.GetTags(ctx, workitemtracking.GetTagsArgs{Project: &c.project})
	if err != nil || tags == nil {
		return nil, err
	}
	out := make([]models.MetadataEntry, 0, len(*tags))
	for _, t := range *tags {
		out = appendNamed(out, models.MetadataTags, uuidString(t.Id), str(t.Name))
	}
	return out, nil
}

func (c *Client) workItemTypes(ctx context.Context, api *APIs) ([]workitemtracking.WorkItemType, error) {
	types, err := api.WIT.GetWorkItemTypes(ctx, workitemtracking.GetWorkItemTypesArgs{Project: &c.project})
	if err != nil || types == nil {
		return nil, err
	}
	return *types, nil
}

func (c *Client) listTypes(ctx context.Context, api *APIs) ([]models.MetadataEntry, error) {
	types, err := c.workItemTypes(ctx, api)
	if err != nil {
		return nil, err
	}
	out := make([]models.MetadataEntry, 0, len(types))
	for _, t := range types {
		out = appendNamed(out, models.MetadataTypes, str(t.ReferenceName), str(t.Name))
	}
	return out, nil
}

// listStates collects the distinct state names across all work item types.
func (c *Client) listStates(ctx context.Context, api *APIs) ([]models.MetadataEntry, error) {
	types, err := c.workItemTypes(ctx, api)
	if err != nil {
		return nil, err
	}
	category := map[string]string{}
	for _, t := range types {
		if t.States == nil {
			continue
		}
		for _, st := range *t.States {
			name := str(st.Name)
			if _, seen := category[name]; name != "" && !seen {
				category[name] = str(st.Category)
			}
		}
	}
	names := make([]string, 0, len(category))
	for name := range category {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]models.MetadataEntry, 0, len(names))
	for _, name := range names {
		out = append(out, models.MetadataEntry{Name: name, Kind: models.MetadataStates, Extra: map[string]string{"category": category[name]}})
	}
	return out, nil
}

func (c *Client) listSprints(ctx context.Context, api *APIs) ([]models.MetadataEntry, error) {
	team := c.teamName()
	iterations, err := api.Work.GetTeamIterations(ctx, work.GetTeamIterationsArgs{Project: &c.project, Team: &team})
	if err != nil || iterations == nil {
		return nil, err
	}
	out := make([]models.MetadataEntry, 0, len(*iterations))
	for _, it := range *iterations {
		entry := models.MetadataEntry{
			ID:    uuidString(it.Id),
			Name:  str(it.Name),
			Path:  str(it.Path),
			Kind:  models.MetadataSprints,
			Extra: map[string]string{},
		}
		if a := it.Attributes; a != nil {
			entry.Extra["startDate"] = date(a.StartDate)
			entry.Extra["finishDate"] = date(a.FinishDate)
			if a.TimeFrame != nil {
				entry.Extra["timeFrame"] = string(*a.TimeFrame)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func (c *Client) listUsers(ctx context.Context, api *APIs) ([]models.MetadataEntry, error) {
	team := c.teamName()
	members, err := api.Core.GetTeamMembersWithExtendedProperties(ctx, core.GetTeamMembersWithExtendedPropertiesArgs{
		ProjectId: &c.project,
		TeamId:    &team,
	})
	if err != nil || members == nil {
		return nil, err
	}
	out := make([]models.MetadataEntry, 0, len(*members))
	for _, m := range *members {
		if m.Identity == nil || str(m.Identity.DisplayName) == "" {
			continue
		}
		out = append(out, models.MetadataEntry{
			ID:    str(m.Identity.Id),
			Name:  str(m.Identity.DisplayName),
			Kind:  models.MetadataUsers,
			Extra: map[string]string{"uniqueName": str(m.Identity.UniqueName)},
		})
	}
	return out, nil
}

// listAreas flattens the area classification tree.
func (c *Client) listAreas(ctx context.Context, api *APIs) ([]models.MetadataEntry, error) {
	depth := treeDepth
	group := workitemtracking.TreeStructureGroupValues.Areas
	root, err := api.WIT.GetClassificationNode(ctx, workitemtracking.GetClassificationNodeArgs{
		Project:        &c.project,
		StructureGroup: &group,
		Depth:          &depth,
	})
	if err != nil || root == nil {
		return nil, err
	}
	var out []models.MetadataEntry
	var walk func(n workitemtracking.WorkItemClassificationNode)
	walk = func(n workitemtracking.WorkItemClassificationNode) {
		id := ""
		if n.Id != nil {
			id = strconv.Itoa(*n.Id)
		}
		if name := str(n.Name); name != "" {
			out = append(out, models.MetadataEntry{ID: id, Name: name, Path: nodePath(str(n.Path)), Kind: models.MetadataAreas})
		}
		if n.Children != nil {
			for _, child := range *n.Children {
				walk(child)
			}
		}
	}
	walk(*root)
	return out, nil
}

// listSavedQueries returns the saved queries, skipping folders.
func (c *Client) listSavedQueries(ctx context.Context, api *APIs) ([]models.MetadataEntry, error) {
	depth := 2
	expand := workitemtracking.QueryExpandValues.Wiql
	items, err := api.WIT.GetQueries(ctx, workitemtracking.GetQueriesArgs{
		Project: &c.project,
		Depth:   &depth,
		Expand:  &expand,
	})
	if err != nil || items == nil {
		return nil, err
	}
	var out []models.MetadataEntry
	var walk func(q workitemtracking.QueryHierarchyItem)
	walk = func(q workitemtracking.QueryHierarchyItem) {
		if q.IsFolder == nil || !*q.IsFolder {
			entry := models.MetadataEntry{ID: uuidString(q.Id), Name: str(q.Name), Path: str(q.Path), Kind: models.MetadataSavedQueries}
			if text := str(q.Wiql); text != "" {
				entry.Extra = map[string]string{"wiql": text}
			}
			if entry.Name != "" {
				out = append(out, entry)
			}
		}
		if q.Children != nil {
			for _, child := range *q.Children {
				walk(child)
			}
		}
	}
	for _, q := range *items {
		walk(q)
	}
	return out, nil
}

func (c *Client) teamName() string {
	if c.team != "" {
		return c.team
	}
	return c.project + " Team"
}

// nodePath turns "\Proj\Area\Web" into "Proj\Web", the form WIQL expects.
func nodePath(p string) string {
	p = strings.TrimPrefix(p, `\`)
	parts := strings.Split(p, `\`)
	if len(parts) > 1 && (parts[1] == "Area" || parts[1] == "Iteration") {
		parts = append(parts[:1], parts[2:]...)
	}
	return strings.Join(parts, `\`)
}

func appendNamed(out []models.MetadataEntry, kind models.MetadataKind, id, name string) []models.MetadataEntry {
	if name == "" {
		return out
	}
	return append(out, models.MetadataEntry{ID: id, Name: name, Kind: kind})
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func date(t *azuredevops.Time) string {
	if t == nil || t.Time.IsZero() {
		return ""
	}
	return t.Time.UTC().Format(time.RFC3339)
}
