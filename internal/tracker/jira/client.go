// Package jira is the Jira adapter of tracker.Client. WIQL bodies are
// translated to JQL and sent through the go-atlassian platform and agile
// clients.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ctreminiom/go-atlassian/v2/jira/agile"
	v2 "github.com/ctreminiom/go-atlassian/v2/jira/v2"
	model "github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"

	"github.com/tuannvm/workitem-qa/internal/common"
	"github.com/tuannvm/workitem-qa/internal/config"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/tracker"
)

const (
	maxResults = 200
	pageSize   = 50
)

var searchFields = []string{
	"summary", "issuetype", "status", "assignee", "reporter", "created", "updated",
	"resolutiondate", "priority", "labels", "components", "description", "issuelinks",
	"subtasks", "customfield_10016", "customfield_10020",
}

// Client talks to Jira through go-atlassian.
type Client struct {
	api        *v2.Client
	board      *agile.Client
	translator Translator
}

// NewClient creates a Jira client authenticated with username and API token.
func NewClient(cfg *config.Config) (*Client, error) {
	timeout := cfg.TrackerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	api, err := v2.New(httpClient, cfg.TrackerBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}
	api.Auth.SetBasicAuth(cfg.TrackerUsername, cfg.TrackerToken)

	board, err := agile.New(httpClient, cfg.TrackerBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira agile client: %w", err)
	}
	board.Auth.SetBasicAuth(cfg.TrackerUsername, cfg.TrackerToken)

	return &Client{api: api, board: board, translator: Translator{Project: cfg.TrackerProject}}, nil
}

// SearchItems translates the query to JQL and runs it.
func (c *Client) SearchItems(ctx context.Context, query string) ([]tracker.RawItem, error) {
	jql, err := c.translator.Scoped(query)
	if err != nil {
		return nil, fmt.Errorf("failed to translate query: %w", err)
	}
	result, resp, err := c.api.Issue.Search.Post(ctx, jql, searchFields, nil, 0, maxResults, "")
	if err != nil {
		return nil, wrap("search", resp, err)
	}
	// the typed scheme drops custom fields, the raw body keeps them
	var raw struct {
		Issues []tracker.RawItem `json:"issues"`
	}
	if err := decodeBody(resp, &raw); err != nil {
		return nil, err
	}
	if result != nil && len(raw.Issues) != len(result.Issues) {
		return nil, fmt.Errorf("search returned %d issues but decoded %d", len(result.Issues), len(raw.Issues))
	}
	for _, issue := range raw.Issues {
		normalizeSprint(issue)
	}
	return raw.Issues, nil
}

// GetItem fetches one issue by key or id.
func (c *Client) GetItem(ctx context.Context, id string) (tracker.RawItem, error) {
	_, resp, err := c.api.Issue.Get(ctx, strings.TrimPrefix(id, "#"), searchFields, nil)
	if err != nil {
		return nil, wrap("get issue", resp, err)
	}
	var raw tracker.RawItem
	if err := decodeBody(resp, &raw); err != nil {
		return nil, err
	}
	normalizeSprint(raw)
	return raw, nil
}

// ListMetadata maps metadata kinds to Jira. Teams have no equivalent.
func (c *Client) ListMetadata(ctx context.Context, kind models.MetadataKind) ([]models.MetadataEntry, error) {
	var (
		out  []models.MetadataEntry
		resp *model.ResponseScheme
		err  error
	)
	switch kind {
	case models.MetadataProjects:
		out, resp, err = c.listProjects(ctx)
	case models.MetadataStates:
		out, resp, err = c.listStates(ctx)
	case models.MetadataTypes:
		out, resp, err = c.listTypes(ctx)
	case models.MetadataUsers:
		out, resp, err = c.listUsers(ctx)
	case models.MetadataAreas:
		out, resp, err = c.listComponents(ctx)
	case models.MetadataSavedQueries:
		out, resp, err = c.listFilters(ctx)
	case models.MetadataTags:
		out, resp, err = c.listLabels(ctx)
	case models.MetadataSprints:
		out, resp, err = c.listSprints(ctx)
	default:
		return nil, fmt.Errorf("%w: %s", tracker.ErrUnsupportedKind, kind)
	}
	if err != nil {
		return nil, wrap("list "+string(kind), resp, err)
	}
	return out, nil
}

func (c *Client) listProjects(ctx context.Context) ([]models.MetadataEntry, *model.ResponseScheme, error) {
	var out []models.MetadataEntry
	for start := 0; ; start += pageSize {
		page, resp, err := c.api.Project.Search(ctx, &model.ProjectSearchOptionsScheme{}, start, pageSize)
		if err != nil {
			return nil, resp, err
		}
		if page == nil {
			return out, resp, nil
		}
		for _, p := range page.Values {
			if p != nil && p.Name != "" {
				out = append(out, models.MetadataEntry{ID: p.Key, Name: p.Name, Kind: models.MetadataProjects})
			}
		}
		if page.IsLast || len(page.Values) == 0 {
			return out, resp, nil
		}
	}
}

// listStates collects the distinct statuses across the project's issue
// types.
func (c *Client) listStates(ctx context.Context) ([]models.MetadataEntry, *model.ResponseScheme, error) {
	pages, resp, err := c.api.Project.Statuses(ctx, c.translator.Project)
	if err != nil {
		return nil, resp, err
	}
	seen := map[string]bool{}
	var out []models.MetadataEntry
	for _, page := range pages {
		if page == nil {
			continue
		}
		for _, st := range page.Statuses {
			if st == nil || st.Name == "" || seen[st.Name] {
				continue
			}
			seen[st.Name] = true
			out = append(out, models.MetadataEntry{ID: st.ID, Name: st.Name, Kind: models.MetadataStates})
		}
	}
	return out, resp, nil
}

func (c *Client) listTypes(ctx context.Context) ([]models.MetadataEntry, *model.ResponseScheme, error) {
	types, resp, err := c.api.Issue.Type.Gets(ctx)
	if err != nil {
		return nil, resp, err
	}
	out := make([]models.MetadataEntry, 0, len(types))
	for _, t := range types {
		if t != nil && t.Name != "" {
			out = append(out, models.MetadataEntry{ID: t.ID, Name: t.Name, Kind: models.MetadataTypes})
		}
	}
	return out, resp, nil
}

func (c *Client) listUsers(ctx context.Context) ([]models.MetadataEntry, *model.ResponseScheme, error) {
	users, resp, err := c.api.User.Search.Projects(ctx, "", []string{c.translator.Project}, 0, maxResults)
	if err != nil {
		return nil, resp, err
	}
	out := make([]models.MetadataEntry, 0, len(users))
	for _, u := range users {
		if u != nil && u.DisplayName != "" {
			out = append(out, models.MetadataEntry{
				ID:    u.AccountID,
				Name:  u.DisplayName,
				Kind:  models.MetadataUsers,
				Extra: map[string]string{"uniqueName": u.EmailAddress},
			})
		}
	}
	return out, resp, nil
}

// listComponents stands in for areas.
func (c *Client) listComponents(ctx context.Context) ([]models.MetadataEntry, *model.ResponseScheme, error) {
	components, resp, err := c.api.Project.Component.Gets(ctx, c.translator.Project)
	if err != nil {
		return nil, resp, err
	}
	out := make([]models.MetadataEntry, 0, len(components))
	for _, comp := range components {
		if comp != nil && comp.Name != "" {
			out = append(out, models.MetadataEntry{ID: comp.ID, Name: comp.Name, Kind: models.MetadataAreas})
		}
	}
	return out, resp, nil
}

// listFilters stands in for saved queries.
func (c *Client) listFilters(ctx context.Context) ([]models.MetadataEntry, *model.ResponseScheme, error) {
	filters, resp, err := c.api.Filter.Favorite(ctx)
	if err != nil {
		return nil, resp, err
	}
	out := make([]models.MetadataEntry, 0, len(filters))
	for _, f := range filters {
		if f == nil || f.Name == "" {
			continue
		}
		entry := models.MetadataEntry{ID: f.ID, Name: f.Name, Kind: models.MetadataSavedQueries}
		if f.JQL != "" {
			entry.Extra = map[string]string{"jql": f.JQL}
		}
		out = append(out, entry)
	}
	return out, resp, nil
}

func (c *Client) listLabels(ctx context.Context) ([]models.MetadataEntry, *model.ResponseScheme, error) {
	page, resp, err := c.api.Issue.Label.Gets(ctx, 0, 1000)
	if err != nil || page == nil {
		return nil, resp, err
	}
	out := make([]models.MetadataEntry, 0, len(page.Values))
	for _, label := range page.Values {
		out = append(out, models.MetadataEntry{Name: label, Kind: models.MetadataTags})
	}
	return out, resp, nil
}

// listSprints reads the sprints of every scrum board of the project.
func (c *Client) listSprints(ctx context.Context) ([]models.MetadataEntry, *model.ResponseScheme, error) {
	boards, resp, err := c.board.Board.Gets(ctx, &model.GetBoardsOptions{
		BoardType:      "scrum",
		ProjectKeyOrID: c.translator.Project,
	}, 0, pageSize)
	if err != nil || boards == nil {
		return nil, resp, err
	}
	var out []models.MetadataEntry
	for _, b := range boards.Values {
		if b == nil {
			continue
		}
		sprints, resp, err := c.board.Board.Sprints(ctx, b.ID, 0, pageSize, []string{"active", "future", "closed"})
		if err != nil {
			return nil, resp, err
		}
		if sprints == nil {
			continue
		}
		for _, s := range sprints.Values {
			if s == nil {
				continue
			}
			out = append(out, models.MetadataEntry{
				ID:   strconv.Itoa(s.ID),
				Name: s.Name,
				Kind: models.MetadataSprints,
				Extra: map[string]string{
					"state":     s.State,
					"startDate": formatDate(s.StartDate),
					"endDate":   formatDate(s.EndDate),
					"board":     b.Name,
				},
			})
		}
	}
	return out, resp, nil
}

// wrap maps a failed go-atlassian call onto the tracker error contract.
func wrap(op string, resp *model.ResponseScheme, err error) error {
	if resp == nil || resp.Code == 0 {
		return fmt.Errorf("failed to send %s request: %w", op, err)
	}
	if resp.Code == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, tracker.ErrNotFound)
	}
	return &tracker.StatusError{Op: op, Status: resp.Code, Body: truncate(resp.Bytes.String())}
}

func decodeBody(resp *model.ResponseScheme, out interface{}) error {
	if resp == nil {
		return fmt.Errorf("empty jira response")
	}
	if err := json.NewDecoder(bytes.NewReader(resp.Bytes.Bytes())).Decode(out); err != nil {
		return fmt.Errorf("failed to decode jira response: %w", err)
	}
	return nil
}

// normalizeSprint copies the name of the latest sprint from the sprint
// custom field into fields["sprint"], which MapWorkItem understands.
func normalizeSprint(issue tracker.RawItem) {
	fields := common.GetMap(issue, "fields")
	if fields == nil {
		return
	}
	for key, v := range fields {
		if !strings.HasPrefix(key, "customfield_") {
			continue
		}
		list, ok := v.([]interface{})
		if !ok || len(list) == 0 {
			continue
		}
		last, ok := list[len(list)-1].(map[string]interface{})
		if !ok {
			continue
		}
		if _, hasBoard := last["boardId"]; !hasBoard {
			continue
		}
		if name := common.GetString(last, "name", ""); name != "" {
			fields["sprint"] = name
			return
		}
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string) string {
	if len(s) > 2048 {
		return s[:2048]
	}
	return s
}

var _ tracker.Client = (*Client)(nil)
