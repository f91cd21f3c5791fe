// Package ado is the Azure DevOps adapter of tracker.Client, built on the
// azure-devops-go-api v7 SDK. Query bodies are wrapped in a SELECT and sent
// unchanged to QueryByWiql.
package ado

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/core"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/work"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/workitemtracking"

	"github.com/tuannvm/workitem-qa/internal/config"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/tracker"
	"github.com/tuannvm/workitem-qa/internal/wiql"
)

// maxResults bounds WIQL results and the batch fetch.
const maxResults = 200

var _ tracker.Client = (*Client)(nil)

// APIs are the SDK clients the adapter calls.
type APIs struct {
	WIT  workitemtracking.Client
	Core core.Client
	Work work.Client
}

// Client talks to Azure DevOps. The SDK clients resolve their endpoints
// over the network, so they are created on first use.
type Client struct {
	conn    *azuredevops.Connection
	project string
	team    string

	mu   sync.Mutex
	apis *APIs
}

// NewClient creates a new Azure DevOps client
func NewClient(cfg *config.Config) *Client {
	timeout := cfg.TrackerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	orgURL := strings.TrimRight(cfg.TrackerBaseURL, "/") + "/" + cfg.TrackerOrganization
	conn := azuredevops.NewPatConnection(orgURL, cfg.TrackerToken)
	conn.Timeout = &timeout
	return &Client{conn: conn, project: cfg.TrackerProject, team: cfg.TrackerTeam}
}

// NewClientFromAPIs wraps already built SDK clients.
func NewClientFromAPIs(project, team string, apis *APIs) *Client {
	return &Client{project: project, team: team, apis: apis}
}

func (c *Client) api(ctx context.Context) (*APIs, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.apis != nil {
		return c.apis, nil
	}
	witClient, err := workitemtracking.NewClient(ctx, c.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create work item client: %w", err)
	}
	coreClient, err := core.NewClient(ctx, c.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create core client: %w", err)
	}
	workClient, err := work.NewClient(ctx, c.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create work client: %w", err)
	}
	c.apis = &APIs{WIT: witClient, Core: coreClient, Work: workClient}
	return c.apis, nil
}

// SearchItems runs the WIQL body and fetches fields for the matching ids.
func (c *Client) SearchItems(ctx context.Context, query string) ([]tracker.RawItem, error) {
	api, err := c.api(ctx)
	if err != nil {
		return nil, err
	}
	statement := Statement(query)
	top := maxResults
	res, err := api.WIT.QueryByWiql(ctx, workitemtracking.QueryByWiqlArgs{
		Wiql:    &workitemtracking.Wiql{Query: &statement},
		Project: &c.project,
		Top:     &top,
	})
	if err != nil {
		return nil, wrap("wiql", err)
	}
	if res == nil || res.WorkItems == nil || len(*res.WorkItems) == 0 {
		return []tracker.RawItem{}, nil
	}

	ids := make([]int, 0, len(*res.WorkItems))
	for _, ref := range *res.WorkItems {
		if ref.Id != nil && len(ids) < maxResults {
			ids = append(ids, *ref.Id)
		}
	}

	fields := wiql.DefaultFields
	omit := workitemtracking.WorkItemErrorPolicyValues.Omit
	batch, err := api.WIT.GetWorkItemsBatch(ctx, workitemtracking.GetWorkItemsBatchArgs{
		WorkItemGetRequest: &workitemtracking.WorkItemBatchGetRequest{
			Ids:         &ids,
			Fields:      &fields,
			ErrorPolicy: &omit,
		},
		Project: &c.project,
	})
	if err != nil {
		return nil, wrap("workitemsbatch", err)
	}

	// the batch does not promise WIQL order
	byID := map[int]tracker.RawItem{}
	if batch != nil {
		for _, wi := range *batch {
			if wi.Id == nil {
				continue
			}
			raw, err := toRaw(wi)
			if err != nil {
				return nil, err
			}
			byID[*wi.Id] = raw
		}
	}
	out := make([]tracker.RawItem, 0, len(ids))
	for _, id := range ids {
		if raw, ok := byID[id]; ok {
			out = append(out, raw)
		}
	}
	return out, nil
}

// GetItem fetches a single work item with its relations.
func (c *Client) GetItem(ctx context.Context, id string) (tracker.RawItem, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(id), "#"))
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a work item id", tracker.ErrNotFound, id)
	}
	api, err := c.api(ctx)
	if err != nil {
		return nil, err
	}
	expand := workitemtracking.WorkItemExpandValues.Relations
	wi, err := api.WIT.GetWorkItem(ctx, workitemtracking.GetWorkItemArgs{
		Id:      &n,
		Project: &c.project,
		Expand:  &expand,
	})
	if err != nil {
		return nil, wrap("get work item", err)
	}
	if wi == nil {
		return nil, tracker.ErrNotFound
	}
	return toRaw(*wi)
}

// ListMetadata returns one vocabulary list.
func (c *Client) ListMetadata(ctx context.Context, kind models.MetadataKind) ([]models.MetadataEntry, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", tracker.ErrUnsupportedKind, kind)
	}
	api, err := c.api(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.MetadataEntry
	switch kind {
	case models.MetadataProjects:
		out, err = c.listProjects(ctx, api)
	case models.MetadataTeams:
		out, err = c.listTeams(ctx, api)
	case models.MetadataTags:
		out, err = c.listTags(ctx, api)
	case models.MetadataTypes:
		out, err = c.listTypes(ctx, api)
	case models.MetadataStates:
		out, err = c.listStates(ctx, api)
	case models.MetadataSprints:
		out, err = c.listSprints(ctx, api)
	case models.MetadataUsers:
		out, err = c.listUsers(ctx, api)
	case models.MetadataAreas:
		out, err = c.listAreas(ctx, api)
	case models.MetadataSavedQueries:
		out, err = c.listSavedQueries(ctx, api)
	}
	if err != nil {
		return nil, wrap("list "+string(kind), err)
	}
	return out, nil
}

// Statement wraps a WHERE body with an optional ORDER BY into a full WIQL
// statement.
func Statement(query string) string {
	where, order := wiql.Split(query)
	statement := "SELECT [System.Id] FROM WorkItems"
	if where != "" {
		statement += " WHERE " + where
	}
	if order != "" {
		statement += " " + order
	}
	return statement
}

// toRaw gives the SDK work item the shape of the REST payload, which is what
// tracker.MapWorkItem reads.
func toRaw(wi workitemtracking.WorkItem) (tracker.RawItem, error) {
	b, err := json.Marshal(wi)
	if err != nil {
		return nil, fmt.Errorf("failed to encode work item: %w", err)
	}
	var raw tracker.RawItem
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode work item: %w", err)
	}
	return raw, nil
}

// wrap maps SDK errors onto the tracker error contract.
func wrap(op string, err error) error {
	switch status := statusOf(err); {
	case status == 404:
		return fmt.Errorf("%s: %w", op, tracker.ErrNotFound)
	case status != 0:
		return &tracker.StatusError{Op: op, Status: status, Body: err.Error()}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// statusOf digs the HTTP status out of an SDK error. The SDK returns
// WrappedError both by value and by pointer.
func statusOf(err error) int {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch we := e.(type) {
		case azuredevops.WrappedError:
			if we.StatusCode != nil {
				return *we.StatusCode
			}
		case *azuredevops.WrappedError:
			if we != nil && we.StatusCode != nil {
				return *we.StatusCode
			}
		}
	}
	return 0
}
