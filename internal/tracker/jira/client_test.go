package jira

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/workitem-qa/internal/config"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/tracker"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(&config.Config{
		TrackerBaseURL:  srv.URL,
		TrackerProject:  "PROJ",
		TrackerUsername: "bot@example.com",
		TrackerToken:    "token",
		TrackerTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestSearchItems(t *testing.T) {
	var jql string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/rest/api/2/search"))
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "bot@example.com", user)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		jql, _ = body["jql"].(string)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"issues":[{"key":"PROJ-1","fields":{"summary":"one","status":{"name":"To Do"},
			"customfield_10020":[{"id":3,"name":"Sprint 3","boardId":1,"state":"closed"},{"id":4,"name":"Sprint 4","boardId":1,"state":"active"}]}}]}`))
	})

	items, err := c.SearchItems(context.Background(), "[System.State] = 'To Do'")
	require.NoError(t, err)
	assert.Equal(t, `project = "PROJ" AND (status = "To Do")`, jql)
	require.Len(t, items, 1)
	item := tracker.MapWorkItem(items[0])
	assert.Equal(t, "PROJ-1", item.ID)
	assert.Equal(t, "Sprint 4", item.IterationPath)
}

func TestSearchItemsTranslationError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := c.SearchItems(context.Background(), "[Custom.Field] = 1")
	assert.Error(t, err)
}

func TestGetItemNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errorMessages":["Issue does not exist or you do not have permission to see it."]}`))
	})
	_, err := c.GetItem(context.Background(), "PROJ-404")
	assert.ErrorIs(t, err, tracker.ErrNotFound)
}

func TestListMetadataUnsupported(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := c.ListMetadata(context.Background(), models.MetadataTeams)
	assert.ErrorIs(t, err, tracker.ErrUnsupportedKind)
}

func TestGetItemKeepsCustomFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/rest/api/2/issue/PROJ-7"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"key":"PROJ-7","fields":{"summary":"seven","customfield_10020":[{"id":9,"name":"Sprint 9","boardId":2}]}}`))
	})
	raw, err := c.GetItem(context.Background(), "#PROJ-7")
	require.NoError(t, err)
	item := tracker.MapWorkItem(raw)
	assert.Equal(t, "seven", item.Title)
	assert.Equal(t, "Sprint 9", item.IterationPath)
}

func TestListSprintsAcrossBoards(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/rest/agile/1.0/board"):
			w.Write([]byte(`{"isLast":true,"values":[{"id":1,"name":"Team board","type":"scrum"}]}`))
		case strings.HasSuffix(r.URL.Path, "/rest/agile/1.0/board/1/sprint"):
			w.Write([]byte(`{"isLast":true,"values":[{"id":4,"name":"Sprint 4","state":"active","startDate":"2026-09-01T00:00:00.000Z"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})
	sprints, err := c.ListMetadata(context.Background(), models.MetadataSprints)
	require.NoError(t, err)
	require.Len(t, sprints, 1)
	assert.Equal(t, "4", sprints[0].ID)
	assert.Equal(t, "Sprint 4", sprints[0].Name)
	assert.Equal(t, "active", sprints[0].Extra["state"])
	assert.Equal(t, "Team board", sprints[0].Extra["board"])
	assert.Equal(t, "2026-09-01T00:00:00Z", sprints[0].Extra["startDate"])
}

func TestListLabels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/rest/api/2/label"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"isLast":true,"values":["backend","ui"]}`))
	})
	tags, err := c.ListMetadata(context.Background(), models.MetadataTags)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "ui", tags[1].Name)
}

func TestListMetadataStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errorMessages":["no permission"]}`))
	})
	_, err := c.ListMetadata(context.Background(), models.MetadataTypes)
	var statusErr *tracker.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.Status)
}
