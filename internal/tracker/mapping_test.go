package tracker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRaw(t *testing.T, s string) RawItem {
	t.Helper()
	var raw RawItem
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func TestMapWorkItemADO(t *testing.T) {
	raw := decodeRaw(t, `{
		"id": 12345,
		"url": "https://dev.azure.com/org/proj/_apis/wit/workItems/12345",
		"fields": {
			"System.Title": "Login fails",
			"System.WorkItemType": "Bug",
			"System.State": "Active",
			"System.AssignedTo": {"displayName": "Ada Lovelace", "uniqueName": "ada@example.com"},
			"System.CreatedBy": {"displayName": "Grace Hopper"},
			"System.CreatedDate": "2024-03-01T10:00:00.123Z",
			"System.ChangedDate": "2024-03-02T11:30:00Z",
			"Microsoft.VSTS.Common.Priority": 2,
			"System.Tags": "ui; auth ;",
			"System.IterationPath": "proj\\Sprint 5",
			"System.AreaPath": "proj\\Web",
			"Microsoft.VSTS.Scheduling.StoryPoints": 3,
			"System.Description": "<div>Steps <b>to</b> reproduce</div>"
		},
		"relations": [
			{"rel": "System.LinkTypes.Hierarchy-Forward", "url": "https://dev.azure.com/org/_apis/wit/workItems/12"},
			{"rel": "AttachedFile", "url": "https://dev.azure.com/org/_apis/wit/attachments/abc"}
		]
	}`)

	item := MapWorkItem(raw)
	assert.Equal(t, "12345", item.ID)
	assert.Equal(t, "Login fails", item.Title)
	assert.Equal(t, "Bug", item.Type)
	assert.Equal(t, "Active", item.State)
	assert.Equal(t, "Ada Lovelace", item.AssignedTo)
	assert.Equal(t, "Grace Hopper", item.CreatedBy)
	require.NotNil(t, item.CreatedDate)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 123000000, time.UTC), *item.CreatedDate)
	require.NotNil(t, item.ChangedDate)
	assert.Nil(t, item.ClosedDate)
	assert.Equal(t, "2", item.Priority)
	assert.Equal(t, []string{"ui", "auth"}, item.Tags)
	assert.Equal(t, `proj\Sprint 5`, item.IterationPath)
	assert.Equal(t, `proj\Web`, item.AreaPath)
	assert.Equal(t, 3.0, item.StoryPoints)
	assert.Equal(t, "Steps to reproduce", item.Description)
	assert.Equal(t, []string{"12"}, item.Relations)
}

func TestMapWorkItemJira(t *testing.T) {
	raw := decodeRaw(t, `{
		"id": "10001",
		"key": "PROJ-7",
		"self": "https://example.atlassian.net/rest/api/2/issue/10001",
		"fields": {
			"summary": "Checkout times out",
			"issuetype": {"name": "Task"},
			"status": {"name": "In Progress"},
			"assignee": {"displayName": "Linus"},
			"reporter": {"displayName": "Ken"},
			"created": "2024-05-01T09:00:00.000+0200",
			"updated": "2024-05-03T09:00:00.000+0000",
			"priority": {"name": "High"},
			"labels": ["payments", "backend"],
			"sprint": "Sprint 12",
			"components": [{"name": "API"}],
			"customfield_10016": 5,
			"issuelinks": [
				{"type": {"name": "Blocks"}, "outwardIssue": {"key": "PROJ-9"}},
				{"type": {"name": "Relates"}, "inwardIssue": {"key": "PROJ-2"}}
			]
		}
	}`)

	item := MapWorkItem(raw)
	assert.Equal(t, "PROJ-7", item.ID)
	assert.Equal(t, "Checkout times out", item.Title)
	assert.Equal(t, "Task", item.Type)
	assert.Equal(t, "In Progress", item.State)
	assert.Equal(t, "Linus", item.AssignedTo)
	assert.Equal(t, "Ken", item.CreatedBy)
	require.NotNil(t, item.CreatedDate)
	assert.Equal(t, 7, item.CreatedDate.Hour())
	assert.Equal(t, "High", item.Priority)
	assert.Equal(t, []string{"payments", "backend"}, item.Tags)
	assert.Equal(t, "Sprint 12", item.IterationPath)
	assert.Equal(t, "API", item.AreaPath)
	assert.Equal(t, 5.0, item.StoryPoints)
	assert.Equal(t, []string{"PROJ-9", "PROJ-2"}, item.Relations)
	assert.Equal(t, "https://example.atlassian.net/rest/api/2/issue/10001", item.URL)
}

func TestMapWorkItemsKeepsOrder(t *testing.T) {
	items := MapWorkItems([]RawItem{
		{"id": float64(3), "fields": map[string]interface{}{"System.Title": "c"}},
		{"id": float64(1), "fields": map[string]interface{}{"System.Title": "a"}},
	})
	require.Len(t, items, 2)
	assert.Equal(t, "3", items[0].ID)
	assert.Equal(t, "1", items[1].ID)
	assert.Empty(t, items[0].Tags)
	assert.Nil(t, items[0].CreatedDate)
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Op: "search", Status: 400, Body: "bad"}
	assert.Equal(t, "search: status 400, body: bad", err.Error())
}
