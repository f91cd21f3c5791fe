package jira

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/workitem-qa/internal/wiql"
)

func TestTranslate(t *testing.T) {
	tr := Translator{Project: "PROJ"}
	tests := []struct {
		name string
		wiql string
		want string
	}{
		{
			"state and type",
			"[System.State] IN ('Active') AND [System.WorkItemType] IN ('Bug') " + wiql.DefaultOrderBy,
			`status in ("Active") AND issuetype in ("Bug") ORDER BY updated DESC, key DESC`,
		},
		{
			"issue equality",
			"[System.Id] = 'PROJ-12'",
			`key = "PROJ-12"`,
		},
		{
			"assigned to me changed recently",
			"[System.AssignedTo] = @Me AND [System.ChangedDate] >= @Today - 7",
			`assignee = currentUser() AND updated >= startOfDay(-7d)`,
		},
		{
			"sprint under",
			`[System.IterationPath] UNDER 'proj\Sprint 5'`,
			`sprint = "Sprint 5"`,
		},
		{
			"current sprint",
			"[System.IterationPath] = @CurrentIteration",
			`sprint in openSprints()`,
		},
		{
			"title search and labels",
			"[System.Title] CONTAINS 'login' AND [System.Tags] CONTAINS 'ui'",
			`summary ~ "login" AND labels = "ui"`,
		},
		{
			"negations",
			"[System.State] NOT IN ('Closed', 'Done') AND [System.CreatedBy] <> 'bot'",
			`status not in ("Closed", "Done") AND reporter != "bot"`,
		},
		{
			"grouped or with priority",
			"([System.State] = 'New' OR [Microsoft.VSTS.Common.Priority] = 1)",
			`(status = "New" OR priority = "Highest")`,
		},
		{
			"quotes escaped",
			`[System.Title] CONTAINS 'say "hi"'`,
			`summary ~ "say \"hi\""`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.Translate(tt.wiql)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranslateRejectsUnsupported(t *testing.T) {
	tr := Translator{}
	for _, q := range []string{
		"[Custom.Thing] = 1",
		"[System.Id] IN ({{q1.relations}})",
		"[System.TeamProject] = @Project",
		"[System.State] EVER 'Active'",
		"[System.Title] = 'unterminated",
	} {
		_, err := tr.Translate(q)
		assert.Error(t, err, q)
	}
}

func TestScoped(t *testing.T) {
	tr := Translator{Project: "PROJ"}
	got, err := tr.Scoped("[System.State] = 'New' OR [System.State] = 'Active' " + wiql.DefaultOrderBy)
	require.NoError(t, err)
	assert.Equal(t, `project = "PROJ" AND (status = "New" OR status = "Active") ORDER BY updated DESC, key DESC`, got)

	got, err = tr.Scoped("[System.TeamProject] = @Project")
	require.NoError(t, err)
	assert.Equal(t, `project = "PROJ"`, got)

	got, err = Translator{}.Scoped("[System.State] = 'New'")
	require.NoError(t, err)
	assert.Equal(t, `status = "New"`, got)
}
