package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/workitem-qa/internal/llm"
	"github.com/tuannvm/workitem-qa/internal/models"
)

type fakeCompleter struct {
	reply string
	err   error
	calls int
	last  llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.calls++
	f.last = req
	return f.reply, f.err
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		check func(t *testing.T, in models.Intent)
	}{
		{"state", "/state Active", func(t *testing.T, in models.Intent) {
			assert.Equal(t, models.ScopeState, in.Scope)
			assert.Equal(t, []string{"Active"}, in.States)
		}},
		{"combined", "/state Active, New /type Bug", func(t *testing.T, in models.Intent) {
			assert.Equal(t, models.ScopeState, in.Scope)
			assert.Equal(t, []string{"Active", "New"}, in.States)
			assert.Equal(t, []string{"Bug"}, in.Types)
			assert.Equal(t, []string{"Active, New", "Bug"}, in.Entities)
		}},
		{"assigned to me", "/assigned_to me", func(t *testing.T, in models.Intent) {
			assert.Equal(t, models.ScopeAssignee, in.Scope)
			assert.Equal(t, "@Me", in.UserIdentifier)
		}},
		{"creator alias", `/creator "Grace Hopper"`, func(t *testing.T, in models.Intent) {
			assert.Equal(t, models.ScopeCreator, in.Scope)
			assert.Equal(t, "Grace Hopper", in.UserIdentifier)
		}},
		{"id", "/id #12345", func(t *testing.T, in models.Intent) {
			assert.Equal(t, models.ScopeIssue, in.Scope)
			assert.Equal(t, "12345", in.IssueID)
		}},
		{"jira key", "/id proj-7", func(t *testing.T, in models.Intent) {
			assert.Equal(t, "PROJ-7", in.IssueID)
		}},
		{"current sprint", "/sprint current", func(t *testing.T, in models.Intent) {
			assert.Equal(t, "@CurrentIteration", in.SprintIdentifier)
		}},
		{"area path", `/area Proj\Web`, func(t *testing.T, in models.Intent) {
			assert.Equal(t, models.ScopeArea, in.Scope)
			assert.Equal(t, `Proj\Web`, in.AreaIdentifier)
		}},
		{"changed", "/changed 7 days", func(t *testing.T, in models.Intent) {
			require.NotNil(t, in.DateRange)
			assert.Equal(t, "@Today - 7", in.DateRange.From)
		}},
		{"queries", "/queries", func(t *testing.T, in models.Intent) {
			assert.Equal(t, models.ScopeSavedQuery, in.Scope)
		}},
		{"help", "/help", func(t *testing.T, in models.Intent) {
			assert.False(t, in.DataRequired)
			assert.Equal(t, models.IntentQuestion, in.Type)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok := ParseCommand(tt.text)
			require.True(t, ok)
			assert.Equal(t, 1.0, in.Confidence)
			assert.Equal(t, models.ComplexitySimple, in.Complexity)
			assert.Equal(t, "fast_path", in.Source)
			tt.check(t, in)
		})
	}
}

func TestParseCommandRejects(t *testing.T) {
	for _, text := range []string{
		"show me bugs",
		"/unknown thing",
		"/state",
		"/id abc",
		"/changed soon",
		"  not /state Active",
	} {
		_, ok := ParseCommand(text)
		assert.False(t, ok, text)
	}
}

func TestHeuristic(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		check func(t *testing.T, in models.Intent)
	}{
		{"issue id", "what is the status of 12345?", func(t *testing.T, in models.Intent) {
			assert.Equal(t, models.ScopeIssue, in.Scope)
			assert.Equal(t, "12345", in.IssueID)
			assert.Equal(t, models.IntentQuestion, in.Type)
		}},
		{"hash id", "tell me about #42", func(t *testing.T, in models.Intent) {
			assert.Equal(t, "42", in.IssueID)
		}},
		{"jira key", "show PROJ-12", func(t *testing.T, in models.Intent) {
			assert.Equal(t, "PROJ-12", in.IssueID)
			assert.Equal(t, models.IntentCommand, in.Type)
		}},
		{"days are not ids", "bugs changed in the last 100 days", func(t *testing.T, in models.Intent) {
			assert.Empty(t, in.IssueID)
			require.NotNil(t, in.DateRange)
			assert.Equal(t, "@Today - 100", in.DateRange.From)
		}},
		{"active bugs", "show me active bugs", func(t *testing.T, in models.Intent) {
			assert.Equal(t, []string{"Active"}, in.States)
			assert.Equal(t, []string{"Bug"}, in.Types)
			assert.True(t, in.DataRequired)
		}},
		{"sprint", "what is left in sprint 5", func(t *testing.T, in models.Intent) {
			assert.Equal(t, models.ScopeSprint, in.Scope)
			assert.Equal(t, "Sprint 5", in.SprintIdentifier)
		}},
		{"current sprint", "bugs in the current sprint", func(t *testing.T, in models.Intent) {
			assert.Equal(t, "@CurrentIteration", in.SprintIdentifier)
		}},
		{"assigned to", "tasks assigned to Ada Lovelace in progress", func(t *testing.T, in models.Intent) {
			assert.Equal(t, models.ScopeAssignee, in.Scope)
			assert.Equal(t, "Ada Lovelace", in.UserIdentifier)
			assert.Equal(t, []string{"In Progress"}, in.States)
		}},
		{"created by", "items created by grace", func(t *testing.T, in models.Intent) {
			assert.Equal(t, models.ScopeCreator, in.Scope)
			assert.Equal(t, "grace", in.UserIdentifier)
		}},
		{"my items", "list my open tasks", func(t *testing.T, in models.Intent) {
			assert.Equal(t, "@Me", in.UserIdentifier)
			assert.Equal(t, []string{"Task"}, in.Types)
		}},
		{"summary", "summarize the project Phoenix", func(t *testing.T, in models.Intent) {
			assert.Equal(t, models.IntentSummary, in.Type)
			assert.Equal(t, models.ScopeProject, in.Scope)
			assert.Equal(t, "Phoenix", in.ProjectIdentifier)
		}},
		{"analysis", "what is our velocity trend", func(t *testing.T, in models.Intent) {
			assert.Equal(t, models.IntentAnalysis, in.Type)
			assert.Equal(t, models.ComplexityAnalytical, in.Complexity)
		}},
		{"general", "what does definition of ready mean?", func(t *testing.T, in models.Intent) {
			assert.Equal(t, models.ScopeGlobal, in.Scope)
			assert.False(t, in.DataRequired)
		}},
		{"tag", "bugs tagged with security", func(t *testing.T, in models.Intent) {
			assert.Equal(t, models.ScopeTag, in.Scope)
			assert.Equal(t, []string{"security"}, in.Tags)
		}},
		{"saved queries", "list my saved queries", func(t *testing.T, in models.Intent) {
			assert.Equal(t, models.ScopeSavedQuery, in.Scope)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Heuristic(tt.text, models.RecentEntities{})
			assert.Equal(t, HeuristicConfidence, in.Confidence)
			assert.Equal(t, "heuristic", in.Source)
			tt.check(t, in)
		})
	}
}

func TestHeuristicPronounHint(t *testing.T) {
	hints := models.RecentEntities{LastMentionedUser: "Ada Lovelace", LastMentionedSprint: `proj\Sprint 5`}
	in := Heuristic("what bugs does she have?", hints)
	assert.Equal(t, "Ada Lovelace", in.UserIdentifier)
	assert.Equal(t, models.ScopeAssignee, in.Scope)

	in = Heuristic("and the tasks in that sprint?", hints)
	assert.Equal(t, `proj\Sprint 5`, in.SprintIdentifier)
	assert.Empty(t, in.UserIdentifier)
}

func TestClassifyFastPathSkipsLLM(t *testing.T) {
	fake := &fakeCompleter{}
	in := NewClassifier(fake, 0.1).Classify(context.Background(), "/state Active", models.RecentEntities{}, nil)
	assert.Equal(t, 0, fake.calls)
	assert.Equal(t, 1.0, in.Confidence)
}

func TestClassifyLLM(t *testing.T) {
	fake := &fakeCompleter{reply: `{"type":"Question","scope":"Sprint","entities":["Sprint 5"],"dataRequired":true,
		"complexity":"simple","confidence":1.7,"sprintIdentifier":"Sprint 5","states":"Active"}`}
	in := NewClassifier(fake, 0.1).Classify(context.Background(), "what is active in sprint 5", models.RecentEntities{}, nil)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, 0.1, fake.last.Temperature)
	assert.NotEmpty(t, fake.last.Schema)
	assert.Equal(t, models.IntentQuestion, in.Type)
	assert.Equal(t, models.ScopeSprint, in.Scope)
	assert.Equal(t, 1.0, in.Confidence)
	assert.Equal(t, []string{"Active"}, in.States)
	assert.Equal(t, "llm", in.Source)
}

func TestClassifyLLMCoercesAndFillsHints(t *testing.T) {
	fake := &fakeCompleter{reply: `{"type":"banana","scope":"planets","confidence":"0.8","dataRequired":"yes"}`}
	hints := models.RecentEntities{LastMentionedUser: "Ada Lovelace"}
	in := NewClassifier(fake, 0.1).Classify(context.Background(), "what is he doing", hints, nil)
	assert.Equal(t, models.IntentQuestion, in.Type)
	assert.Equal(t, models.ScopeGlobal, in.Scope)
	assert.Equal(t, 0.8, in.Confidence)
	assert.True(t, in.DataRequired)
	assert.Equal(t, "Ada Lovelace", in.UserIdentifier)
	assert.NotNil(t, in.Entities)
}

func TestClassifyIssueScopeWithoutID(t *testing.T) {
	fake := &fakeCompleter{reply: `{"type":"question","scope":"issue"}`}
	in := NewClassifier(fake, 0.1).Classify(context.Background(), "details of item 4711", models.RecentEntities{}, nil)
	assert.Equal(t, models.ScopeIssue, in.Scope)
	assert.Equal(t, "4711", in.IssueID)
}

func TestClassifyGlobalScopeWithIDBecomesIssue(t *testing.T) {
	fake := &fakeCompleter{reply: `{"type":"question","scope":"global","issueId":"#12345"}`}
	in := NewClassifier(fake, 0.1).Classify(context.Background(), "tell me about 12345", models.RecentEntities{}, nil)
	assert.Equal(t, models.ScopeIssue, in.Scope)
	assert.Equal(t, "12345", in.IssueID)
}

func TestClassifyFallsBack(t *testing.T) {
	for name, fake := range map[string]*fakeCompleter{
		"error":     {err: errors.New("unreachable")},
		"malformed": {reply: "I think it's about sprints"},
		"empty obj": {reply: `{"foo": 1}`},
	} {
		t.Run(name, func(t *testing.T) {
			in := NewClassifier(fake, 0.1).Classify(context.Background(), "what is the status of 12345?", models.RecentEntities{}, nil)
			assert.Equal(t, HeuristicConfidence, in.Confidence)
			assert.Equal(t, "12345", in.IssueID)
			assert.Equal(t, "heuristic", in.Source)
		})
	}

	in := NewClassifier(nil, 0.1).Classify(context.Background(), "sprint 3 bugs", models.RecentEntities{}, nil)
	assert.Equal(t, "heuristic", in.Source)
}

func TestDescribe(t *testing.T) {
	out := Describe(models.Intent{Type: models.IntentCommand, Scope: models.ScopeState, States: []string{"Active"}, Confidence: 1})
	assert.Equal(t, "type=command scope=state states=Active confidence=1.00", out)
}

func TestHeuristicShowMeIsNotMine(t *testing.T) {
	in := Heuristic("show me active bugs", models.RecentEntities{})
	assert.Empty(t, in.UserIdentifier)
	assert.Equal(t, models.ScopeState, in.Scope)
}
