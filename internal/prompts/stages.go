package prompts

import (
	"strings"

	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/wiql"
)

const classifySystem = `You classify questions about work items in a work-tracking system.
Pick exactly one scope from: {{.scopes}}.
Types are question, command, analysis or summary. Complexity is simple, multi_step or analytical.
Set dataRequired to false only for general questions answerable without looking at any work item.
Resolve pronouns ("she", "they", "that sprint") using the recent entities when the question refers back.`

const classifyUser = `Recent entities:
{{.hints}}

Conversation so far:
{{.history}}

Question: {{.query}}`

// Classify builds the intent classification prompt.
func Classify(query string, hints models.RecentEntities, history []models.ConversationTurn) (Prompt, error) {
	system, err := render(classifySystem, map[string]any{"scopes": scopeList()})
	if err != nil {
		return Prompt{}, err
	}
	user, err := render(classifyUser, map[string]any{
		"hints":   mustJSON(hints),
		"history": History(history),
		"query":   query,
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: user, Schema: IntentSchema}, nil
}

const decideSystem = `You decide whether answering a classified request needs data from the work-tracking system.
Query kinds: structured_query (WIQL search), rest_lookup (single item by id), metadata_lookup (lists of sprints, users, projects, teams, tags, states, types, areas, saved queries).
estimatedComplexity is an integer from 1 to 10.`

const decideUser = `Intent:
{{.intent}}

Conversation so far:
{{.history}}`

// Decide builds the fetch decision prompt.
func Decide(intent models.Intent, history []models.ConversationTurn) (Prompt, error) {
	user, err := render(decideUser, map[string]any{"intent": mustJSON(intent), "history": History(history)})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: decideSystem, User: user, Schema: DecisionSchema}, nil
}

const planSystem = `You plan queries against a work-tracking system.
Structured queries are WIQL WHERE-clause bodies only: no SELECT, no FROM, no semicolons.
Reference fields in brackets, e.g. [System.State], [System.WorkItemType], [System.AssignedTo], [System.IterationPath].
[System.IterationPath] and [System.AreaPath] are hierarchical: use UNDER or =, never CONTAINS.
Use @Me for the current user and @Today - N for relative dates.
End every structured query with {{.order}}.
Each query has an id (q1, q2, ...), a kind, a priority (lower runs first), dependsOn ids and optional.
A later query may reference an earlier one with {{.refIDs}} or {{.refRelations}}.`

const planUser = `Intent:
{{.intent}}

Decision:
{{.decision}}

Known sprints: {{.sprints}}
Known users: {{.users}}
Known areas: {{.areas}}
{{.feedback}}`

// Plan builds the query planning prompt. feedback lists problems with a
// previous draft, if any.
func Plan(intent models.Intent, decision models.Decision, meta *models.TrackerMetadata, feedback []string) (Prompt, error) {
	system, err := render(planSystem, map[string]any{
		"order":        wiql.DefaultOrderBy,
		"refIDs":       "{{q1.ids}}",
		"refRelations": "{{q1.relations}}",
	})
	if err != nil {
		return Prompt{}, err
	}
	var sprints, users, areas []string
	if meta != nil {
		sprints = entryNames(meta.Sprints, true)
		users = entryNames(meta.Users, false)
		areas = entryNames(meta.Areas, true)
	}
	fb := ""
	if len(feedback) > 0 {
		fb = "Problems with the previous plan, fix them:\n- " + strings.Join(feedback, "\n- ")
	}
	user, err := render(planUser, map[string]any{
		"intent":   mustJSON(intent),
		"decision": mustJSON(decision),
		"sprints":  orNone(sprints),
		"users":    orNone(users),
		"areas":    orNone(areas),
		"feedback": fb,
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: user, Schema: PlanSchema}, nil
}

const evaluateSystem = `You judge whether retrieved work items answer a request.
Rate dataQuality (poor, fair, good, excellent), relevance (low, medium, high) and completeness (incomplete, partial, complete).
Set needsAdditional with additionalQueries only when a different query would clearly help.
Confidence is a number between 0 and 1.`

const evaluateUser = `Intent:
{{.intent}}

Query outcomes:
{{.summary}}

Work items:
{{.items}}`

// Evaluate builds the result evaluation prompt.
func Evaluate(intent models.Intent, results models.QueryResults) (Prompt, error) {
	user, err := render(evaluateUser, map[string]any{
		"intent":  mustJSON(intent),
		"summary": ResultsSummary(results),
		"items":   Items(results.WorkItems),
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: evaluateSystem, User: user, Schema: EvaluationSchema}, nil
}

const synthesizeSystem = `You answer questions about work items using only the data provided.
Never claim that nothing was found when work items are listed. State counts exactly as they appear in the data.
Suggestions must be follow-up requests of these kinds only:
{{.patterns}}
Do not suggest counting, aggregating or comparing across sprints.
Visualizations may only be pie or bar charts of state, type, priority or assignee, or a table.`

const synthesizeUser = `Question: {{.query}}

Intent:
{{.intent}}

Evaluation: quality={{.quality}} relevance={{.relevance}} completeness={{.completeness}}
{{.insights}}

Work items:
{{.items}}`

const narrativeSystem = `You answer questions about work items using only the data provided.
Write a short plain-text answer. Never claim that nothing was found when work items are listed.
State counts exactly as they appear in the data.`

// Synthesize builds the structured answer prompt.
func Synthesize(query string, intent models.Intent, eval models.Evaluation, results models.QueryResults, patterns []string) (Prompt, error) {
	return synthesize(query, intent, eval, results, patterns, false)
}

// Narrative builds the plain-text prompt used when the answer is streamed.
func Narrative(query string, intent models.Intent, eval models.Evaluation, results models.QueryResults) (Prompt, error) {
	return synthesize(query, intent, eval, results, nil, true)
}

func synthesize(query string, intent models.Intent, eval models.Evaluation, results models.QueryResults, patterns []string, narrative bool) (Prompt, error) {
	insights := ""
	if len(eval.Insights) > 0 {
		insights = "Evaluator insights: " + strings.Join(eval.Insights, "; ")
	}
	user, err := render(synthesizeUser, map[string]any{
		"query":        query,
		"intent":       mustJSON(intent),
		"quality":      string(eval.DataQuality),
		"relevance":    string(eval.Relevance),
		"completeness": string(eval.Completeness),
		"insights":     insights,
		"items":        Items(results.WorkItems),
	})
	if err != nil {
		return Prompt{}, err
	}
	if narrative {
		return Prompt{System: narrativeSystem, User: user}, nil
	}
	system, err := render(synthesizeSystem, map[string]any{"patterns": "- " + strings.Join(patterns, "\n- ")})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: user, Schema: SynthesisSchema}, nil
}

const generalSystem = `You are a helpful assistant for a team using a work-tracking system.
Answer general questions about agile practice and the tracker concisely. You have no access to work item data for this answer.`

const generalUser = `Conversation so far:
{{.history}}

Question: {{.query}}`

// General builds the prompt for questions that need no tracker data.
func General(query string, history []models.ConversationTurn) (Prompt, error) {
	user, err := render(generalUser, map[string]any{"history": History(history), "query": query})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: generalSystem, User: user}, nil
}

const validateSystem = `You check an answer about work items against the data it was based on.
List every statement in the answer that contradicts the data. If there are contradictions, write a corrected answer that uses only the data.`

const validateUser = `Question: {{.query}}

Answer:
{{.answer}}

Heuristic flags:
{{.flags}}

Work items ({{.count}}):
{{.items}}`

// Validate builds the answer cross-check prompt.
func Validate(query, answer string, items []models.WorkItem, flags []string) (Prompt, error) {
	user, err := render(validateUser, map[string]any{
		"query":  query,
		"answer": answer,
		"flags":  "- " + strings.Join(flags, "\n- "),
		"count":  len(items),
		"items":  Items(items),
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: validateSystem, User: user, Schema: ValidationSchema}, nil
}

func entryNames(entries []models.MetadataEntry, preferPath bool) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if preferPath && e.Path != "" {
			out = append(out, e.Path)
			continue
		}
		out = append(out, e.Name)
	}
	return out
}

func orNone(list []string) string {
	if len(list) == 0 {
		return "(unknown)"
	}
	if len(list) > 30 {
		list = list[:30]
	}
	return strings.Join(list, "; ")
}
