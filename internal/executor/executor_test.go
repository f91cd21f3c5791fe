package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/workitem-qa/internal/cache"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/tracker"
	"github.com/tuannvm/workitem-qa/internal/tracker/trackertest"
	"github.com/tuannvm/workitem-qa/internal/wiql"
)

const activeBugs = "[System.State] IN ('Active') AND [System.WorkItemType] IN ('Bug') " + wiql.DefaultOrderBy

func structured(id, body string, priority int, deps ...string) models.PlannedQuery {
	return models.PlannedQuery{ID: id, Kind: models.KindStructuredQuery, Query: body, Priority: priority, DependsOn: deps}
}

func newExecutor(f *trackertest.Fake, store cache.Store) *Executor {
	return New(f, store, Config{TTL: time.Minute, Workers: 4, CallTimeout: time.Second})
}

func TestExecuteTwiceIsServedFromCache(t *testing.T) {
	f := trackertest.NewFake()
	f.Default = []tracker.RawItem{
		trackertest.Item(3, "Crash on save", "Bug", "Active"),
		trackertest.Item(1, "Login broken", "Bug", "Active"),
	}
	e := newExecutor(f, cache.NewMemoryStore())
	plan := models.QueryPlan{ID: "plan-1", Queries: []models.PlannedQuery{
		structured("q1", activeBugs, 1),
		{ID: "q2", Kind: models.KindRestLookup, Query: "[System.Id] = 1", Priority: 1},
	}}
	f.Items["1"] = trackertest.Item(1, "Login broken", "Bug", "Active")
	filters := &models.Filters{ExcludeStates: []string{"Closed"}}

	first := e.Execute(context.Background(), plan, filters, models.Options{})
	require.Equal(t, 2, first.SuccessfulQueries)
	assert.Equal(t, 2, first.ExternalCalls)
	assert.False(t, first.FullyCached())

	second := e.Execute(context.Background(), plan, filters, models.Options{})
	assert.Equal(t, 2, f.CallCount(), "no additional tracker calls")
	assert.Equal(t, 0, second.ExternalCalls)
	assert.Equal(t, 2, second.CacheHits)
	assert.True(t, second.FullyCached())
	for _, r := range second.Results {
		assert.True(t, r.Cached, r.QueryID)
	}
	assert.Equal(t, first.WorkItems, second.WorkItems)
	assert.Equal(t, []string{"3", "1"}, ids(second.WorkItems))
}

func TestSkipCacheStillWrites(t *testing.T) {
	f := trackertest.NewFake()
	store := cache.NewMemoryStore()
	e := newExecutor(f, store)
	plan := models.QueryPlan{ID: "p", Queries: []models.PlannedQuery{structured("q1", activeBugs, 1)}}

	e.Execute(context.Background(), plan, nil, models.Options{SkipCache: true})
	e.Execute(context.Background(), plan, nil, models.Options{SkipCache: true})
	assert.Equal(t, 2, f.CallCount())

	res := e.Execute(context.Background(), plan, nil, models.Options{})
	assert.Equal(t, 2, f.CallCount())
	assert.True(t, res.Results[0].Cached)
}

func TestFiltersAreComposed(t *testing.T) {
	f := trackertest.NewFake()
	e := newExecutor(f, nil)
	plan := models.QueryPlan{ID: "p", Queries: []models.PlannedQuery{structured("q1", "[System.State] IN ('Active') "+wiql.DefaultOrderBy, 1)}}

	e.Execute(context.Background(), plan, &models.Filters{
		ExcludeStates:   []string{"Closed"},
		ExcludeCreators: []string{"bot"},
		OnlyMine:        true,
		MaxAgeDays:      30,
	}, models.Options{})

	require.Len(t, f.Queries, 1)
	assert.Equal(t, "[System.State] IN ('Active') AND [System.State] NOT IN ('Closed') AND "+
		"[System.CreatedBy] NOT IN ('bot') AND [System.AssignedTo] = @Me AND "+
		"[System.ChangedDate] >= @Today - 30 "+wiql.DefaultOrderBy, f.Queries[0])
}

func TestCacheKey(t *testing.T) {
	q := structured("q1", activeBugs, 1)
	a := CacheKey("plan-1", q, activeBugs, &models.Filters{ExcludeStates: []string{"Closed", "Done"}})
	b := CacheKey("plan-1", q, activeBugs, &models.Filters{ExcludeStates: []string{"done", "closed"}})
	c := CacheKey("plan-1", q, activeBugs, &models.Filters{OnlyMine: true})
	d := CacheKey("plan-1", q, activeBugs, nil)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, c, d)
	assert.Equal(t, d, CacheKey("plan-1", q, activeBugs, &models.Filters{}))
	assert.True(t, strings.HasPrefix(a, "wq:query:plan-1:q1:structured_query:"))
	assert.NotContains(t, a, "Active")
}

func TestDependencyFailures(t *testing.T) {
	f := trackertest.NewFake()
	f.Errors["[System.State] = 'Broken' "+wiql.DefaultOrderBy] = errors.New("status 400")
	e := newExecutor(f, nil)
	plan := models.QueryPlan{ID: "p", Queries: []models.PlannedQuery{
		structured("q1", "[System.State] = 'Broken' "+wiql.DefaultOrderBy, 1),
		structured("q2", "[System.Id] IN ({{q1.ids}})", 2, "q1"),
		{ID: "q3", Kind: models.KindStructuredQuery, Query: "[System.Id] IN ({{q1.ids}})", Priority: 2, DependsOn: []string{"q1"}, Optional: true},
		structured("q4", activeBugs, 3),
	}}

	res := e.Execute(context.Background(), plan, nil, models.Options{})
	require.Len(t, res.Results, 4)
	assert.Equal(t, 4, res.TotalQueries)
	assert.Equal(t, 1, res.SuccessfulQueries)
	assert.Equal(t, 2, res.FailedQueries)

	assert.Contains(t, res.Results[0].Error, "status 400")
	assert.False(t, res.Results[1].Success)
	assert.Contains(t, res.Results[1].Error, "dependency not met")
	assert.True(t, res.Results[2].Skipped)
	assert.True(t, res.Results[3].Success, "later queries still run")
	assert.Equal(t, 2, f.CallCount())
}

func TestDependencyOnLaterPriorityIsUnmet(t *testing.T) {
	f := trackertest.NewFake()
	e := newExecutor(f, nil)
	plan := models.QueryPlan{ID: "p", Queries: []models.PlannedQuery{
		structured("q1", "[System.Id] IN ({{q2.ids}})", 1, "q2"),
		structured("q2", activeBugs, 2),
	}}
	res := e.Execute(context.Background(), plan, nil, models.Options{})
	assert.Contains(t, res.Results[0].Error, "dependency not met")
	assert.True(t, res.Results[1].Success)
}

func TestReferencesResolveWithinGroup(t *testing.T) {
	f := trackertest.NewFake()
	f.Items["10"] = trackertest.Item(10, "Parent", "Feature", "Active", 11, 12)
	f.Default = []tracker.RawItem{trackertest.Item(11, "Child", "Task", "New")}
	e := newExecutor(f, nil)
	plan := models.QueryPlan{ID: "p", Queries: []models.PlannedQuery{
		structured("q2", "[System.Id] IN ({{q1.relations}}) "+wiql.DefaultOrderBy, 1, "q1"),
		{ID: "q1", Kind: models.KindRestLookup, Query: "[System.Id] = 10", Priority: 1},
	}}

	res := e.Execute(context.Background(), plan, nil, models.Options{})
	require.Equal(t, 2, res.SuccessfulQueries)
	assert.Equal(t, []string{"10", "[System.Id] IN (11, 12) " + wiql.DefaultOrderBy}, f.Queries)
	assert.Equal(t, []string{"11", "10"}, ids(res.WorkItems), "flattened in plan order")
}

func TestEmptyReferenceSkipsCall(t *testing.T) {
	f := trackertest.NewFake()
	f.Items["10"] = trackertest.Item(10, "Lonely", "Task", "New")
	e := newExecutor(f, nil)
	plan := models.QueryPlan{ID: "p", Queries: []models.PlannedQuery{
		{ID: "q1", Kind: models.KindRestLookup, Query: "[System.Id] = 10", Priority: 1},
		structured("q2", "[System.Id] IN ({{q1.relations}})", 2, "q1"),
	}}
	res := e.Execute(context.Background(), plan, nil, models.Options{})
	assert.Equal(t, 2, res.SuccessfulQueries)
	assert.Equal(t, 1, f.CallCount())
}

func TestLookupNotFoundIsEmptySuccess(t *testing.T) {
	f := trackertest.NewFake()
	e := newExecutor(f, nil)
	plan := models.QueryPlan{ID: "p", Queries: []models.PlannedQuery{
		{ID: "q1", Kind: models.KindRestLookup, Query: "[System.Id] = 12345", Priority: 1},
	}}
	res := e.Execute(context.Background(), plan, nil, models.Options{})
	require.True(t, res.Results[0].Success)
	assert.Empty(t, res.WorkItems)
	assert.NotNil(t, res.WorkItems)
}

func TestMetadataLookup(t *testing.T) {
	f := trackertest.NewFake()
	f.Meta[models.MetadataSprints] = []models.MetadataEntry{{Name: "Sprint 1", Kind: models.MetadataSprints}}
	e := newExecutor(f, nil)
	plan := models.QueryPlan{ID: "p", Queries: []models.PlannedQuery{
		{ID: "q1", Kind: models.KindMetadataLookup, Query: "sprints", Priority: 1},
		{ID: "q2", Kind: models.KindMetadataLookup, Query: "widgets", Priority: 1},
	}}
	res := e.Execute(context.Background(), plan, nil, models.Options{})
	assert.Equal(t, "Sprint 1", res.Results[0].Metadata[0].Name)
	assert.False(t, res.Results[1].Success)
	assert.Len(t, res.MetadataEntries(), 1)
	assert.True(t, res.MetadataOnly())
}

func TestPriorityOrderAndDedupe(t *testing.T) {
	f := trackertest.NewFake()
	f.Search["B"] = []tracker.RawItem{trackertest.Item(2, "two", "Bug", "New"), trackertest.Item(1, "one again", "Bug", "New")}
	f.Search["A"] = []tracker.RawItem{trackertest.Item(1, "one", "Bug", "New")}
	e := New(f, nil, Config{Workers: 1})
	plan := models.QueryPlan{ID: "p", Queries: []models.PlannedQuery{
		structured("late", "B", 5),
		structured("early", "A", 1),
	}}
	res := e.Execute(context.Background(), plan, nil, models.Options{})
	assert.Equal(t, []string{"A", "B"}, f.Queries)
	assert.Equal(t, []string{"2", "1"}, ids(res.WorkItems))
	assert.Equal(t, "two", res.WorkItems[0].Title)
	assert.Equal(t, "one again", res.WorkItems[1].Title, "first occurrence in plan order wins")
}

func TestWorkerLimit(t *testing.T) {
	f := trackertest.NewFake()
	f.Delay = 20 * time.Millisecond
	e := New(f, nil, Config{Workers: 2, CallTimeout: time.Second})
	var qs []models.PlannedQuery
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		qs = append(qs, structured(id, "[System.Title] CONTAINS '"+id+"'", 1))
	}
	res := e.Execute(context.Background(), models.QueryPlan{ID: "p", Queries: qs}, nil, models.Options{})
	assert.Equal(t, 5, res.SuccessfulQueries)
	assert.LessOrEqual(t, f.MaxPar, 2)
}

func TestCancelledContext(t *testing.T) {
	f := trackertest.NewFake()
	e := newExecutor(f, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := e.Execute(ctx, models.QueryPlan{ID: "p", Queries: []models.PlannedQuery{structured("q1", activeBugs, 1)}}, nil, models.Options{})
	assert.Equal(t, 1, res.FailedQueries)
	assert.Equal(t, 0, f.CallCount())
}

func TestMergeFilters(t *testing.T) {
	global := &models.Filters{ExcludeStates: []string{"Closed"}, MaxAgeDays: 90}
	request := &models.Filters{ExcludeStates: []string{"closed", "Removed"}, OnlyMine: true, MaxAgeDays: 30}

	got := MergeFilters(global, request)
	assert.Equal(t, []string{"Closed", "Removed"}, got.ExcludeStates)
	assert.True(t, got.OnlyMine)
	assert.Equal(t, 30, got.MaxAgeDays)

	assert.Equal(t, request, MergeFilters(nil, request))
	assert.Equal(t, global, MergeFilters(global, nil))
	assert.Empty(t, FilterClauses(nil))
}

func ids(items []models.WorkItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
