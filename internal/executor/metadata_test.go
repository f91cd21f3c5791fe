package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tuannvm/workitem-qa/internal/cache"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/tracker/trackertest"
)

func TestMetadataIsCachedPerKind(t *testing.T) {
	f := trackertest.NewFake()
	f.Meta[models.MetadataSprints] = []models.MetadataEntry{{Name: "Sprint 1", Path: `Phoenix\Sprint 1`, Kind: models.MetadataSprints}}
	f.Meta[models.MetadataUsers] = []models.MetadataEntry{{Name: "Jane Doe", Kind: models.MetadataUsers}}
	f.Errors[string(models.MetadataTeams)] = errors.New("forbidden")
	e := newExecutor(f, cache.NewMemoryStore())

	meta := e.Metadata(context.Background())
	assert.Len(t, meta.Sprints, 1)
	assert.Len(t, meta.Users, 1)
	assert.Empty(t, meta.Teams)
	assert.Equal(t, 4, f.CallCount())

	again := e.Metadata(context.Background())
	assert.Equal(t, meta.Sprints, again.Sprints)
	// only the failed list is retried
	assert.Equal(t, 5, f.CallCount())
}
