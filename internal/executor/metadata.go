package executor

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/tuannvm/workitem-qa/internal/cache"
	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/metrics"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/tracker"
)

// Metadata loads the vocabulary the planner resolves names against. Each
// list is cached on its own; a list that cannot be loaded stays empty.
func (e *Executor) Metadata(ctx context.Context) *models.TrackerMetadata {
	meta := &models.TrackerMetadata{}
	targets := map[models.MetadataKind]*[]models.MetadataEntry{
		models.MetadataSprints: &meta.Sprints,
		models.MetadataUsers:   &meta.Users,
		models.MetadataAreas:   &meta.Areas,
		models.MetadataTeams:   &meta.Teams,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for kind, dst := range targets {
		g.Go(func() error {
			entries, err := e.metadataList(gctx, kind)
			if err != nil {
				log.Debugf("Metadata %s unavailable: %v", kind, err)
				return nil
			}
			*dst = entries
			return nil
		})
	}
	_ = g.Wait()
	return meta
}

func (e *Executor) metadataList(ctx context.Context, kind models.MetadataKind) ([]models.MetadataEntry, error) {
	key := cache.Key("metadata", string(kind))
	if e.store != nil {
		var cached []models.MetadataEntry
		err := cache.GetJSON(ctx, e.store, key, &cached)
		if err == nil {
			metrics.CacheLookups.WithLabelValues("metadata", "hit").Inc()
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			log.Warnf("Metadata cache read failed for %s: %v", kind, err)
		}
		metrics.CacheLookups.WithLabelValues("metadata", "miss").Inc()
	}

	v, err, _ := e.flight.Do(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
		entries, err := e.tracker.ListMetadata(callCtx, kind)
		if err != nil {
			return nil, err
		}
		if e.store != nil {
			if err := cache.SetJSON(ctx, e.store, key, entries, e.cfg.MetadataTTL); err != nil {
				log.Warnf("Metadata cache write failed for %s: %v", kind, err)
			}
		}
		return entries, nil
	})
	if err != nil {
		status := "error"
		if errors.Is(err, tracker.ErrUnsupportedKind) {
			status = "unsupported"
		}
		metrics.TrackerCalls.WithLabelValues(string(models.KindMetadataLookup), status).Inc()
		return nil, err
	}
	metrics.TrackerCalls.WithLabelValues(string(models.KindMetadataLookup), "ok").Inc()
	return v.([]models.MetadataEntry), nil
}
