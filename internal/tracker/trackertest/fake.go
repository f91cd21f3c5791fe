// Package trackertest provides an in-memory tracker.Client for tests.
package trackertest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/tracker"
)

// Fake answers searches from a fixed table and counts every call.
type Fake struct {
	mu sync.Mutex

	// Search maps an exact query to its result; Default answers the rest.
	Search  map[string][]tracker.RawItem
	Default []tracker.RawItem
	Items   map[string]tracker.RawItem
	Meta    map[models.MetadataKind][]models.MetadataEntry
	// Errors fails calls whose query, id or kind matches.
	Errors map[string]error
	Delay  time.Duration

	Queries  []string
	Calls    int
	inFlight int
	MaxPar   int
}

// NewFake creates an empty fake.
func NewFake() *Fake {
	return &Fake{
		Search: map[string][]tracker.RawItem{},
		Items:  map[string]tracker.RawItem{},
		Meta:   map[models.MetadataKind][]models.MetadataEntry{},
		Errors: map[string]error{},
	}
}

var _ tracker.Client = (*Fake)(nil)

func (f *Fake) enter(key string) error {
	f.mu.Lock()
	f.Calls++
	f.Queries = append(f.Queries, key)
	f.inFlight++
	if f.inFlight > f.MaxPar {
		f.MaxPar = f.inFlight
	}
	err := f.Errors[key]
	delay := f.Delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (f *Fake) leave() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

// SearchItems implements tracker.Client.
func (f *Fake) SearchItems(ctx context.Context, query string) ([]tracker.RawItem, error) {
	defer f.leave()
	if err := f.enter(query); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if items, ok := f.Search[query]; ok {
		return items, nil
	}
	return f.Default, nil
}

// GetItem implements tracker.Client.
func (f *Fake) GetItem(ctx context.Context, id string) (tracker.RawItem, error) {
	defer f.leave()
	if err := f.enter(id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.Items[id]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", id, tracker.ErrNotFound)
	}
	return item, nil
}

// ListMetadata implements tracker.Client.
func (f *Fake) ListMetadata(ctx context.Context, kind models.MetadataKind) ([]models.MetadataEntry, error) {
	defer f.leave()
	if err := f.enter(string(kind)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Meta[kind], nil
}

// CallCount returns the number of calls so far.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}

// Item builds an ADO-shaped raw record.
func Item(id int, title, typ, state string, related ...int) tracker.RawItem {
	raw := tracker.RawItem{
		"id": float64(id),
		"fields": map[string]interface{}{
			"System.Title":        title,
			"System.WorkItemType": typ,
			"System.State":        state,
		},
		"url": "https://dev.azure.com/org/proj/_apis/wit/workItems/" + strconv.Itoa(id),
	}
	if len(related) > 0 {
		rels := make([]interface{}, 0, len(related))
		for _, r := range related {
			rels = append(rels, map[string]interface{}{
				"rel": "System.LinkTypes.Related",
				"url": "https://dev.azure.com/org/proj/_apis/wit/workItems/" + strconv.Itoa(r),
			})
		}
		raw["relations"] = rels
	}
	return raw
}
