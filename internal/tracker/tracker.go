// Package tracker defines the contract of the external work-tracking system
// and the translation of its raw records into models.WorkItem.
package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/tuannvm/workitem-qa/internal/models"
)

// ErrNotFound is returned by GetItem when the item does not exist or the
// caller cannot see it.
var ErrNotFound = errors.New("work item not found")

// ErrUnsupportedKind is returned by ListMetadata for kinds a backend has no
// equivalent for.
var ErrUnsupportedKind = errors.New("metadata kind not supported by tracker")

// RawItem is one item exactly as the tracker API returned it.
type RawItem map[string]interface{}

// Client is the work-tracking system as seen by the executor.
type Client interface {
	// SearchItems runs a structured query body (a WHERE clause with an
	// optional ORDER BY) and returns the matching items in result order.
	SearchItems(ctx context.Context, query string) ([]RawItem, error)
	// GetItem fetches one item by id, returning ErrNotFound when absent.
	GetItem(ctx context.Context, id string) (RawItem, error)
	// ListMetadata returns the named vocabulary list.
	ListMetadata(ctx context.Context, kind models.MetadataKind) ([]models.MetadataEntry, error)
}

// StatusError is a non-success HTTP response from the tracker.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d, body: %s", e.Op, e.Status, e.Body)
}
