package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/tuannvm/workitem-qa/internal/conversation"
)

// Fatal pipeline errors. They are reported to the caller without retry.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrConversationNotFound = conversation.ErrNotFound
	ErrOwnershipMismatch    = conversation.ErrOwnershipMismatch
	ErrTimeout              = errors.New("pipeline timed out")
)

// Kind classifies a PipelineError.
type Kind string

const (
	KindInvalidInput         Kind = "invalid_input"
	KindConversationNotFound Kind = "conversation_not_found"
	KindOwnershipMismatch    Kind = "ownership_mismatch"
	KindTimeout              Kind = "timeout"
	KindInternal             Kind = "internal"
)

// PipelineError is a failure that ends a run. Msg is safe to show to users.
type PipelineError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// asPipelineError maps err onto the error taxonomy.
func asPipelineError(err error) *PipelineError {
	var pe *PipelineError
	switch {
	case errors.As(err, &pe):
		return pe
	case errors.Is(err, ErrInvalidInput):
		return &PipelineError{Kind: KindInvalidInput, Msg: "The question could not be processed.", Err: err}
	case errors.Is(err, ErrConversationNotFound):
		return &PipelineError{Kind: KindConversationNotFound, Msg: "The conversation was not found or has expired.", Err: err}
	case errors.Is(err, ErrOwnershipMismatch):
		return &PipelineError{Kind: KindOwnershipMismatch, Msg: "The conversation belongs to another user.", Err: err}
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return &PipelineError{Kind: KindTimeout, Msg: "The request took too long. Please try again.", Err: err}
	}
	return &PipelineError{Kind: KindInternal, Msg: "Something went wrong while answering the question.", Err: err}
}
