// Package agents exposes the question answering pipeline as an A2A agent.
package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-a2a-go/protocol"
	"trpc.group/trpc-go/trpc-a2a-go/server"
	"trpc.group/trpc-go/trpc-a2a-go/taskmanager"

	"github.com/tuannvm/workitem-qa/internal/common"
	"github.com/tuannvm/workitem-qa/internal/config"
	"github.com/tuannvm/workitem-qa/internal/identity"
	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/orchestrator"
)

const (
	stateWorking   = protocol.TaskState("working")
	stateCompleted = protocol.TaskState("completed")
	stateFailed    = protocol.TaskState("failed")

	// tokens are forwarded in batches of at least this many bytes
	tokenBatch = 80
)

// Answerer is the part of the pipeline the agent needs.
type Answerer interface {
	ProcessStream(ctx context.Context, req orchestrator.Request) <-chan models.Event
}

// QueryAgent answers questions about work items over A2A.
type QueryAgent struct {
	cfg      *config.Config
	pipeline Answerer
	srv      *server.A2AServer
}

var _ taskmanager.TaskProcessor = (*QueryAgent)(nil)

// NewQueryAgent creates the agent around a pipeline.
func NewQueryAgent(cfg *config.Config, pipeline Answerer) *QueryAgent {
	return &QueryAgent{cfg: cfg, pipeline: pipeline}
}

// Skills advertised on the agent card.
func Skills() []server.AgentSkill {
	return []server.AgentSkill{
		{
			ID:          "ask-work-items",
			Name:        "Ask about work items",
			Description: common.StringPtr("Answers natural-language questions about work items, sprints and assignments"),
			Tags:        []string{"work-items", "wiql", "sprints"},
			Examples: []string{
				"show me active bugs",
				"what is assigned to me in the current sprint",
				"/state Active /type Bug",
			},
			InputModes:  []string{"text", "data"},
			OutputModes: []string{"text", "data"},
		},
	}
}

// SetupA2AServer builds the A2A server for this agent.
func (a *QueryAgent) SetupA2AServer() error {
	srv, err := common.SetupServer(common.SetupServerOptions{
		AgentName:    a.cfg.AgentName,
		AgentVersion: a.cfg.AgentVersion,
		AgentURL:     a.cfg.AgentURL,
		Description:  "Answers questions about work items in the team's tracker",
		AuthType:     a.cfg.AuthType,
		JWTSecret:    a.cfg.JWTSecret,
		APIKey:       a.cfg.APIKey,
		Processor:    a,
		Skills:       Skills(),
	})
	if err != nil {
		return err
	}
	a.srv = srv
	return nil
}

// StartA2AServer serves until ctx is done.
func (a *QueryAgent) StartA2AServer(ctx context.Context) error {
	if a.srv == nil {
		return errors.New("A2A server is not set up")
	}
	return common.StartServer(ctx, a.srv, a.cfg.ServerHost, a.cfg.ServerPort)
}

// Process implements taskmanager.TaskProcessor. Pipeline events become
// status updates; the final answer is recorded as text and data artifacts.
func (a *QueryAgent) Process(ctx context.Context, taskID string, message protocol.Message, handle taskmanager.TaskHandle) error {
	logger := log.With("task", taskID)

	req, err := RequestFromMessage(message)
	if err != nil {
		logger.Warnf("Rejecting task: %v", err)
		fail := textMessage(fmt.Sprintf("Invalid request: %v", err))
		if uerr := handle.UpdateStatus(stateFailed, fail); uerr != nil {
			logger.Errorf("Failed to update task status: %v", uerr)
		}
		return err
	}
	req.UserID = identity.Resolve(ctx, req.UserID)
	logger.Infof("Processing question for user %q: %s", req.UserID, log.Truncate(req.Query))

	if err := handle.UpdateStatus(stateWorking, nil); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	var pending strings.Builder
	flush := func() error {
		if pending.Len() == 0 {
			return nil
		}
		msg := textMessage(pending.String())
		pending.Reset()
		return handle.UpdateStatus(stateWorking, msg)
	}

	for ev := range a.pipeline.ProcessStream(ctx, req) {
		var err error
		switch ev.Type {
		case models.EventToken:
			pending.WriteString(ev.Text)
			if pending.Len() >= tokenBatch {
				err = flush()
			}
		case models.EventToolUse:
			if err = flush(); err == nil {
				err = handle.UpdateStatus(stateWorking, textMessage("Running queries:\n"+strings.Join(ev.Queries, "\n")))
			}
		case models.EventVerifying:
			if err = flush(); err == nil {
				err = handle.UpdateStatus(stateWorking, textMessage("Verifying the answer against the data..."))
			}
		case models.EventCorrection:
			if err = flush(); err == nil {
				err = handle.UpdateStatus(stateWorking, textMessage("Corrected answer: "+ev.Text))
			}
		case models.EventDone:
			if err = flush(); err == nil {
				return a.complete(handle, ev.Response)
			}
		case models.EventError:
			logger.Warnf("Pipeline failed: %s", ev.Error)
			if ferr := handle.UpdateStatus(stateFailed, responseMessage(ev.Response, ev.Error)); ferr != nil {
				logger.Errorf("Failed to update task status: %v", ferr)
			}
			return errors.New(ev.Error)
		}
		if err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
	}
	// The stream closed without a terminal event: the caller went away.
	return ctx.Err()
}

func (a *QueryAgent) complete(handle taskmanager.TaskHandle, resp *models.OrchestratedResponse) error {
	if resp == nil {
		return errors.New("pipeline finished without a response")
	}
	artifact := protocol.Artifact{
		Name:        common.StringPtr("answer"),
		Description: common.StringPtr("Answer with the work items it is based on"),
		Parts: []protocol.Part{
			protocol.NewTextPart(resp.Summary),
			&protocol.DataPart{
				Type: "data",
				Data: resp,
				Metadata: map[string]interface{}{
					"content-type": "application/json",
				},
			},
		},
		Metadata: map[string]interface{}{
			"conversationId": resp.Metadata.ConversationID,
			"corrected":      resp.Metadata.Corrected,
		},
	}
	if err := handle.AddArtifact(artifact); err != nil {
		return fmt.Errorf("failed to record artifact: %w", err)
	}
	if err := handle.UpdateStatus(stateCompleted, responseMessage(resp, "")); err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	return nil
}

// RequestFromMessage builds a pipeline request from an inbound message: a
// plain question, or an object with query, userId, conversationId, filters
// and options.
func RequestFromMessage(message protocol.Message) (orchestrator.Request, error) {
	payload, err := common.ExtractPayload(message)
	if err != nil {
		return orchestrator.Request{}, err
	}
	if payload.Data == nil {
		return orchestrator.Request{Query: payload.Text}, nil
	}
	return RequestFromMap(payload.Data)
}

// RequestFromMap accepts both camelCase and snake_case keys.
func RequestFromMap(data map[string]interface{}) (orchestrator.Request, error) {
	query, ok := common.GetStringValue(data, "query", "question", "text")
	if !ok {
		return orchestrator.Request{}, errors.New("missing required field: query")
	}
	req := orchestrator.Request{Query: query}
	req.UserID, _ = common.GetStringValue(data, "userId", "user_id")
	req.ConversationID, _ = common.GetStringValue(data, "conversationId", "conversation_id")

	if raw, ok := data["filters"]; ok && raw != nil {
		var f models.Filters
		if err := common.Decode(raw, &f); err != nil {
			return orchestrator.Request{}, fmt.Errorf("invalid filters: %w", err)
		}
		req.Filters = &f
	}
	if raw, ok := data["options"]; ok && raw != nil {
		if err := common.Decode(raw, &req.Options); err != nil {
			return orchestrator.Request{}, fmt.Errorf("invalid options: %w", err)
		}
	}
	return req, nil
}

func textMessage(text string) *protocol.Message {
	return &protocol.Message{
		Parts: []protocol.Part{protocol.NewTextPart(text)},
	}
}

// responseMessage carries the JSON response, or just fallback when there is
// none.
func responseMessage(resp *models.OrchestratedResponse, fallback string) *protocol.Message {
	if resp == nil {
		return textMessage(fallback)
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return textMessage(resp.Summary)
	}
	return textMessage(string(body))
}
