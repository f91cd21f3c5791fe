package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"trpc.group/trpc-go/trpc-a2a-go/client"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	"github.com/tuannvm/workitem-qa/internal/common"
	"github.com/tuannvm/workitem-qa/internal/config"
	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/models"
)

// Smoke test against a running query agent.
func main() {
	cfg := config.NewConfig()
	log.Init(cfg.LogLevel, "console")
	defer log.Sync()

	a2aClient, err := common.SetupA2AClient(cfg, cfg.AgentURL)
	if err != nil {
		log.Fatalf("Failed to create A2A client: %v", err)
	}

	testCases := []struct {
		name     string
		payload  interface{}
		expectOK bool
	}{
		{name: "Plain question", payload: "show me active bugs", expectOK: true},
		{name: "Slash command", payload: "/state Active /type Bug", expectOK: true},
		{
			name: "Structured request",
			payload: map[string]interface{}{
				"query":   "what is assigned to me in the current sprint",
				"userId":  "smoke-test",
				"filters": models.Filters{ExcludeStates: []string{"Closed"}},
			},
			expectOK: true,
		},
		{name: "Empty question", payload: map[string]interface{}{"query": ""}, expectOK: false},
		{
			name:     "Unknown conversation",
			payload:  map[string]interface{}{"query": "and the closed ones?", "conversationId": "does-not-exist"},
			expectOK: false,
		},
	}

	failures := 0
	for _, tc := range testCases {
		log.Infof("Running test case: %s", tc.name)
		ok := run(a2aClient, tc.payload)
		switch {
		case ok == tc.expectOK:
			log.Infof("PASS %s", tc.name)
		default:
			failures++
			log.Errorf("FAIL %s: expected success=%v", tc.name, tc.expectOK)
		}
		log.Infof("----------------------------------")
	}
	if failures > 0 {
		log.Errorf("%d test case(s) failed", failures)
		os.Exit(1)
	}
}

// run sends one task and polls until it finishes. It reports whether the
// task completed.
func run(a2aClient *client.A2AClient, payload interface{}) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	var text string
	if s, ok := payload.(string); ok {
		text = s
	} else {
		raw, err := json.Marshal(payload)
		if err != nil {
			log.Errorf("Failed to marshal payload: %v", err)
			return false
		}
		text = string(raw)
	}

	params := protocol.SendTaskParams{
		Message: protocol.Message{Parts: []protocol.Part{protocol.NewTextPart(text)}},
	}
	resp, err := a2aClient.SendTasks(ctx, params)
	if err != nil {
		log.Warnf("SendTasks failed: %v", err)
		return false
	}
	log.Infof("Task sent, ID: %s", resp.ID)

	task, err := common.AwaitTask(ctx, a2aClient, resp.ID, time.Second)
	if err != nil {
		log.Warnf("%v", err)
		return false
	}
	if task.Status.State != "completed" {
		log.Infof("Task ended %s: %s", task.Status.State, common.TextOf(task.Status.Message))
		return false
	}
	printAnswer(common.TextOf(task.Status.Message))
	for i, artifact := range task.Artifacts {
		name := ""
		if artifact.Name != nil {
			name = *artifact.Name
		}
		log.Infof("Artifact %d: %s (%d parts)", i+1, name, len(artifact.Parts))
	}
	return true
}

func printAnswer(body string) {
	var answer models.OrchestratedResponse
	if err := json.Unmarshal([]byte(body), &answer); err != nil {
		log.Infof("Result: %s", body)
		return
	}
	log.Infof("Answer: %s", answer.Summary)
	log.Infof("Work items: %d, confidence %.2f, conversation %s",
		len(answer.RawData), answer.Metadata.Confidence, answer.Metadata.ConversationID)
	for _, s := range answer.Suggestions {
		log.Infof("  suggestion: %s", s)
	}
}
