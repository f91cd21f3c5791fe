package common

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"
)

func text(s string) protocol.Part {
	return &protocol.TextPart{Type: "text", Text: s}
}

func TestExtractPayload(t *testing.T) {
	tests := []struct {
		name     string
		parts    []protocol.Part
		wantText string
		wantKey  string
		wantErr  bool
	}{
		{name: "plain text", parts: []protocol.Part{text("  show me bugs ")}, wantText: "show me bugs"},
		{name: "json text", parts: []protocol.Part{text(`{"query":"bugs"}`)}, wantKey: "query"},
		{name: "brace that is not json", parts: []protocol.Part{text("{not json")}, wantText: "{not json"},
		{
			name:    "data part wins",
			parts:   []protocol.Part{text("ignored"), &protocol.DataPart{Type: "data", Data: map[string]interface{}{"query": "x"}}},
			wantKey: "query",
		},
		{
			name:    "struct data",
			parts:   []protocol.Part{&protocol.DataPart{Type: "data", Data: struct{ Query string `json:"query"` }{"x"}}},
			wantKey: "query",
		},
		{name: "empty text", parts: []protocol.Part{text("   ")}, wantErr: true},
		{name: "no parts", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ExtractPayload(protocol.Message{Parts: tt.parts})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, p.Text)
			if tt.wantKey != "" {
				assert.Contains(t, p.Data, tt.wantKey)
			}
		})
	}
}

func TestTextOf(t *testing.T) {
	assert.Equal(t, "", TextOf(nil))
	msg := &protocol.Message{Parts: []protocol.Part{text("a"), &protocol.DataPart{Type: "data"}, text("b")}}
	assert.Equal(t, "ab", TextOf(msg))
}

func TestCoercion(t *testing.T) {
	obj, err := DecodeObject("Sure!\n```json\n{\"n\": 3, \"ok\": \"yes\", \"tags\": \"x\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, 3, GetInt(obj, "n", 0))
	assert.True(t, GetBool(obj, "ok", false))
	assert.Equal(t, []string{"x"}, GetStringSlice(obj, "tags"))
	assert.Equal(t, "3", GetString(obj, "n", ""))
	assert.Equal(t, "def", GetString(obj, "missing", "def"))

	_, err = DecodeObject("no json here")
	assert.Error(t, err)
}

func TestNewAuthProvider(t *testing.T) {
	p, err := NewAuthProvider("", "", "")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = NewAuthProvider("apikey", "", "")
	assert.Error(t, err)
	_, err = NewAuthProvider("oauth", "", "")
	assert.Error(t, err)

	p, err = NewAuthProvider("apikey", "", "secret")
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-API-Key", "secret")
	_, err = p.Authenticate(r)
	assert.NoError(t, err)

	r.Header.Set("X-API-Key", "wrong")
	_, err = p.Authenticate(r)
	assert.Error(t, err)
}

func TestAgentCardDefaultsDescription(t *testing.T) {
	card := agentCard(SetupServerOptions{AgentName: "workq", AgentVersion: "1.0"})
	require.NotNil(t, card.Description)
	assert.Equal(t, "workq agent", *card.Description)

	card = agentCard(SetupServerOptions{AgentName: "workq", Description: "answers"})
	assert.Equal(t, "answers", *card.Description)
}

func TestServerOptionsRejectsBadAuth(t *testing.T) {
	_, err := serverOptions(SetupServerOptions{AuthType: "apikey"})
	assert.Error(t, err)

	opts, err := serverOptions(SetupServerOptions{AuthType: "apikey", APIKey: "k"})
	require.NoError(t, err)
	assert.Len(t, opts, 4)
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	stopped := false
	cancel()
	err := serve(ctx, "test",
		func() error { <-block; return nil },
		func(context.Context) error { stopped = true; close(block); return nil })
	assert.NoError(t, err)
	assert.True(t, stopped)
}

func TestServeReportsStartFailure(t *testing.T) {
	err := serve(context.Background(), "test",
		func() error { return errors.New("bind: address in use") },
		func(context.Context) error { return nil })
	assert.ErrorContains(t, err, "address in use")
}
