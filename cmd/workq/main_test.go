package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/workitem-qa/internal/wiql"
)

func TestValidateQueryClean(t *testing.T) {
	var out bytes.Buffer
	err := validateQuery(&out, "[System.State] = 'Active' "+wiql.DefaultOrderBy)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out.String())
}

func TestValidateQueryFixesLeadingWhere(t *testing.T) {
	var out bytes.Buffer
	err := validateQuery(&out, "WHERE [System.State] = 'Active'")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "leading_where")
	assert.Contains(t, out.String(), "fixed query:")
	assert.Contains(t, out.String(), wiql.DefaultOrderBy)
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"ask", "plan", "validate-query", "mcp"} {
		assert.True(t, names[want], want)
	}

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"validate-query", "[System.State] = 'Active'", wiql.DefaultOrderBy})
	require.NoError(t, root.Execute())
	assert.Equal(t, "ok\n", out.String())
}
