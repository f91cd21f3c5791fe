// Package wiql implements the structured query language spoken to the work
// tracker: a WHERE-clause body over bracketed reference names, optionally
// followed by an ORDER BY clause.
package wiql

import "strings"

// Reference names of the fields the planner and mapper use.
const (
	FieldID            = "System.Id"
	FieldTitle         = "System.Title"
	FieldState         = "System.State"
	FieldType          = "System.WorkItemType"
	FieldAssignedTo    = "System.AssignedTo"
	FieldCreatedBy     = "System.CreatedBy"
	FieldCreatedDate   = "System.CreatedDate"
	FieldChangedDate   = "System.ChangedDate"
	FieldTags          = "System.Tags"
	FieldIterationPath = "System.IterationPath"
	FieldAreaPath      = "System.AreaPath"
	FieldDescription   = "System.Description"
	FieldTeamProject   = "System.TeamProject"
	FieldPriority      = "Microsoft.VSTS.Common.Priority"
	FieldClosedDate    = "Microsoft.VSTS.Common.ClosedDate"
	FieldStoryPoints   = "Microsoft.VSTS.Scheduling.StoryPoints"
)

// Macros understood by the tracker.
const (
	MacroMe               = "@Me"
	MacroToday            = "@Today"
	MacroCurrentIteration = "@CurrentIteration"
	MacroProject          = "@Project"
)

// DefaultOrderBy gives every query a stable result order.
const DefaultOrderBy = "ORDER BY [System.ChangedDate] DESC, [System.Id] DESC"

// DefaultFields are requested when a plan does not name its own.
var DefaultFields = []string{
	FieldID, FieldTitle, FieldType, FieldState, FieldAssignedTo, FieldCreatedBy,
	FieldCreatedDate, FieldChangedDate, FieldPriority, FieldTags,
	FieldIterationPath, FieldAreaPath, FieldStoryPoints,
}

var knownFields = map[string]bool{}

var hierarchicalFields = map[string]bool{
	strings.ToLower(FieldIterationPath): true,
	strings.ToLower(FieldAreaPath):      true,
}

func init() {
	for _, f := range []string{
		FieldID, FieldTitle, FieldState, FieldType, FieldAssignedTo, FieldCreatedBy,
		FieldCreatedDate, FieldChangedDate, FieldTags, FieldIterationPath, FieldAreaPath,
		FieldDescription, FieldTeamProject, FieldPriority, FieldClosedDate, FieldStoryPoints,
		"System.Reason", "System.BoardColumn", "System.Parent", "System.ChangedBy",
		"Microsoft.VSTS.Common.Severity", "Microsoft.VSTS.Common.ResolvedDate",
		"Microsoft.VSTS.Scheduling.RemainingWork", "Microsoft.VSTS.Scheduling.Effort",
	} {
		knownFields[strings.ToLower(f)] = true
	}
}

// IsHierarchical reports whether field holds slash- or backslash-delimited
// tree paths. Such fields only support UNDER and equality.
func IsHierarchical(field string) bool {
	return hierarchicalFields[strings.ToLower(strings.Trim(field, "[] "))]
}

// IsKnownField reports whether field is a reference name the planner knows.
// Custom fields are allowed but produce a validation warning.
func IsKnownField(field string) bool {
	return knownFields[strings.ToLower(strings.Trim(field, "[] "))]
}
