package prompts

// JSON schemas handed to the completion service. Answers are still coerced
// field by field; the schemas only steer the model.

const IntentSchema = `{
  "type": "object",
  "properties": {
    "type": {"type": "string", "enum": ["question", "command", "analysis", "summary"]},
    "scope": {"type": "string"},
    "entities": {"type": "array", "items": {"type": "string"}},
    "dataRequired": {"type": "boolean"},
    "complexity": {"type": "string", "enum": ["simple", "multi_step", "analytical"]},
    "confidence": {"type": "number"},
    "sprintIdentifier": {"type": "string"},
    "userIdentifier": {"type": "string"},
    "issueId": {"type": "string"},
    "projectIdentifier": {"type": "string"},
    "teamIdentifier": {"type": "string"},
    "boardIdentifier": {"type": "string"},
    "areaIdentifier": {"type": "string"},
    "priority": {"type": "string"},
    "dateRange": {"type": "object", "properties": {"from": {"type": "string"}, "to": {"type": "string"}}},
    "tags": {"type": "array", "items": {"type": "string"}},
    "states": {"type": "array", "items": {"type": "string"}},
    "types": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["type", "scope", "dataRequired", "complexity", "confidence"]
}`

const DecisionSchema = `{
  "type": "object",
  "properties": {
    "requiresADO": {"type": "boolean"},
    "queriesNeeded": {"type": "array", "items": {"type": "string", "enum": ["structured_query", "rest_lookup", "metadata_lookup"]}},
    "analysisRequired": {"type": "array", "items": {"type": "string"}},
    "canUseCache": {"type": "boolean"},
    "estimatedComplexity": {"type": "integer", "minimum": 1, "maximum": 10},
    "reasoning": {"type": "string"}
  },
  "required": ["requiresADO", "queriesNeeded"]
}`

const PlanSchema = `{
  "type": "object",
  "properties": {
    "queries": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "string"},
          "kind": {"type": "string", "enum": ["structured_query", "rest_lookup", "metadata_lookup"]},
          "query": {"type": "string"},
          "fields": {"type": "array", "items": {"type": "string"}},
          "purpose": {"type": "string"},
          "dependsOn": {"type": "array", "items": {"type": "string"}},
          "priority": {"type": "integer"},
          "optional": {"type": "boolean"}
        },
        "required": ["id", "kind", "query"]
      }
    },
    "validationRules": {"type": "array", "items": {"type": "string"}},
    "successCriteria": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["queries"]
}`

const EvaluationSchema = `{
  "type": "object",
  "properties": {
    "dataQuality": {"type": "string", "enum": ["poor", "fair", "good", "excellent"]},
    "relevance": {"type": "string", "enum": ["low", "medium", "high"]},
    "completeness": {"type": "string", "enum": ["incomplete", "partial", "complete"]},
    "needsAdditional": {"type": "boolean"},
    "additionalQueries": {"type": "array", "items": {"type": "string"}},
    "insights": {"type": "array", "items": {"type": "string"}},
    "warnings": {"type": "array", "items": {"type": "string"}},
    "confidence": {"type": "number"}
  },
  "required": ["dataQuality", "relevance", "completeness", "confidence"]
}`

const SynthesisSchema = `{
  "type": "object",
  "properties": {
    "summary": {"type": "string"},
    "analysis": {
      "type": "object",
      "properties": {
        "metrics": {"type": "object", "additionalProperties": {"type": "string"}},
        "insights": {"type": "array", "items": {"type": "string"}},
        "risks": {"type": "array", "items": {"type": "string"}},
        "recommendations": {"type": "array", "items": {"type": "string"}}
      }
    },
    "suggestions": {"type": "array", "items": {"type": "string"}},
    "visualizations": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "type": {"type": "string", "enum": ["pie", "bar", "table"]},
          "title": {"type": "string"},
          "field": {"type": "string", "enum": ["state", "type", "priority", "assignee"]}
        }
      }
    }
  },
  "required": ["summary"]
}`

const ValidationSchema = `{
  "type": "object",
  "properties": {
    "accurate": {"type": "boolean"},
    "discrepancies": {"type": "array", "items": {"type": "string"}},
    "correctedAnswer": {"type": "string"}
  },
  "required": ["accurate"]
}`
