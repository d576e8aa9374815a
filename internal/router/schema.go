package router

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/aretw0/deckhand/pkg/domain"
)

//go:embed tools.yaml
var toolsYAML []byte

// schemaNames maps each action to its argument schema in tools.yaml.
var schemaNames = map[domain.ActionKind]string{
	domain.ActionReadOverview: "ReadOverviewArgs",
	domain.ActionReadDetail:   "ReadDetailArgs",
	domain.ActionExecuteEdit:  "ExecuteEditArgs",
}

// argSchemas validates tool-call arguments against the embedded OpenAPI
// document before anything reaches the reader or the sandbox.
type argSchemas struct {
	byAction map[domain.ActionKind]*openapi3.Schema
}

func loadArgSchemas() (*argSchemas, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(toolsYAML)
	if err != nil {
		return nil, fmt.Errorf("load tool schemas: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate tool schemas: %w", err)
	}

	byAction := make(map[domain.ActionKind]*openapi3.Schema, len(schemaNames))
	for action, name := range schemaNames {
		ref := doc.Components.Schemas[name]
		if ref == nil || ref.Value == nil {
			return nil, fmt.Errorf("tool schema %s missing", name)
		}
		byAction[action] = ref.Value
	}
	return &argSchemas{byAction: byAction}, nil
}

// Spec describes one tool for deciders that advertise tools to a model:
// the action name, a model-facing description, and the JSON schema of the
// argument object.
type Spec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Specs returns the advertisable tool specifications, in the stable action
// order. They come from the same embedded document the dispatcher
// validates against, so a model is never offered a shape the router would
// reject.
func Specs() ([]Spec, error) {
	schemas, err := loadArgSchemas()
	if err != nil {
		return nil, err
	}

	specs := make([]Spec, 0, len(schemaNames))
	for _, action := range domain.Actions() {
		schema := schemas.byAction[action]
		params, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("marshal %s schema: %w", action, err)
		}
		specs = append(specs, Spec{
			Name:        action.String(),
			Description: schema.Description,
			Parameters:  params,
		})
	}
	return specs, nil
}

// check validates args for one action. Values are round-tripped through
// JSON so callers may pass native Go slices and ints; a nil map counts as
// an empty argument object.
func (s *argSchemas) check(action domain.ActionKind, args map[string]any) error {
	schema, ok := s.byAction[action]
	if !ok {
		return domain.ErrUnknownAction
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return err
	}
	if value == nil {
		value = map[string]any{}
	}
	return schema.VisitJSON(value)
}
