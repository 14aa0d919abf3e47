package schema_test

import (
	"reflect"
	"testing"

	"github.com/effective-security/mcp-ollama/pkg/schema"
	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	Role    string `json:"role" jsonschema:"enum=system,enum=user,enum=assistant"`
	Content string `json:"content"`
}

type chatArgs struct {
	Model   string     `json:"model" jsonschema:"description=Name of the model"`
	Message string     `json:"message" jsonschema:"description=The message to send"`
	History []*message `json:"history,omitempty" jsonschema:"description=Prior conversation"`
}

type noArgs struct{}

func Test_New(t *testing.T) {
	s, err := schema.New(reflect.TypeOf(chatArgs{}))
	require.NoError(t, err)

	exp := `{
	"properties": {
		"model": {
			"type": "string",
			"description": "Name of the model"
		},
		"message": {
			"type": "string",
			"description": "The message to send"
		},
		"history": {
			"items": {
				"properties": {
					"role": {
						"type": "string",
						"enum": [
							"system",
							"user",
							"assistant"
						]
					},
					"content": {
						"type": "string"
					}
				},
				"type": "object",
				"required": [
					"role",
					"content"
				]
			},
			"type": "array",
			"description": "Prior conversation"
		}
	},
	"type": "object",
	"required": [
		"model",
		"message"
	]
}`
	assert.Equal(t, exp, s.String())

	// cached, also by pointer
	s2, err := schema.New(reflect.TypeOf(&chatArgs{}))
	require.NoError(t, err)
	assert.Same(t, s, s2)
}

func Test_New_Empty(t *testing.T) {
	s, err := schema.New(reflect.TypeOf(noArgs{}))
	require.NoError(t, err)
	assert.Equal(t, "object", s.Parameters.Type)
	assert.Equal(t, 0, s.Parameters.Properties.Len())
	assert.Empty(t, s.Parameters.Required)
}

func Test_New_Errors(t *testing.T) {
	_, err := schema.New(nil)
	assert.EqualError(t, err, "schema: nil type")

	_, err = schema.New(reflect.TypeOf("string"))
	assert.EqualError(t, err, "schema: expected struct, got string")
}

func Test_ToParameters_Refs(t *testing.T) {
	props := jsonschema.NewProperties()
	props.Set("item", &jsonschema.Schema{Ref: "#/$defs/Item"})
	raw := &jsonschema.Schema{
		Ref: "#/$defs/Root",
		Definitions: jsonschema.Definitions{
			"Root": {Type: "object", Properties: props, Required: []string{"item"}},
			"Item": {Type: "string"},
		},
	}

	params, err := schema.ToParameters(raw)
	require.NoError(t, err)
	item, ok := params.Properties.Get("item")
	require.True(t, ok)
	assert.Equal(t, "string", item.Type)

	props = jsonschema.NewProperties()
	props.Set("item", &jsonschema.Schema{Ref: "#/$defs/Missing"})
	_, err = schema.ToParameters(&jsonschema.Schema{Type: "object", Properties: props})
	assert.EqualError(t, err, "definition not found: Missing")
}
