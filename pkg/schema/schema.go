// Package schema derives JSON schemas of tool parameters from Go types.
package schema

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	cache   = make(map[reflect.Type]*Schema)
	cacheMu sync.Mutex
)

// Schema of a parameters type
type Schema struct {
	RawSchema *jsonschema.Schema
	// Parameters is the object schema of the tool arguments, without definitions.
	Parameters *jsonschema.Schema
}

// New returns the schema of the type, the result is cached per type.
func New(t reflect.Type) (*Schema, error) {
	if t == nil {
		return nil, errors.New("schema: nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errors.Newf("schema: expected struct, got %s", t.Kind())
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if s, ok := cache[t]; ok {
		return s, nil
	}

	raw := JSONSchema(t)
	params, err := ToParameters(raw)
	if err != nil {
		return nil, errors.WithMessagef(err, "schema: %s", t.Name())
	}

	s := &Schema{
		RawSchema:  raw,
		Parameters: params,
	}
	cache[t] = s
	return s, nil
}

func (s *Schema) String() string {
	js, _ := json.MarshalIndent(s.Parameters, "", "\t")
	return string(js)
}

// ToParameters returns the top level object of the schema,
// with references to definitions replaced by the definitions.
func ToParameters(raw *jsonschema.Schema) (*jsonschema.Schema, error) {
	refID := strings.TrimPrefix(raw.Ref, "#/$defs/")

	defs := make(map[string]*jsonschema.Schema)
	root := raw
	for name, def := range raw.Definitions {
		if name == refID {
			root = def
		} else {
			defs[name] = def
		}
	}

	res := &jsonschema.Schema{
		Type:       root.Type,
		Properties: root.Properties,
		Required:   root.Required,
	}
	if res.Properties == nil {
		res.Properties = orderedmap.New[string, *jsonschema.Schema]()
	}

	if err := resolveRefs(res.Properties, defs); err != nil {
		return nil, err
	}
	return res, nil
}

func resolveRefs(props *orderedmap.OrderedMap[string, *jsonschema.Schema], defs map[string]*jsonschema.Schema) error {
	for pair := props.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Ref != "" {
			name := strings.TrimPrefix(pair.Value.Ref, "#/$defs/")
			def, ok := defs[name]
			if !ok {
				return errors.Newf("definition not found: %s", name)
			}
			pair.Value = def
		}

		child := pair.Value
		if child.Properties != nil {
			if err := resolveRefs(child.Properties, defs); err != nil {
				return err
			}
		}
		if child.Items != nil && child.Items.Ref != "" {
			name := strings.TrimPrefix(child.Items.Ref, "#/$defs/")
			def, ok := defs[name]
			if !ok {
				return errors.Newf("definition not found: %s", name)
			}
			child.Items = def
		}
	}
	return nil
}

// JSONSchema returns the JSON schema of the type
func JSONSchema(t reflect.Type) *jsonschema.Schema {
	r := &jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            true,
		AllowAdditionalProperties: true,
		// types with the same name in different packages get distinct names
		Namer: func(t reflect.Type) string {
			name := t.Name()
			if t.Kind() == reflect.Struct {
				fullname := t.PkgPath() + "/" + name
				name = name + "@" + strconv.FormatUint(xxhash.Sum64String(fullname), 10)
			}
			return name
		},
	}
	return r.ReflectFromType(t)
}
