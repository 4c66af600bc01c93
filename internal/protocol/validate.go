package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://beltline.dev/schemas/"

var schemaFiles = map[string]string{
	TypeHello:   "hello.schema.json",
	TypeWelcome: "welcome.schema.json",
	TypeGesture: "gesture.schema.json",
	TypeAck:     "ack.schema.json",
	TypeFrame:   "frame.schema.json",
}

// Validator checks raw messages against the embedded JSON schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for _, file := range schemaFiles {
		raw, err := schemaFS.ReadFile("schemas/" + file)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+file, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", file, err)
		}
	}
	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(schemaFiles))}
	for typ, file := range schemaFiles {
		s, err := c.Compile(schemaBase + file)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", file, err)
		}
		v.schemas[typ] = s
	}
	return v, nil
}

// Validate checks raw against the schema of msgType.
func (v *Validator) Validate(msgType string, raw []byte) error {
	s, ok := v.schemas[msgType]
	if !ok {
		return fmt.Errorf("no schema for message type %q", msgType)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}

// ValidateValue marshals m and validates it; used for outbound messages in
// tests.
func (v *Validator) ValidateValue(msgType string, m any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return v.Validate(msgType, raw)
}
