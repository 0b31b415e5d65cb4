package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/joeydtaylor/steeze-vault/pkg/codec"
	"github.com/joeydtaylor/steeze-vault/pkg/manifest"
)

// Decoder turns one message into a record. It is chosen once at startup.
type Decoder func(Message) (Record, error)

// NewDecoder resolves format into its decode function. json requires schema.
func NewDecoder(format manifest.MessageFormat, schema *Schema) (Decoder, error) {
	switch format {
	case manifest.FormatBytes, "":
		return decodeBytes, nil
	case manifest.FormatJSON:
		if schema == nil {
			return nil, errors.New("stream: json format needs a schema")
		}
		return schema.decode, nil
	default:
		return nil, fmt.Errorf("stream: unknown message format %q", format)
	}
}

func decodeBytes(m Message) (Record, error) {
	return Record{"key": string(m.Key), "value": string(m.Value)}, nil
}

// Schema is a struct schema in the JSON form used by Spark's StructType:
//
//	{"type":"struct","fields":[{"name":"email","type":"string","nullable":true}]}
type Schema struct {
	Type   string  `json:"type"`
	Fields []Field `json:"fields"`
}

type Field struct {
	Name     string          `json:"name"`
	Type     json.RawMessage `json:"type"` // "string" or a nested {"type":"struct",...}
	Nullable bool            `json:"nullable"`
	Metadata map[string]any  `json:"metadata,omitempty"`

	simple string
	nested *Schema
}

func ParseSchema(b []byte) (*Schema, error) {
	var s Schema
	if err := codec.JSONLenient.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if err := s.compile(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Schema) compile() error {
	if s.Type != "struct" {
		return fmt.Errorf("schema: top-level type must be struct (got %q)", s.Type)
	}
	if len(s.Fields) == 0 {
		return errors.New("schema: no fields")
	}
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("schema: field %d has no name", i)
		}
		var name string
		if err := json.Unmarshal(f.Type, &name); err == nil {
			f.simple = name
			continue
		}
		var inner Schema
		if err := codec.JSONLenient.Unmarshal(f.Type, &inner); err != nil {
			return fmt.Errorf("schema: field %s: %w", f.Name, err)
		}
		if inner.Type == "struct" {
			if err := inner.compile(); err != nil {
				return fmt.Errorf("schema: field %s: %w", f.Name, err)
			}
			f.nested = &inner
		} else {
			// array and map types pass through as decoded JSON
			f.simple = inner.Type
		}
	}
	return nil
}

func (s *Schema) decode(m Message) (Record, error) {
	var obj map[string]any
	if err := codec.JSONLenient.Unmarshal(m.Value, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("json value is null")
	}
	return s.project(obj), nil
}

// project keeps exactly the schema's fields. Missing fields and values of the
// wrong type come out as nil.
func (s *Schema) project(obj map[string]any) Record {
	rec := make(Record, len(s.Fields))
	for _, f := range s.Fields {
		v, ok := obj[f.Name]
		if !ok || v == nil {
			rec[f.Name] = nil
			continue
		}
		if f.nested != nil {
			inner, ok := v.(map[string]any)
			if !ok {
				rec[f.Name] = nil
				continue
			}
			rec[f.Name] = f.nested.project(inner)
			continue
		}
		rec[f.Name] = coerce(f.simple, v)
	}
	return rec
}

func coerce(typ string, v any) any {
	switch typ {
	case "string":
		if s, ok := v.(string); ok {
			return s
		}
		return nil
	case "integer", "long", "short", "byte":
		n, ok := v.(json.Number)
		if !ok {
			return nil
		}
		i, err := n.Int64()
		if err != nil {
			return nil
		}
		return i
	case "double", "float", "decimal":
		n, ok := v.(json.Number)
		if !ok {
			return nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		return f
	case "boolean":
		if b, ok := v.(bool); ok {
			return b
		}
		return nil
	default:
		return v
	}
}
