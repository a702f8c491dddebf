// Package schema translates Avro writer schemas into Arrow schemas.
//
// The writer schema is the plain JSON value carried in an OCF file's
// metadata: a string for primitive types, a list for unions, or an object
// for everything else. Translation is pure and total within the supported
// subset; anything outside it fails with an error naming the offending
// node rather than mapping best-effort.
package schema

import (
	"errors"
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"

	"github.com/avroscan/avroscan/internal/json"
)

// EnumSymbolsKey is the field metadata key under which an enum column's
// declared symbols are stored, as a JSON array in declaration order. Arrow
// dictionary types don't carry their dictionaries, so schema comparison and
// dictionary seeding both read the symbols from here.
const EnumSymbolsKey = "avro.enum.symbols"

var (
	ErrUnsupportedType        = errors.New("unsupported avro type")
	ErrUnsupportedLogicalType = errors.New("unsupported avro logical type")
	ErrTopLevelNotRecord      = errors.New("top-level avro schema must be a record")
	ErrInvalidField           = errors.New("invalid avro field definition")
)

// Options control translation behavior.
type Options struct {
	// ConvertLogicalTypes downgrades an unrecognized logical type on an
	// int/long/bytes/string physical type to the bare physical type
	// instead of failing.
	ConvertLogicalTypes bool

	// SingleColName, when non-empty, wraps a non-record top-level schema
	// into a one-field schema under this name. When empty, non-record
	// top-level schemas are an error.
	SingleColName string
}

// UnwrapNullable collapses Avro's optionality forms ["null", T],
// [T, "null"] and [T] to T. Every other node passes through unchanged,
// so the unwrap is idempotent.
func UnwrapNullable(node any) any {
	branches, ok := node.([]any)
	if !ok {
		return node
	}
	switch len(branches) {
	case 1:
		return branches[0]
	case 2:
		if isNull(branches[0]) {
			return branches[1]
		}
		if isNull(branches[1]) {
			return branches[0]
		}
	}
	return node
}

func isNull(node any) bool {
	name, ok := node.(string)
	return ok && name == "null"
}

// typeName normalizes the bare-primitive and object forms of a type name:
// "long" and {"type": "long"} are the same shape.
func typeName(node any) string {
	switch n := node.(type) {
	case string:
		return n
	case map[string]any:
		if name, ok := n["type"].(string); ok {
			return name
		}
	}
	return ""
}

// Translate maps a writer schema document to an Arrow schema. The returned
// flag reports whether the top-level value had to be wrapped into a
// synthetic one-field record (see Options.SingleColName).
func Translate(document any, opts Options) (*arrow.Schema, bool, error) {
	if obj, ok := document.(map[string]any); ok && typeName(obj) == "record" {
		if fields, ok := obj["fields"].([]any); ok {
			translated, err := translateFields(fields, opts)
			if err != nil {
				return nil, false, err
			}
			return arrow.NewSchema(translated, nil), false, nil
		}
	}
	if opts.SingleColName != "" {
		field, err := TranslateField(opts.SingleColName, document, opts)
		if err != nil {
			return nil, false, err
		}
		return arrow.NewSchema([]arrow.Field{field}, nil), true, nil
	}
	return nil, false, fmt.Errorf("%w: %s", ErrTopLevelNotRecord, render(document))
}

// TranslateType maps a single Avro type node to an Arrow data type.
func TranslateType(node any, opts Options) (arrow.DataType, error) {
	dt, _, err := translateType(node, opts)
	return dt, err
}

// TranslateField maps a single Avro type node to a named, nullable Arrow
// field. Enum symbol metadata, if any, lands on the field.
func TranslateField(name string, node any, opts Options) (arrow.Field, error) {
	dt, md, err := translateType(node, opts)
	if err != nil {
		return arrow.Field{}, err
	}
	return arrow.Field{Name: name, Type: dt, Nullable: true, Metadata: md}, nil
}

// translateType dispatches on the structural shape of the unwrapped node.
// The case order is load-bearing: recognized logical-type pairs win over
// their physical types, and the unrecognized-logical-type check runs before
// the bare primitives so a stray annotation can't silently decay to its
// physical type unless Options.ConvertLogicalTypes asks for that.
func translateType(node any, opts Options) (arrow.DataType, arrow.Metadata, error) {
	node = UnwrapNullable(node)
	var md arrow.Metadata

	if obj, ok := node.(map[string]any); ok {
		if logical, ok := obj["logicalType"].(string); ok {
			if dt := logicalDataType(typeName(obj), logical); dt != nil {
				return dt, md, nil
			}
			switch typeName(obj) {
			case "int", "long", "bytes", "string":
				if !opts.ConvertLogicalTypes {
					return nil, md, fmt.Errorf("%w: %s", ErrUnsupportedLogicalType, render(node))
				}
				// fall through to the bare physical type
			}
		}
	}

	switch typeName(node) {
	case "null":
		return arrow.Null, md, nil
	case "boolean":
		return arrow.FixedWidthTypes.Boolean, md, nil
	case "int":
		return arrow.PrimitiveTypes.Int32, md, nil
	case "long":
		return arrow.PrimitiveTypes.Int64, md, nil
	case "float":
		return arrow.PrimitiveTypes.Float32, md, nil
	case "double":
		return arrow.PrimitiveTypes.Float64, md, nil
	case "bytes":
		return arrow.BinaryTypes.Binary, md, nil
	case "string":
		return arrow.BinaryTypes.String, md, nil
	case "enum":
		obj, ok := node.(map[string]any)
		if !ok {
			break
		}
		symbols, ok := stringSlice(obj["symbols"])
		if !ok {
			break
		}
		md, err := enumMetadata(symbols)
		if err != nil {
			return nil, md, err
		}
		dt := &arrow.DictionaryType{
			IndexType: arrow.PrimitiveTypes.Int32,
			ValueType: arrow.BinaryTypes.String,
			Ordered:   true,
		}
		return dt, md, nil
	case "array":
		obj, ok := node.(map[string]any)
		if !ok {
			break
		}
		items, ok := obj["items"]
		if !ok {
			break
		}
		elem, elemMD, err := translateType(items, opts)
		if err != nil {
			return nil, md, err
		}
		list := arrow.ListOfField(arrow.Field{
			Name:     "item",
			Type:     elem,
			Nullable: true,
			Metadata: elemMD,
		})
		return list, md, nil
	case "record":
		obj, ok := node.(map[string]any)
		if !ok {
			break
		}
		fields, ok := obj["fields"].([]any)
		if !ok {
			break
		}
		translated, err := translateFields(fields, opts)
		if err != nil {
			return nil, md, err
		}
		return arrow.StructOf(translated...), md, nil
	}

	return nil, md, fmt.Errorf("%w: %s", ErrUnsupportedType, render(node))
}

// translateFields maps a record's field list, preserving declaration order.
// A field without a name or type is a structural error: the decoder
// guarantees well-formed records, so this is an internal invariant, not
// user input.
func translateFields(fields []any, opts Options) ([]arrow.Field, error) {
	translated := make([]arrow.Field, 0, len(fields))
	for _, raw := range fields {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidField, render(raw))
		}
		name, ok := obj["name"].(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidField, render(raw))
		}
		typ, ok := obj["type"]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidField, render(raw))
		}
		field, err := TranslateField(name, typ, opts)
		if err != nil {
			return nil, err
		}
		translated = append(translated, field)
	}
	return translated, nil
}

// logicalDataType maps the recognized (physical, logical) pairs; any other
// pair returns nil and is handled by the caller.
func logicalDataType(physical, logical string) arrow.DataType {
	switch physical {
	case "long":
		switch logical {
		case "timestamp-millis":
			return &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}
		case "timestamp-micros":
			return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
		case "timestamp-nanos":
			return &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}
		case "local-timestamp-millis":
			return &arrow.TimestampType{Unit: arrow.Millisecond}
		case "local-timestamp-micros":
			return &arrow.TimestampType{Unit: arrow.Microsecond}
		case "local-timestamp-nanos":
			return &arrow.TimestampType{Unit: arrow.Nanosecond}
		}
	case "int":
		if logical == "date" {
			return arrow.FixedWidthTypes.Date32
		}
	}
	return nil
}

// Equal reports whether two translated schemas agree on names, types and
// field metadata. Metadata participates so that enum columns with different
// symbol sets, at any nesting depth, compare unequal even though their
// dictionary types are structurally identical.
func Equal(a, b *arrow.Schema) bool {
	if a.NumFields() != b.NumFields() {
		return false
	}
	for i := 0; i < a.NumFields(); i++ {
		fa, fb := a.Field(i), b.Field(i)
		if fa.Name != fb.Name ||
			!arrow.TypeEqual(fa.Type, fb.Type, arrow.CheckMetadata()) ||
			!fa.Metadata.Equal(fb.Metadata) {
			return false
		}
	}
	return true
}

// EnumSymbols extracts an enum field's declared symbols from its metadata.
// Returns nil when the field carries none.
func EnumSymbols(md arrow.Metadata) ([]string, error) {
	idx := md.FindKey(EnumSymbolsKey)
	if idx < 0 {
		return nil, nil
	}
	var symbols []string
	if err := json.Unmarshal([]byte(md.Values()[idx]), &symbols); err != nil {
		return nil, fmt.Errorf("failed to parse enum symbols metadata: %w", err)
	}
	return symbols, nil
}

func enumMetadata(symbols []string) (arrow.Metadata, error) {
	encoded, err := json.Marshal(symbols)
	if err != nil {
		return arrow.Metadata{}, fmt.Errorf("failed to encode enum symbols: %w", err)
	}
	return arrow.NewMetadata([]string{EnumSymbolsKey}, []string{string(encoded)}), nil
}

func stringSlice(v any) ([]string, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, len(raw))
	for i, s := range raw {
		name, ok := s.(string)
		if !ok {
			return nil, false
		}
		out[i] = name
	}
	return out, true
}

// render formats a schema fragment for error messages.
func render(node any) string {
	encoded, err := json.Marshal(node)
	if err != nil {
		return fmt.Sprintf("%v", node)
	}
	return string(encoded)
}
