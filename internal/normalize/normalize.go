// Package normalize maps raw inference responses to plain text.
//
// Responses arrive in a few shapes: a list of objects or a single object,
// carrying the text under one of several keys depending on the remote model.
// Bodies are decoded into structpb.Value, the JSON tagged union, and Text
// walks a fixed priority list over it.
package normalize

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// UnrecognizedFormat is returned by Text when no accepted shape matches.
const UnrecognizedFormat = "Unrecognized response format"

// Fields lists the accepted text keys in priority order.
var Fields = []string{"generated_text", "summary_text", "answer"}

// Decode parses a JSON body of any shape.
func Decode(body []byte) (*structpb.Value, error) {
	v := &structpb.Value{}
	if err := protojson.Unmarshal(body, v); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	return v, nil
}

// Text returns the first accepted field of v. List-wrapped responses are
// checked on element zero first, then bare objects. It never fails.
func Text(v *structpb.Value) string {
	if v == nil {
		return UnrecognizedFormat
	}

	if list := v.GetListValue(); list != nil {
		if len(list.GetValues()) > 0 {
			if s, ok := field(list.GetValues()[0].GetStructValue()); ok {
				return s
			}
		}
		return UnrecognizedFormat
	}

	if s, ok := field(v.GetStructValue()); ok {
		return s
	}
	return UnrecognizedFormat
}

// Body decodes body and normalizes it.
func Body(body []byte) (string, error) {
	v, err := Decode(body)
	if err != nil {
		return "", err
	}
	return Text(v), nil
}

func field(obj *structpb.Struct) (string, bool) {
	if obj == nil {
		return "", false
	}
	for _, key := range Fields {
		f, ok := obj.GetFields()[key]
		if !ok {
			continue
		}
		if s, isString := f.GetKind().(*structpb.Value_StringValue); isString {
			return s.StringValue, true
		}
	}
	return "", false
}
