package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

const (
	EncoderJSON = "json"
	EncoderForm = "form"

	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

type PayloadField struct {
	Key   string
	Value any
}

// FieldEncoder is implemented by generic encoders that serialize only the
// payload-field bindings, in declaration order, with absent values removed.
type FieldEncoder interface {
	EncodeFields(ctx context.Context, fields []PayloadField) (Payload, error)
}

type JSONEncoder struct{}

func (JSONEncoder) Encode(ctx context.Context, args Args) (Payload, error) {
	fields := make([]PayloadField, 0, len(args))
	for key, value := range args {
		fields = append(fields, PayloadField{Key: key, Value: value})
	}
	return JSONEncoder{}.EncodeFields(ctx, fields)
}

func (JSONEncoder) EncodeFields(_ context.Context, fields []PayloadField) (Payload, error) {
	doc := make(map[string]any, len(fields))
	for _, field := range fields {
		if isAbsent(field.Value) {
			continue
		}
		doc[field.Key] = field.Value
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return Payload{}, fmt.Errorf("core: encode json payload: %w", err)
	}
	return Payload{Body: body, ContentType: ContentTypeJSON}, nil
}

type FormEncoder struct{}

func (FormEncoder) Encode(ctx context.Context, args Args) (Payload, error) {
	fields := make([]PayloadField, 0, len(args))
	for key, value := range args {
		fields = append(fields, PayloadField{Key: key, Value: value})
	}
	return FormEncoder{}.EncodeFields(ctx, fields)
}

func (FormEncoder) EncodeFields(_ context.Context, fields []PayloadField) (Payload, error) {
	form := url.Values{}
	for _, field := range fields {
		values, err := formatArgValues(field.Value)
		if err != nil {
			return Payload{}, fmt.Errorf("core: form field %q: %w", field.Key, err)
		}
		for _, value := range values {
			form.Add(field.Key, value)
		}
	}
	return Payload{Body: []byte(form.Encode()), ContentType: ContentTypeForm}, nil
}

func payloadFields(tmpl RequestTemplate, args Args) []PayloadField {
	fields := make([]PayloadField, 0, len(tmpl.Params))
	for _, param := range tmpl.Params {
		if param.Role != ParamRolePayload {
			continue
		}
		value, ok := args[param.Name]
		if !ok || isAbsent(value) {
			continue
		}
		fields = append(fields, PayloadField{Key: param.WireKey(), Value: value})
	}
	return fields
}

var (
	_ PayloadEncoder = JSONEncoder{}
	_ PayloadEncoder = FormEncoder{}
	_ FieldEncoder   = JSONEncoder{}
	_ FieldEncoder   = FormEncoder{}
)
