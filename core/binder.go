package core

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Bind substitutes args into tmpl. It has no side effects: binding the same
// inputs twice yields equal requests.
func Bind(ctx context.Context, tmpl RequestTemplate, args Args) (BoundRequest, error) {
	operationID := string(tmpl.ID)
	declared := make(map[string]ParamBinding, len(tmpl.Params))
	for _, param := range tmpl.Params {
		declared[param.Name] = param
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := declared[name]; ok {
			continue
		}
		if isAbsent(args[name]) {
			continue
		}
		return BoundRequest{}, bindingError(operationID, name, "argument does not match any parameter of the operation")
	}

	req := BoundRequest{
		OperationID: operationID,
		Method:      tmpl.Method,
		BaseURL:     strings.TrimSpace(tmpl.Operation.BaseURL),
		Query:       url.Values{},
		Headers:     http.Header{},
	}
	path := tmpl.Path
	needsPayload := false

	for _, param := range tmpl.Params {
		value := args[param.Name]
		switch param.Role {
		case ParamRolePath:
			placeholder := "{" + param.WireKey() + "}"
			if !strings.Contains(path, placeholder) {
				return BoundRequest{}, bindingError(operationID, param.Name, "path parameter has no placeholder in the template")
			}
			values, err := formatArgValues(value)
			if err != nil {
				return BoundRequest{}, bindingError(operationID, param.Name, err.Error())
			}
			if len(values) == 0 || values[0] == "" {
				return BoundRequest{}, bindingError(operationID, param.Name, "required path parameter is missing")
			}
			if len(values) > 1 {
				return BoundRequest{}, bindingError(operationID, param.Name, "path parameter must be a single value")
			}
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(values[0]))
		case ParamRoleQuery, ParamRoleHeader:
			values, err := formatArgValues(value)
			if err != nil {
				return BoundRequest{}, bindingError(operationID, param.Name, err.Error())
			}
			if len(values) == 0 {
				if param.Required {
					return BoundRequest{}, bindingError(operationID, param.Name, "required parameter is missing")
				}
				continue
			}
			for _, v := range values {
				if param.Role == ParamRoleQuery {
					req.Query.Add(param.WireKey(), v)
				} else {
					req.Headers.Add(param.WireKey(), v)
				}
			}
		case ParamRolePayload:
			if param.Required && isAbsent(value) {
				return BoundRequest{}, bindingError(operationID, param.Name, "required payload field is missing")
			}
			needsPayload = true
		default:
			return BoundRequest{}, bindingError(operationID, param.Name, fmt.Sprintf("unsupported role %q", param.Role))
		}
	}

	if placeholderPattern.MatchString(path) {
		missing := placeholderPattern.FindStringSubmatch(path)[1]
		return BoundRequest{}, bindingError(operationID, missing, "path placeholder has no corresponding argument")
	}
	req.Path = path

	// Templates without payload fields send no body, even with an encoder set.
	if !needsPayload {
		return req, nil
	}
	if tmpl.Encoder == nil {
		return BoundRequest{}, bindingError(operationID, "encoder", "payload fields declared without a payload encoder")
	}
	var payload Payload
	var err error
	if fieldEncoder, ok := tmpl.Encoder.(FieldEncoder); ok {
		payload, err = fieldEncoder.EncodeFields(ctx, payloadFields(tmpl, args))
	} else {
		payload, err = tmpl.Encoder.Encode(ctx, cloneArgs(args))
	}
	if err != nil {
		return BoundRequest{}, wrapBindingError(err, operationID)
	}
	req.Payload = &payload
	return req, nil
}

func isAbsent(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// formatArgValues renders value as wire strings. A nil result means absent.
func formatArgValues(value any) ([]string, error) {
	if isAbsent(value) {
		return nil, nil
	}
	switch typed := value.(type) {
	case []string:
		return append([]string(nil), typed...), nil
	case []byte:
		return []string{string(typed)}, nil
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, present, err := formatScalar(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			if present {
				out = append(out, item)
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	}
	item, present, err := formatScalar(rv.Interface())
	if err != nil || !present {
		return nil, err
	}
	return []string{item}, nil
}

func formatScalar(value any) (string, bool, error) {
	if isAbsent(value) {
		return "", false, nil
	}
	switch typed := value.(type) {
	case string:
		return typed, true, nil
	case bool:
		return strconv.FormatBool(typed), true, nil
	case time.Time:
		if typed.IsZero() {
			return "", false, nil
		}
		return typed.UTC().Format(time.RFC3339), true, nil
	case time.Duration:
		return typed.String(), true, nil
	case fmt.Stringer:
		return typed.String(), true, nil
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true, nil
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true, nil
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), true, nil
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true, nil
	case reflect.Struct:
		if t, ok := rv.Interface().(time.Time); ok {
			return formatScalar(t)
		}
	}
	return "", false, fmt.Errorf("unsupported value type %T", value)
}

func cloneArgs(args Args) Args {
	out := make(Args, len(args))
	for key, value := range args {
		out[key] = value
	}
	return out
}

func cloneValues(in url.Values) url.Values {
	out := make(url.Values, len(in))
	for key, values := range in {
		out[key] = append([]string(nil), values...)
	}
	return out
}

func joinURL(base string, path string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return path
	}
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
