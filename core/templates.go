package core

import (
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.\-]*)\}`)

var supportedMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

// TemplateStore holds validated request templates keyed by operation id.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[TemplateID]RequestTemplate
	encoders  map[string]PayloadEncoder
}

func NewTemplateStore() *TemplateStore {
	store := &TemplateStore{
		templates: map[TemplateID]RequestTemplate{},
		encoders:  map[string]PayloadEncoder{},
	}
	store.encoders[EncoderJSON] = JSONEncoder{}
	store.encoders[EncoderForm] = FormEncoder{}
	return store
}

func (s *TemplateStore) RegisterEncoder(name string, encoder PayloadEncoder) error {
	if s == nil {
		return fmt.Errorf("core: template store is nil")
	}
	name = normalizeEncoderName(name)
	if name == "" {
		return fmt.Errorf("core: encoder name is required")
	}
	if encoder == nil {
		return fmt.Errorf("core: encoder %q is nil", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encoders[name] = encoder
	return nil
}

// Register validates op and stores its template. Registering an id twice fails.
func (s *TemplateStore) Register(op Operation) (TemplateID, error) {
	if s == nil {
		return "", fmt.Errorf("core: template store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	template, err := compileTemplate(op, s.encoders)
	if err != nil {
		return "", err
	}
	if _, exists := s.templates[template.ID]; exists {
		return "", badInputError(
			fmt.Sprintf("core: operation %q already registered", template.ID),
			map[string]any{"operation_id": string(template.ID)},
		)
	}
	s.templates[template.ID] = template
	return template.ID, nil
}

func (s *TemplateStore) Resolve(id TemplateID) (RequestTemplate, error) {
	if s == nil {
		return RequestTemplate{}, unknownOperationError(id)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	template, ok := s.templates[normalizeTemplateID(string(id))]
	if !ok {
		return RequestTemplate{}, unknownOperationError(id)
	}
	return template, nil
}

func (s *TemplateStore) List() []RequestTemplate {
	if s == nil {
		return []RequestTemplate{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.templates))
	for id := range s.templates {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	out := make([]RequestTemplate, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.templates[TemplateID(id)])
	}
	return out
}

func compileTemplate(op Operation, encoders map[string]PayloadEncoder) (RequestTemplate, error) {
	id := normalizeTemplateID(op.ID)
	meta := map[string]any{"operation_id": string(id)}
	if id == "" {
		return RequestTemplate{}, badInputError("core: operation id is required", nil)
	}
	method := strings.ToUpper(strings.TrimSpace(op.Method))
	if method == "" {
		method = http.MethodGet
	}
	if !slices.Contains(supportedMethods, method) {
		return RequestTemplate{}, badInputError(fmt.Sprintf("core: unsupported method %q", op.Method), meta)
	}
	path := strings.TrimSpace(op.Path)
	if path == "" {
		return RequestTemplate{}, badInputError("core: operation path is required", meta)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	placeholders := extractPlaceholders(path)
	seenNames := map[string]struct{}{}
	pathBindings := map[string]struct{}{}
	params := make([]ParamBinding, 0, len(op.Params))
	hasPayload := false
	for _, param := range op.Params {
		param.Name = strings.TrimSpace(param.Name)
		param.Key = strings.TrimSpace(param.Key)
		param.Role = ParamRole(strings.ToLower(strings.TrimSpace(string(param.Role))))
		if param.Name == "" {
			return RequestTemplate{}, badInputError("core: parameter name is required", meta)
		}
		if _, dup := seenNames[param.Name]; dup {
			return RequestTemplate{}, badInputError(fmt.Sprintf("core: duplicate parameter %q", param.Name), meta)
		}
		seenNames[param.Name] = struct{}{}
		switch param.Role {
		case ParamRolePath:
			if !slices.Contains(placeholders, param.WireKey()) {
				return RequestTemplate{}, badInputError(
					fmt.Sprintf("core: path parameter %q has no placeholder in %q", param.Name, path),
					meta,
				)
			}
			if _, dup := pathBindings[param.WireKey()]; dup {
				return RequestTemplate{}, badInputError(
					fmt.Sprintf("core: path placeholder {%s} is bound by more than one parameter", param.WireKey()),
					meta,
				)
			}
			pathBindings[param.WireKey()] = struct{}{}
			param.Required = true
		case ParamRoleQuery, ParamRoleHeader:
		case ParamRolePayload:
			hasPayload = true
		default:
			return RequestTemplate{}, badInputError(
				fmt.Sprintf("core: parameter %q has unsupported role %q", param.Name, param.Role),
				meta,
			)
		}
		params = append(params, param)
	}
	for _, placeholder := range placeholders {
		if _, ok := pathBindings[placeholder]; !ok {
			return RequestTemplate{}, badInputError(
				fmt.Sprintf("core: placeholder {%s} has no path parameter", placeholder),
				meta,
			)
		}
	}

	var encoder PayloadEncoder
	encoderName := normalizeEncoderName(op.Encoder)
	if hasPayload && encoderName == "" {
		encoderName = EncoderJSON
	}
	if encoderName != "" {
		resolved, ok := encoders[encoderName]
		if !ok {
			return RequestTemplate{}, badInputError(fmt.Sprintf("core: encoder %q not registered", encoderName), meta)
		}
		encoder = resolved
	}

	op.ID = string(id)
	op.Method = method
	op.Path = path
	op.Encoder = encoderName
	op.Params = append([]ParamBinding(nil), params...)
	op.Metadata = copyAnyMap(op.Metadata)

	return RequestTemplate{
		ID:           id,
		Operation:    op,
		Method:       method,
		Path:         path,
		Placeholders: placeholders,
		Params:       params,
		Encoder:      encoder,
	}, nil
}

func extractPlaceholders(path string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(path, -1)
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		if !slices.Contains(out, match[1]) {
			out = append(out, match[1])
		}
	}
	return out
}

func normalizeTemplateID(id string) TemplateID {
	return TemplateID(strings.TrimSpace(id))
}

func normalizeEncoderName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
