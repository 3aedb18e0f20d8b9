package glesys

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/goliatone/go-restbind/core"
)

var platforms = []string{"OpenVZ", "Xen", "VMware", "KVM"}

var createRequired = []string{
	"datacenter", "platform", "hostname", "templatename",
	"disksize", "memorysize", "cpucores", "transfer",
}

var createNumeric = []string{"disksize", "memorysize", "cpucores", "transfer"}

// FormEncoder is the generic form encoder with GleSYS flag rendering:
// booleans travel as 1 and 0.
type FormEncoder struct{}

func (FormEncoder) Encode(ctx context.Context, args core.Args) (core.Payload, error) {
	fields := make([]core.PayloadField, 0, len(args))
	for key, value := range args {
		fields = append(fields, core.PayloadField{Key: key, Value: value})
	}
	return FormEncoder{}.EncodeFields(ctx, fields)
}

func (FormEncoder) EncodeFields(ctx context.Context, fields []core.PayloadField) (core.Payload, error) {
	out := make([]core.PayloadField, 0, len(fields))
	for _, field := range fields {
		if flag, ok := field.Value.(bool); ok {
			field.Value = flagValue(flag)
		}
		out = append(out, field)
	}
	return core.FormEncoder{}.EncodeFields(ctx, out)
}

// CreateServerEncoder validates a server.create payload before encoding it.
type CreateServerEncoder struct{}

func (CreateServerEncoder) Encode(ctx context.Context, args core.Args) (core.Payload, error) {
	fields := make([]core.PayloadField, 0, len(args))
	for key, value := range args {
		fields = append(fields, core.PayloadField{Key: key, Value: value})
	}
	return CreateServerEncoder{}.EncodeFields(ctx, fields)
}

func (CreateServerEncoder) EncodeFields(ctx context.Context, fields []core.PayloadField) (core.Payload, error) {
	byKey := make(map[string]any, len(fields))
	for _, field := range fields {
		byKey[field.Key] = field.Value
	}
	for _, key := range createRequired {
		value, ok := byKey[key]
		if !ok || strings.TrimSpace(fmt.Sprint(value)) == "" {
			return core.Payload{}, fmt.Errorf("glesys: %s is required to create a server", key)
		}
	}
	platform := fmt.Sprint(byKey["platform"])
	if !slices.Contains(platforms, platform) {
		return core.Payload{}, fmt.Errorf("glesys: unsupported platform %q", platform)
	}
	for _, key := range createNumeric {
		n, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(byKey[key])))
		if err != nil || n < 0 {
			return core.Payload{}, fmt.Errorf("glesys: %s must be a non-negative integer", key)
		}
	}
	return FormEncoder{}.EncodeFields(ctx, fields)
}

func flagValue(flag bool) string {
	if flag {
		return "1"
	}
	return "0"
}

var (
	_ core.FieldEncoder   = FormEncoder{}
	_ core.PayloadEncoder = FormEncoder{}
	_ core.FieldEncoder   = CreateServerEncoder{}
	_ core.PayloadEncoder = CreateServerEncoder{}
)
