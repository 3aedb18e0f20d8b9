package glesys

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-restbind/auth"
	"github.com/goliatone/go-restbind/core"
	"github.com/goliatone/go-restbind/providers"
)

const (
	ProviderID = "glesys"
	BaseURL    = "https://api.glesys.com"

	// EncoderName selects the GleSYS form encoder.
	EncoderName = "glesys-form"
	// CreateEncoderName selects the encoder that validates server.create.
	CreateEncoderName = "glesys-create"
)

type Config struct {
	// Username is the GleSYS project or account id (e.g. "cl12345").
	Username string
	APIKey   string
	Engine   core.Config
}

func DefaultConfig() Config {
	engine := core.DefaultConfig()
	engine.ServiceName = ProviderID
	engine.BaseURL = BaseURL
	return Config{Engine: engine}
}

// Definition describes the GleSYS server API. Every call is a form POST
// authenticated with HTTP basic credentials; there is no login step.
func Definition(cfg Config) providers.Definition {
	return providers.Definition{
		ID:         ProviderID,
		Operations: Operations(),
		Parser:     ErrorParser{},
		Attacher:   auth.BasicAuthAttacher{},
		Fetcher: core.StaticCredentialFetcher(core.Credential{
			Token:  strings.TrimSpace(cfg.Username),
			Secret: strings.TrimSpace(cfg.APIKey),
		}),
		Encoders: map[string]core.PayloadEncoder{
			EncoderName:       FormEncoder{},
			CreateEncoderName: CreateServerEncoder{},
		},
	}
}

func New(cfg Config, opts ...core.Option) (*core.Engine, error) {
	if strings.TrimSpace(cfg.Engine.ServiceName) == "" {
		cfg.Engine = DefaultConfig().Engine
	}
	return providers.NewEngine(Definition(cfg), cfg.Engine, opts...)
}

func Operations() []core.Operation {
	serverID := core.ParamBinding{Name: "server_id", Role: core.ParamRolePayload, Key: "serverid", Required: true}
	form := func(id, path string, params ...core.ParamBinding) core.Operation {
		op := core.Operation{
			ID:     id,
			Method: http.MethodPost,
			Path:   path + "/format/json",
			Params: params,
		}
		if len(params) > 0 {
			op.Encoder = EncoderName
		}
		return op
	}
	create := form("server.create", "/server/create",
		core.ParamBinding{Name: "datacenter", Role: core.ParamRolePayload, Required: true},
		core.ParamBinding{Name: "platform", Role: core.ParamRolePayload, Required: true},
		core.ParamBinding{Name: "hostname", Role: core.ParamRolePayload, Required: true},
		core.ParamBinding{Name: "template", Role: core.ParamRolePayload, Key: "templatename", Required: true},
		core.ParamBinding{Name: "disk_size", Role: core.ParamRolePayload, Key: "disksize", Required: true},
		core.ParamBinding{Name: "memory_size", Role: core.ParamRolePayload, Key: "memorysize", Required: true},
		core.ParamBinding{Name: "cpu_cores", Role: core.ParamRolePayload, Key: "cpucores", Required: true},
		core.ParamBinding{Name: "root_password", Role: core.ParamRolePayload, Key: "rootpassword"},
		core.ParamBinding{Name: "transfer", Role: core.ParamRolePayload, Required: true},
		core.ParamBinding{Name: "ip", Role: core.ParamRolePayload},
		core.ParamBinding{Name: "description", Role: core.ParamRolePayload},
	)
	create.Encoder = CreateEncoderName

	return []core.Operation{
		form("server.list", "/server/list"),
		form("server.details", "/server/details", serverID,
			core.ParamBinding{Name: "include_state", Role: core.ParamRolePayload, Key: "includestate"}),
		form("server.status", "/server/status", serverID),
		create,
		form("server.destroy", "/server/destroy", serverID,
			core.ParamBinding{Name: "keep_ip", Role: core.ParamRolePayload, Key: "keepip", Required: true}),
		form("server.start", "/server/start", serverID),
		form("server.stop", "/server/stop", serverID,
			core.ParamBinding{Name: "type", Role: core.ParamRolePayload}),
		form("server.reboot", "/server/reboot", serverID),
		form("server.templates", "/server/templates"),
		form("server.allowed_arguments", "/server/allowedarguments"),
	}
}
