package cloudstack

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-restbind/auth"
	"github.com/goliatone/go-restbind/core"
	"github.com/goliatone/go-restbind/providers"
)

const (
	ProviderID = "cloudstack"
	APIPath    = "/api"

	// MetadataCommand names the CloudStack command an operation maps to.
	MetadataCommand = "command"
	SessionKeyParam = "sessionkey"
)

type Mode string

const (
	// ModeAPIKey signs every request with the account API and secret keys.
	ModeAPIKey Mode = "api_key"
	// ModePassword logs in with username and password and reuses the
	// session key until CloudStack rejects it.
	ModePassword Mode = "password"
)

type Config struct {
	// BaseURL is the management server root, e.g. https://cloud.example.com/client.
	BaseURL   string
	APIKey    string
	SecretKey string
	// SignatureExpires bounds signed requests in time when set.
	SignatureExpires time.Duration

	Username   string
	Password   string
	Domain     string
	HTTPClient auth.HTTPDoer

	Engine core.Config
}

func DefaultConfig() Config {
	engine := core.DefaultConfig()
	engine.ServiceName = ProviderID
	return Config{Engine: engine}
}

// Mode reports which credential scheme cfg selects. API keys win when both
// are configured.
func (c Config) Mode() Mode {
	if strings.TrimSpace(c.APIKey) != "" {
		return ModeAPIKey
	}
	return ModePassword
}

func Definition(cfg Config) (providers.Definition, error) {
	ops := Operations()
	def := providers.Definition{
		ID:         ProviderID,
		Operations: ops,
		Decorators: []core.RequestDecorator{NewCommandDecorator(ops)},
	}
	switch cfg.Mode() {
	case ModeAPIKey:
		if strings.TrimSpace(cfg.SecretKey) == "" {
			return providers.Definition{}, fmt.Errorf("cloudstack: secret key is required with an api key")
		}
		def.Attacher = auth.SignedQueryAttacher{Expires: cfg.SignatureExpires}
		def.Fetcher = core.StaticCredentialFetcher(core.Credential{
			Token:  strings.TrimSpace(cfg.APIKey),
			Secret: strings.TrimSpace(cfg.SecretKey),
		})
		def.Parser = ErrorParser{}
	default:
		if strings.TrimSpace(cfg.Username) == "" {
			return providers.Definition{}, fmt.Errorf("cloudstack: api key or username is required")
		}
		def.Attacher = auth.QueryTokenAttacher{Param: SessionKeyParam}
		def.Fetcher = NewLoginFetcher(cfg)
		def.Parser = ErrorParser{SessionAuth: true}
	}
	return def, nil
}

func New(cfg Config, opts ...core.Option) (*core.Engine, error) {
	if strings.TrimSpace(cfg.Engine.ServiceName) == "" {
		cfg.Engine = DefaultConfig().Engine
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		cfg.Engine.BaseURL = strings.TrimRight(base, "/")
	}
	def, err := Definition(cfg)
	if err != nil {
		return nil, err
	}
	return providers.NewEngine(def, cfg.Engine, opts...)
}

func Operations() []core.Operation {
	query := func(name string) core.ParamBinding {
		return core.ParamBinding{Name: name, Role: core.ParamRoleQuery, Key: strings.ReplaceAll(name, "_", "")}
	}
	required := func(name string) core.ParamBinding {
		binding := query(name)
		binding.Required = true
		return binding
	}
	command := func(id, name string, params ...core.ParamBinding) core.Operation {
		return core.Operation{
			ID:       id,
			Method:   http.MethodGet,
			Path:     APIPath,
			Params:   params,
			Metadata: map[string]any{MetadataCommand: name},
		}
	}
	return []core.Operation{
		command("vms.list", "listVirtualMachines",
			query("id"), query("zone_id"), query("state"), query("keyword"), query("page"), query("page_size")),
		command("vms.deploy", "deployVirtualMachine",
			required("service_offering_id"), required("template_id"), required("zone_id"),
			query("name"), query("display_name"), query("network_ids"), query("keypair")),
		command("vms.start", "startVirtualMachine", required("id")),
		command("vms.stop", "stopVirtualMachine", required("id"), query("forced")),
		command("vms.reboot", "rebootVirtualMachine", required("id")),
		command("vms.destroy", "destroyVirtualMachine", required("id"), query("expunge")),
		command("zones.list", "listZones", query("available"), query("id")),
		command("templates.list", "listTemplates", required("template_filter"), query("zone_id"), query("id")),
		command("service_offerings.list", "listServiceOfferings", query("id"), query("name")),
		command("jobs.get", "queryAsyncJobResult", required("job_id")),
	}
}
