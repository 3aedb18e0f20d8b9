package cloudservers

import (
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-restbind/auth"
	"github.com/goliatone/go-restbind/core"
	"github.com/goliatone/go-restbind/providers"
)

const (
	ProviderID         = "cloudservers"
	AuthURL            = "https://auth.api.rackspacecloud.com/v1.1/auth"
	ServiceCatalogName = "cloudServers"
	CacheBusterParam   = "now"
)

type Config struct {
	Username string
	APIKey   string
	AuthURL  string
	// ServiceName selects the service catalog entry used as the endpoint.
	ServiceName string
	// BaseURL skips endpoint discovery when set.
	BaseURL    string
	HTTPClient auth.HTTPDoer
	Engine     core.Config
}

func DefaultConfig() Config {
	engine := core.DefaultConfig()
	engine.ServiceName = ProviderID
	engine.CacheBuster.Enabled = true
	engine.CacheBuster.Param = CacheBusterParam
	return Config{
		AuthURL:     AuthURL,
		ServiceName: ServiceCatalogName,
		Engine:      engine,
	}
}

// Definition describes the CloudServers v1.0 API: X-Auth-Token sessions
// obtained from the v1.1 auth service, endpoint discovery from the service
// catalog, and a cache-busting timestamp on GET requests.
func Definition(cfg Config) providers.Definition {
	cfg = withDefaults(cfg)
	return providers.Definition{
		ID:         ProviderID,
		Operations: Operations(),
		Parser:     ErrorParser{},
		Attacher:   auth.NewAuthTokenAttacher(),
		Fetcher:    NewAuthFetcher(cfg),
	}
}

func New(cfg Config, opts ...core.Option) (*core.Engine, error) {
	cfg = withDefaults(cfg)
	engineCfg := cfg.Engine
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		engineCfg.BaseURL = base
	}
	return providers.NewEngine(Definition(cfg), engineCfg, opts...)
}

func withDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.AuthURL) == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = defaults.ServiceName
	}
	if strings.TrimSpace(cfg.Engine.ServiceName) == "" {
		cfg.Engine = defaults.Engine
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return cfg
}

func Operations() []core.Operation {
	id := core.ParamBinding{Name: "id", Role: core.ParamRolePath}
	paging := []core.ParamBinding{
		{Name: "changes_since", Role: core.ParamRoleQuery, Key: "changes-since"},
		{Name: "limit", Role: core.ParamRoleQuery},
		{Name: "offset", Role: core.ParamRoleQuery},
	}
	return []core.Operation{
		{ID: "servers.list", Method: http.MethodGet, Path: "/servers", Params: paging, Description: "List server ids and names."},
		{ID: "servers.list_details", Method: http.MethodGet, Path: "/servers/detail", Params: paging, Description: "List servers with details."},
		{ID: "servers.get", Method: http.MethodGet, Path: "/servers/{id}", Params: []core.ParamBinding{id}},
		{
			ID:     "servers.create",
			Method: http.MethodPost,
			Path:   "/servers",
			Params: []core.ParamBinding{{Name: "server", Role: core.ParamRolePayload, Required: true}},
		},
		{
			ID:     "servers.rename",
			Method: http.MethodPut,
			Path:   "/servers/{id}",
			Params: []core.ParamBinding{id, {Name: "server", Role: core.ParamRolePayload, Required: true}},
		},
		{ID: "servers.delete", Method: http.MethodDelete, Path: "/servers/{id}", Params: []core.ParamBinding{id}},
		{
			ID:     "servers.reboot",
			Method: http.MethodPost,
			Path:   "/servers/{id}/action",
			Params: []core.ParamBinding{id, {Name: "reboot", Role: core.ParamRolePayload, Required: true}},
		},
		{ID: "flavors.list_details", Method: http.MethodGet, Path: "/flavors/detail", Params: paging},
		{ID: "flavors.get", Method: http.MethodGet, Path: "/flavors/{id}", Params: []core.ParamBinding{id}},
		{ID: "images.list_details", Method: http.MethodGet, Path: "/images/detail", Params: paging},
		{ID: "images.get", Method: http.MethodGet, Path: "/images/{id}", Params: []core.ParamBinding{id}},
		{ID: "limits.get", Method: http.MethodGet, Path: "/limits"},
	}
}
