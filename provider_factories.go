package restbind

import (
	"github.com/goliatone/go-restbind/core"
	"github.com/goliatone/go-restbind/providers"
	"github.com/goliatone/go-restbind/providers/cloudservers"
	"github.com/goliatone/go-restbind/providers/cloudstack"
	"github.com/goliatone/go-restbind/providers/glesys"
)

func CloudServersEngine(cfg cloudservers.Config, opts ...Option) (*core.Engine, error) {
	return cloudservers.New(cfg, opts...)
}

func GleSYSEngine(cfg glesys.Config, opts ...Option) (*core.Engine, error) {
	return glesys.New(cfg, opts...)
}

func CloudStackEngine(cfg cloudstack.Config, opts ...Option) (*core.Engine, error) {
	return cloudstack.New(cfg, opts...)
}

// ProviderOperations lists the built-in operation declarations by provider
// id, stamped with that id.
func ProviderOperations() map[string][]core.Operation {
	return map[string][]core.Operation{
		cloudservers.ProviderID: providers.StampProvider(cloudservers.ProviderID, cloudservers.Operations()),
		glesys.ProviderID:       providers.StampProvider(glesys.ProviderID, glesys.Operations()),
		cloudstack.ProviderID:   providers.StampProvider(cloudstack.ProviderID, cloudstack.Operations()),
	}
}
