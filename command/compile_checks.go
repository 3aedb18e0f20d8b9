package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-restbind/core"
)

var (
	_ gocmd.Commander[InvokeOperationMessage]   = (*InvokeOperationCommand)(nil)
	_ gocmd.Commander[RegisterOperationMessage] = (*RegisterOperationCommand)(nil)
	_ gocmd.Commander[RefreshSessionMessage]    = (*RefreshSessionCommand)(nil)
	_ gocmd.Commander[InvalidateSessionMessage] = (*InvalidateSessionCommand)(nil)
	_ Engine                                    = (*core.Engine)(nil)
)
