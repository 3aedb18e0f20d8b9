package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ PayloadEncoder     = PayloadEncoderFunc(nil)
	_ CredentialFetcher  = CredentialFetcherFunc(nil)
	_ CredentialAttacher = CredentialAttacherFunc(nil)
	_ ErrorMessageParser = ErrorMessageParserFunc(nil)
	_ RequestDecorator   = (*CacheBuster)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
