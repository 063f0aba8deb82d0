package synode

import "errors"

var (
	ErrUnknownAgent       = errors.New("unknown agent")
	ErrUnknownInterceptor = errors.New("unknown interceptor")
	ErrNotSequence        = errors.New("operation requires a sequence")
	ErrTargetCount        = errors.New("target must resolve to exactly one agent")
	ErrNoDispatcher       = errors.New("no remote dispatcher configured")
	ErrNoGraphLoader      = errors.New("no graph loader configured")
	ErrUnknownGraph       = errors.New("unknown graph")
)
