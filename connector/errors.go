package connector

import "github.com/ceyewan/shenyu-register/xerrors"

var (
	ErrConfig      = xerrors.Wrap(xerrors.ErrInvalidInput, "connector: invalid config")
	ErrConnection  = xerrors.Wrap(xerrors.ErrUnavailable, "connector: connection failed")
	ErrHealthCheck = xerrors.Wrap(xerrors.ErrUnavailable, "connector: health check failed")
)
