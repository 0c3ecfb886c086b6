package registry

import (
	"github.com/ceyewan/shenyu-register/registry/types"
	"github.com/ceyewan/shenyu-register/xerrors"
)

// 错误码
const (
	CodeConfig        = "CONFIG"
	CodeValidation    = "VALIDATION"
	CodeSerialization = "SERIALIZATION"
)

var (
	// ErrConfig 必填配置缺失或格式错误，Init 时返回，不可重试
	ErrConfig = xerrors.WithCode(xerrors.Wrap(xerrors.ErrInvalidInput, "registry: invalid config"), CodeConfig)

	// ErrValidation 实例标识无法通过名称规范化
	ErrValidation = xerrors.WithCode(xerrors.Wrap(xerrors.ErrInvalidInput, "registry: validation failed"), CodeValidation)

	// ErrSerialization 记录序列化失败
	ErrSerialization = xerrors.WithCode(xerrors.New("registry: serialization failed"), CodeSerialization)

	// ErrInvalidRecord 记录为 nil
	ErrInvalidRecord = xerrors.Wrap(xerrors.ErrInvalidInput, "registry: invalid record")

	// ErrNotInitialized 尚未调用 Init
	ErrNotInitialized = xerrors.New("registry: not initialized")

	// ErrAlreadyInitialized 重复调用 Init
	ErrAlreadyInitialized = xerrors.New("registry: already initialized")

	// ErrRegistrarClosed 已关闭
	ErrRegistrarClosed = xerrors.New("registry: registrar closed")

	// ErrUnknownKind 不支持的注册中心类型
	ErrUnknownKind = xerrors.Wrap(xerrors.ErrInvalidInput, "registry: unknown kind")
)

// 后端传输错误，由适配器返回
var (
	ErrConnectionLost = types.ErrConnectionLost
	ErrAuthFailed     = types.ErrAuthFailed
)
