package trace

// 注册组件的 Span 属性键
const (
	AttrRegisterKind      = "shenyu.register.kind"
	AttrRegisterOperation = "shenyu.register.operation"
	AttrRegisterPath      = "shenyu.register.path"
	AttrRegisterRPCType   = "shenyu.register.rpc_type"
	AttrRegisterReplay    = "shenyu.register.replay"
)

// 注册组件的操作
const (
	OperationInit      = "init"
	OperationInterface = "persist_interface"
	OperationURI       = "persist_uri"
	OperationReplay    = "replay"
	OperationClose     = "close"
)

// SpanName 返回注册操作的标准 Span Name，例如 "shenyu.register persist_uri"
func SpanName(operation string) string {
	if operation == "" {
		return "shenyu.register"
	}
	return "shenyu.register " + operation
}
