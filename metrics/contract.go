package metrics

// 注册组件的指标名
const (
	MetricPersistTotal    = "shenyu_register_persist_total"
	MetricPersistDuration = "shenyu_register_persist_duration_seconds"
	MetricReplayTotal     = "shenyu_register_replay_total"
	MetricHealthy         = "shenyu_register_healthy"

	MetricHTTPServerRequestTotal = "http_server_requests_total"
)

// 常见的标签
const (
	LabelKind        = "kind"
	LabelOperation   = "op"
	LabelOutcome     = "outcome"
	LabelConnection  = "connection"
	LabelMethod      = "method"
	LabelRoute       = "route"
	LabelStatusClass = "status_class"
)

// 常见的结果
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeSkipped  = "skipped"
	OutcomeDeferred = "deferred"
)

// UnknownRoute 未命中路由时使用的标签值
const UnknownRoute = "unknown"

// Outcome 将错误映射为结果标签
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
