package metrics

// Label 指标标签
//
// 标签值应保持低基数：使用注册类型、操作名、结果，不要使用节点路径或实例 ID。
type Label struct {
	Key   string
	Value string
}

// L 创建一个 Label
//
//	counter.Inc(ctx, metrics.L(metrics.LabelKind, "etcd"))
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}
