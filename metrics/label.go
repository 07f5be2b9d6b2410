package metrics

// Label 指标标签
//
// 标签值应当相对稳定，避免把客户端 IP、请求 ID 之类的高基数值作为标签：
//
//	counter.Inc(ctx, metrics.L("class", "AUTH"), metrics.L("decision", "reject"))
type Label struct {
	Key   string
	Value string
}

// L 便捷构造函数，创建一个 Label 实例
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}
