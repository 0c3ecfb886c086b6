package connector

import (
	"context"
	"sync/atomic"

	"github.com/ceyewan/shenyu-register/clog"
	"github.com/ceyewan/shenyu-register/metrics"
)

const metricConnectTotal = "connector_connect_total"

// probe 记录连接器的探测结果，etcd、redis、consul 共用
type probe struct {
	kind    string
	name    string
	logger  clog.Logger
	attempt metrics.Counter
	healthy atomic.Bool
}

func newProbe(kind, name string, o *options) (*probe, error) {
	attempt, err := o.meter.Counter(metricConnectTotal, "Connector connect attempts")
	if err != nil {
		return nil, err
	}
	return &probe{
		kind:    kind,
		name:    name,
		logger:  o.logger.With(clog.String("connector", kind), clog.String("name", name)),
		attempt: attempt,
	}, nil
}

// observe 更新健康状态并计数，返回原始错误
func (p *probe) observe(ctx context.Context, err error) error {
	p.healthy.Store(err == nil)
	p.attempt.Inc(ctx,
		metrics.L("connector", p.kind),
		metrics.L(metrics.LabelOutcome, metrics.Outcome(err)),
	)
	return err
}
