package trace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ceyewan/shenyu-register"

// Start 以全局 TracerProvider 为注册操作开启一个 client Span
//
//	ctx, span := trace.Start(ctx, trace.OperationURI, "zookeeper", attribute.String(trace.AttrRegisterPath, path))
//	defer trace.End(span, err)
func Start(ctx context.Context, operation, kind string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+2)
	all = append(all,
		attribute.String(AttrRegisterOperation, operation),
		attribute.String(AttrRegisterKind, kind),
	)
	all = append(all, attrs...)

	return otel.Tracer(tracerName).Start(ctx, SpanName(operation),
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(all...),
	)
}

// End 结束 Span，err 非空时记录错误并标记状态
func End(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
