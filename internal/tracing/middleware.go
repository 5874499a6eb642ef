package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/linkctl/internal/gateway"
)

// NewGatewayMiddleware creates a client span around every gateway request.
// A nil tracer yields a pass-through middleware.
func NewGatewayMiddleware(tracer trace.Tracer) gateway.Middleware {
	if tracer == nil {
		return func(next gateway.Gateway) gateway.Gateway { return next }
	}

	return func(next gateway.Gateway) gateway.Gateway {
		return gateway.Funcs{
			DeployFunc: func(ctx context.Context, req gateway.DeployRequest) (gateway.Deployment, error) {
				ctx, span := tracer.Start(ctx, SpanGatewayDeploy,
					trace.WithSpanKind(trace.SpanKindClient),
					trace.WithAttributes(
						attribute.String(AttrNetworkID, req.Network.String()),
						attribute.String(AttrEntityType, req.EntityType),
					),
				)
				defer span.End()
				setRunID(ctx, span)

				dep, err := next.Deploy(ctx, req)
				finish(span, err, dep.TxHash)
				if err == nil {
					span.SetAttributes(attribute.String(AttrContract, dep.Address))
				}
				return dep, err
			},
			CallFunc: func(ctx context.Context, req gateway.CallRequest) (gateway.Receipt, error) {
				ctx, span := tracer.Start(ctx, SpanGatewayCall,
					trace.WithSpanKind(trace.SpanKindClient),
					trace.WithAttributes(
						attribute.String(AttrNetworkID, req.Network.String()),
						attribute.String(AttrContract, req.Address),
						attribute.String(AttrMethod, req.Method),
					),
				)
				defer span.End()
				setRunID(ctx, span)

				rcpt, err := next.Call(ctx, req)
				finish(span, err, rcpt.TxHash)
				return rcpt, err
			},
		}
	}
}

func setRunID(ctx context.Context, span trace.Span) {
	if id := RunIDFromContext(ctx); id != "" {
		span.SetAttributes(attribute.String(AttrRunID, id))
	}
}

// finish records the outcome. A lost confirmation still names its tx.
func finish(span trace.Span, err error, txHash string) {
	if err != nil {
		if hash, ok := gateway.PendingTxHash(err); ok {
			txHash = hash
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if txHash != "" {
		span.SetAttributes(attribute.String(AttrTxHash, txHash))
	}
}

// RecordOutcome sets span status from err. Used by the executor for run and
// step spans.
func RecordOutcome(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
