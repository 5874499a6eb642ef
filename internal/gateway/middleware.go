package gateway

import (
	"context"
	"time"

	"github.com/zjrosen/linkctl/internal/log"
)

// Middleware wraps a Gateway to add behavior around every request.
type Middleware func(Gateway) Gateway

// Chain applies middlewares to gw in reverse order, so the first middleware in
// the list is the outermost wrapper: Chain(gw, a, b) is a(b(gw)).
func Chain(gw Gateway, middlewares ...Middleware) Gateway {
	for i := len(middlewares) - 1; i >= 0; i-- {
		gw = middlewares[i](gw)
	}
	return gw
}

// Funcs adapts a pair of functions to the Gateway interface.
type Funcs struct {
	DeployFunc func(ctx context.Context, req DeployRequest) (Deployment, error)
	CallFunc   func(ctx context.Context, req CallRequest) (Receipt, error)
}

// Deploy calls DeployFunc.
func (f Funcs) Deploy(ctx context.Context, req DeployRequest) (Deployment, error) {
	return f.DeployFunc(ctx, req)
}

// Call calls CallFunc.
func (f Funcs) Call(ctx context.Context, req CallRequest) (Receipt, error) {
	return f.CallFunc(ctx, req)
}

// ===========================================================================
// Logging Middleware
// ===========================================================================

// NewLoggingMiddleware logs every request with its outcome and duration.
func NewLoggingMiddleware() Middleware {
	return func(next Gateway) Gateway {
		return Funcs{
			DeployFunc: func(ctx context.Context, req DeployRequest) (Deployment, error) {
				start := time.Now()
				dep, err := next.Deploy(ctx, req)
				if err != nil {
					log.Error(log.CatGateway, "deploy failed",
						"network", req.Network,
						"entity_type", req.EntityType,
						"duration", time.Since(start),
						"error", err.Error(),
					)
					return dep, err
				}
				log.Info(log.CatGateway, "deployed",
					"network", req.Network,
					"entity_type", req.EntityType,
					"address", dep.Address,
					"tx", dep.TxHash,
					"duration", time.Since(start),
				)
				return dep, nil
			},
			CallFunc: func(ctx context.Context, req CallRequest) (Receipt, error) {
				start := time.Now()
				rcpt, err := next.Call(ctx, req)
				if err != nil {
					log.Error(log.CatGateway, "call failed",
						"network", req.Network,
						"address", req.Address,
						"method", req.Method,
						"duration", time.Since(start),
						"error", err.Error(),
					)
					return rcpt, err
				}
				log.Info(log.CatGateway, "call confirmed",
					"network", req.Network,
					"address", req.Address,
					"method", req.Method,
					"tx", rcpt.TxHash,
					"duration", time.Since(start),
				)
				return rcpt, nil
			},
		}
	}
}

// ===========================================================================
// Timeout Middleware
// ===========================================================================

// NewTimeoutMiddleware bounds each request by d. Zero disables the bound.
func NewTimeoutMiddleware(d time.Duration) Middleware {
	return func(next Gateway) Gateway {
		if d <= 0 {
			return next
		}
		return Funcs{
			DeployFunc: func(ctx context.Context, req DeployRequest) (Deployment, error) {
				ctx, cancel := context.WithTimeout(ctx, d)
				defer cancel()
				return next.Deploy(ctx, req)
			},
			CallFunc: func(ctx context.Context, req CallRequest) (Receipt, error) {
				ctx, cancel := context.WithTimeout(ctx, d)
				defer cancel()
				return next.Call(ctx, req)
			},
		}
	}
}
