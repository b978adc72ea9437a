package brunt

import (
	"context"
)

// PoolProxy bounds how many vendor commands run at once. The pool channel is
// shared by every proxy of an account.
type PoolProxy struct {
	c    Commander
	pool chan struct{}
}

func NewPoolProxy(c Commander, pool chan struct{}) *PoolProxy {
	return &PoolProxy{c: c, pool: pool}
}

func (p *PoolProxy) acquire(ctx context.Context) bool {
	select {
	case p.pool <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *PoolProxy) release() {
	<-p.pool
}

func (p *PoolProxy) SetPosition(ctx context.Context, deviceURI string, position int) bool {
	if !p.acquire(ctx) {
		return false
	}
	defer p.release()

	return p.c.SetPosition(ctx, deviceURI, position)
}

func (p *PoolProxy) CheckAccess(ctx context.Context, deviceURI string) (bool, error) {
	if !p.acquire(ctx) {
		return false, ctx.Err()
	}
	defer p.release()

	return p.c.CheckAccess(ctx, deviceURI)
}
