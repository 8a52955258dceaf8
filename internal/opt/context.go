package opt

import "context"

type ctxKeyFormulation struct{}

// NewContext attaches f so that solvers able to exploit the routing structure
// can recover it from the model they are handed.
func NewContext(ctx context.Context, f *Formulation) context.Context {
	return context.WithValue(ctx, ctxKeyFormulation{}, f)
}

func FromContext(ctx context.Context) (*Formulation, bool) {
	f, ok := ctx.Value(ctxKeyFormulation{}).(*Formulation)
	return f, ok
}
