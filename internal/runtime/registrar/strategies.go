package registrar

import (
	"context"
	"fmt"

	"github.com/drblury/protowire/internal/runtime/dispatch"
	errspkg "github.com/drblury/protowire/internal/runtime/errors"
	"github.com/drblury/protowire/internal/runtime/manifest"
)

// strategy binds a resolved handler to the dispatcher of one kind after
// checking that it implements the capability the kind requires.
type strategy struct {
	capability string
	bind       func(ctx context.Context, d Dispatchers, entry manifest.ComponentEntry, handler any) error
}

var strategies = map[manifest.HandlerKind]strategy{
	manifest.Consumer: bindAs("dispatch.Consumer", func(d Dispatchers) registerFunc[dispatch.Consumer] {
		return d.Consumer.Register
	}),
	manifest.Function: bindAs("dispatch.Function", func(d Dispatchers) registerFunc[dispatch.Function] {
		return d.Function.Register
	}),
	manifest.FunctionFanout: bindAs("dispatch.FunctionFanout", func(d Dispatchers) registerFunc[dispatch.FunctionFanout] {
		return d.FunctionFanout.Register
	}),
	manifest.Supplier: bindAs("dispatch.Supplier", func(d Dispatchers) registerFunc[dispatch.Supplier] {
		return d.Supplier.Register
	}),
	manifest.SupplierFanout: bindAs("dispatch.SupplierFanout", func(d Dispatchers) registerFunc[dispatch.SupplierFanout] {
		return d.SupplierFanout.Register
	}),
}

type registerFunc[H any] func(ctx context.Context, entry manifest.ComponentEntry, h H) error

func bindAs[H any](capability string, target func(Dispatchers) registerFunc[H]) strategy {
	return strategy{
		capability: capability,
		bind: func(ctx context.Context, d Dispatchers, entry manifest.ComponentEntry, handler any) error {
			h, ok := handler.(H)
			if !ok {
				return fmt.Errorf("%w: %T does not implement %s", errspkg.ErrHandlerCapability, handler, capability)
			}
			return target(d)(ctx, entry, h)
		},
	}
}

// Capability returns the interface a handler of kind k must implement.
func Capability(k manifest.HandlerKind) (string, bool) {
	s, ok := strategies[k]
	return s.capability, ok
}
