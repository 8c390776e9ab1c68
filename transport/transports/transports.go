// Package transports imports all built-in transports for auto-registration.
// Import this package to have all transports registered with the default registry.
package transports

import (
	// Import all transports for side-effect registration
	_ "github.com/drblury/protowire/transport/aws"
	_ "github.com/drblury/protowire/transport/channel"
	_ "github.com/drblury/protowire/transport/http"
	_ "github.com/drblury/protowire/transport/jetstream"
	_ "github.com/drblury/protowire/transport/kafka"
	"github.com/drblury/protowire/transport/nats"
	_ "github.com/drblury/protowire/transport/postgres"
	"github.com/drblury/protowire/transport/rabbitmq"
	_ "github.com/drblury/protowire/transport/sqlite"
)

// nats and rabbitmq register explicitly so importing them alone has no side effects.
func init() {
	nats.Register()
	rabbitmq.Register()
}
