// Package transports imports every built-in connection factory so that each
// registers itself with the default registry.
package transports

import (
	_ "github.com/drblury/actuator/transport/aws"
	_ "github.com/drblury/actuator/transport/channel"
	_ "github.com/drblury/actuator/transport/http"
	_ "github.com/drblury/actuator/transport/kafka"
	_ "github.com/drblury/actuator/transport/nats"
	_ "github.com/drblury/actuator/transport/rabbitmq"
)
