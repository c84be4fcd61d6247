package health

import "context"

// Pinger is implemented by db stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober is implemented by remote providers (embedding, qdrant).
type Prober interface {
	HealthCheck(ctx context.Context) error
}
