package domain

import "context"

// Delivery is one message taken from a channel, pending Ack or Nack.
type Delivery struct {
	Channel     string
	Body        []byte
	Tag         uint64
	Redelivered bool
}

// Connection is an at-least-once queue connection with independently named
// durable channels.
type Connection interface {
	Declare(ctx context.Context, channel string) error
	Publish(ctx context.Context, channel string, payload []byte) error
	// TryReceive returns nil without error when the channel is empty.
	TryReceive(ctx context.Context, channel string) (*Delivery, error)
	Ack(d *Delivery) error
	Nack(d *Delivery, requeue bool) error
	Close() error
}

// Dialer opens a Connection.
type Dialer func(ctx context.Context) (Connection, error)

// UnitCodec converts units to and from wire payloads.
type UnitCodec interface {
	Encode(u Unit) ([]byte, error)
	Decode(data []byte) (Unit, error)
}

// SourceCatalog answers metadata queries about sources and reads record ranges.
type SourceCatalog interface {
	RecordCount(ctx context.Context, source string) (int64, error)
	ReadRange(ctx context.Context, source string, r Range) ([][]byte, error)
}

// ConfigReader интерфейс для чтения конфигурации
type ConfigReader interface {
	ReadConfig(path string) (*Config, error)
}

// Reporter consumes the aggregated per-group collections.
type Reporter interface {
	Report(collections map[string]*Collection, order []string) error
}
