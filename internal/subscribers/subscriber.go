package subscribers

import (
	"context"

	"github.com/UJ2202/TOMAS/internal/protocol"
)

type Subscriber interface {
	Name() string
	Handle(context.Context, protocol.StreamEvent) error
}
