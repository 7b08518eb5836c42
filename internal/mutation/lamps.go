package mutation

import (
	"context"
	"log/slog"

	"github.com/parsakn/smartlight-client/internal/model"
)

// LampWriter is the REST call behind a lamp switch.
type LampWriter interface {
	SetLampStatus(ctx context.Context, id int64, status bool) (model.Lamp, error)
}

// Lamps switches lamps through a Controller.
type Lamps struct {
	*Controller[model.Lamp]
	writer LampWriter
}

func NewLamps(target Target[model.Lamp], writer LampWriter, logger *slog.Logger) *Lamps {
	return &Lamps{Controller: NewController(target, logger), writer: writer}
}

// SetLampStatus shows status immediately and settles with the server's lamp.
func (l *Lamps) SetLampStatus(ctx context.Context, id int64, status bool) (model.Lamp, error) {
	return l.Apply(ctx, id,
		func(lamp model.Lamp) model.Lamp {
			lamp.Status = status
			return lamp
		},
		func(ctx context.Context, desired model.Lamp) (model.Lamp, error) {
			return l.writer.SetLampStatus(ctx, id, desired.Status)
		},
	)
}
