package shutter

import (
	"context"
)

const (
	ShutterOpenState    = "open"
	ShutterClosedState  = "closed"
	ShutterUnknownState = "unknown"
)

type ShutterUpdateHandler func(state string, position int)

type Shutter interface {
	ID() string
	Name() string
	FullOpenPosition() int
	FullClosePosition() int

	Position() int
	State() string

	OnUpdate(h ShutterUpdateHandler)

	Open(ctx context.Context) error
	Close(ctx context.Context) error
	SetPosition(ctx context.Context, position int) error
	Refresh(ctx context.Context) error
}

// StateFor maps a reported position to a shutter state.
func StateFor(s Shutter, position int) string {
	if position == s.FullClosePosition() {
		return ShutterClosedState
	}
	return ShutterOpenState
}
