package devices

import (
	"context"

	"marketchat/internal/app/commands"
	appdevices "marketchat/internal/app/devices"
)

const (
	registerDeviceKey   = "devices.register"
	unregisterDeviceKey = "devices.unregister"
)

type RegisterDeviceCommand struct {
	UserID string
	Token  string
}

func (RegisterDeviceCommand) Key() string { return registerDeviceKey }

func (c RegisterDeviceCommand) ActorID() string { return c.UserID }

type UnregisterDeviceCommand struct {
	UserID string
	Token  string
}

func (UnregisterDeviceCommand) Key() string { return unregisterDeviceKey }

func (c UnregisterDeviceCommand) ActorID() string { return c.UserID }

func Register(bus *commands.InMemoryBus, svc *appdevices.Service) {
	commands.RegisterHandler[RegisterDeviceCommand, struct{}](bus, registerDeviceKey, commands.HandlerFunc[RegisterDeviceCommand, struct{}](
		func(ctx context.Context, cmd RegisterDeviceCommand) (struct{}, error) {
			return struct{}{}, svc.Register(ctx, cmd.UserID, cmd.Token)
		}))
	commands.RegisterHandler[UnregisterDeviceCommand, struct{}](bus, unregisterDeviceKey, commands.HandlerFunc[UnregisterDeviceCommand, struct{}](
		func(ctx context.Context, cmd UnregisterDeviceCommand) (struct{}, error) {
			return struct{}{}, svc.Unregister(ctx, cmd.UserID, cmd.Token)
		}))
}
