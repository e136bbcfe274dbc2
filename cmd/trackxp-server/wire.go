//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
)

// BuildApp wires the server components using Google Wire.
func BuildApp() (*App, func(), error) {
	wire.Build(
		provideConfig,
		provideLogger,
		provideService,
		provideHandler,
		provideServer,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}
