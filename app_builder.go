package voxsync

type AppBuilder struct {
	app     *App
	modules []Module
}

func NewAppBuilder() *AppBuilder {
	return &AppBuilder{app: newApp()}
}

// TickRate sets the rate App.Run ticks at, in Hz.
func (b *AppBuilder) TickRate(hz float64) *AppBuilder {
	if hz > 0 {
		b.app.tickRate = hz
	}
	return b
}

func (b *AppBuilder) UseModule(modules ...Module) *AppBuilder {
	b.modules = append(b.modules, modules...)
	return b
}

// Build installs modules in the order they were added. Later modules may depend on
// resources of earlier ones.
func (b *AppBuilder) Build() *App {
	app := b.app
	commands := &Commands{app: app}
	for _, module := range b.modules {
		module.Install(app, commands)
	}
	return app
}
