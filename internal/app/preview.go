package app

import (
	"context"
	"time"

	"prayerbell/internal/config"
	"prayerbell/internal/countdown"
	"prayerbell/internal/eventbus"
	"prayerbell/internal/planner"
	"prayerbell/internal/settings"
	logx "prayerbell/pkg/logx"
)

// Preview runs the planning pipeline once, without Telegram or timers.
// It backs the plan and next CLI commands.
type Preview struct {
	store    settings.Store
	settings *settings.Service
	planning *Planning
	now      func() time.Time
}

func NewPreview(cfgPath string, log logx.Logger, opts ...Option) (*Preview, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}
	rc, err := mapConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := settings.Open(rc.Settings, log.With(logx.String("comp", "settings")))
	if err != nil {
		return nil, err
	}
	set, err := settings.NewService(context.Background(), store, rc.Defaults, eventbus.Nop{}, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	p := &Preview{store: store, settings: set, now: time.Now}
	p.planning = newPlanning(rc, o.source, set, log.With(logx.String("comp", "planner")))
	if o.now != nil {
		p.now = o.now
		p.planning.now = o.now
	}
	return p, nil
}

// Plan builds the alert plan as the scheduler would register it now.
func (p *Preview) Plan(ctx context.Context) (planner.Plan, error) {
	return p.planning.Generate(ctx)
}

// Next resolves the upcoming visible event from today's and tomorrow's times.
func (p *Preview) Next(ctx context.Context) countdown.State {
	today, tomorrow := p.planning.Days(ctx)
	return countdown.Resolve(today, tomorrow, p.settings.Toggles(), p.now().In(p.planning.Location()))
}

func (p *Preview) Close() error { return p.store.Close() }
