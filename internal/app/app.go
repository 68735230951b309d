package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"prayerbell/internal/alerts"
	"prayerbell/internal/bot"
	"prayerbell/internal/config"
	"prayerbell/internal/countdown"
	"prayerbell/internal/debug"
	"prayerbell/internal/eventbus"
	"prayerbell/internal/notifier"
	"prayerbell/internal/planner"
	"prayerbell/internal/refresh"
	rtsup "prayerbell/internal/runtime/supervisor"
	"prayerbell/internal/settings"
	"prayerbell/internal/source"
	"prayerbell/internal/transport"
	"prayerbell/internal/transport/telegram"
	logx "prayerbell/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.ConfigManager
	sup     *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    settings.Store
	settings *settings.Service
	planning *Planning

	clock    *countdown.Clock
	timers   *alerts.TimerStore
	replacer *alerts.Replacer

	watcherMu sync.Mutex
	watcher   *refresh.Watcher

	adapter    transport.Adapter
	notif      *notifier.Service
	dispatcher *bot.Dispatcher

	debug    *debug.Server
	debugCfg debug.Config

	updates chan transport.Update
}

type Option func(*options)

type options struct {
	adapter transport.Adapter
	source  source.Source
	now     func() time.Time
}

// WithAdapter replaces the Telegram adapter.
func WithAdapter(ad transport.Adapter) Option { return func(o *options) { o.adapter = ad } }

// WithSource replaces the HTTP prayer-time source.
func WithSource(src source.Source) Option { return func(o *options) { o.source = src } }

// WithNow overrides the wall clock used for planning.
func WithNow(now func() time.Time) Option { return func(o *options) { o.now = now } }

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	rc, err := mapConfig(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(rc.Logging)
	appLog := log.With(logx.String("comp", "app"))

	ad := o.adapter
	if ad == nil {
		tg, err := telegram.New(rc.Telegram, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		ad = tg
	}

	bus := eventbus.New()

	store, err := settings.Open(rc.Settings, log.With(logx.String("comp", "settings")))
	if err != nil {
		return nil, err
	}
	set, err := settings.NewService(context.Background(), store, rc.Defaults, bus, log.With(logx.String("comp", "settings")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	appLog.Info("settings ready", logx.String("driver", rc.Settings.Driver))

	planning := newPlanning(rc, o.source, set, log.With(logx.String("comp", "planner")))
	if o.now != nil {
		planning.now = o.now
	}

	a := &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      appLog,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		settings: set,
		planning: planning,
		adapter:  ad,
		updates:  make(chan transport.Update, 256),
	}

	a.notif = notifier.New(rc.Notifier, ad, log.With(logx.String("comp", "notifier")), bus, store)
	a.timers = alerts.NewTimerStore(rc.Ceiling, a.deliver,
		alerts.WithStoreLogger(log.With(logx.String("comp", "alerts"))),
		alerts.WithStoreBus(bus),
	)
	a.replacer = alerts.NewReplacer(a.timers, planning.Generate, rc.Replacer,
		alerts.WithMarker(set),
		alerts.WithReplacerLogger(log.With(logx.String("comp", "replacer"))),
		alerts.WithReplacerBus(bus),
	)
	clockOpts := []countdown.Option{
		countdown.WithLogger(log.With(logx.String("comp", "countdown"))),
		countdown.WithBus(bus),
		countdown.WithLoader(planning),
	}
	if o.now != nil {
		clockOpts = append(clockOpts, countdown.WithNow(o.now))
	}
	a.clock = countdown.NewClock(rc.Countdown, clockOpts...)
	a.watcher = a.newWatcher(rc.Refresh)
	a.debug = debug.New(log.With(logx.String("comp", "debug")), func() any { return a.Status() })
	a.debugCfg = rc.Debug

	a.dispatcher = bot.NewDispatcher(log.With(logx.String("comp", "bot")), ad, rc.Owners, 2)
	a.dispatcher.SetCommands(bot.Commands(bot.Deps{
		Countdown: a.clock,
		Settings:  set,
		Pending:   a.timers,
		Scheduler: a.replacer,
	}))
	return a, nil
}

func (a *App) newWatcher(cfg refresh.Config) *refresh.Watcher {
	return refresh.New(cfg, refresh.Hooks{
		Through:  a.settings.ScheduledThrough,
		Request:  a.replacer.Request,
		Rollover: a.rollover,
	}, refresh.WithLogger(a.log.With(logx.String("comp", "refresh"))))
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Settings() *settings.Service { return a.settings }

func (a *App) Replacer() *alerts.Replacer { return a.replacer }

func (a *App) Alerts() *alerts.TimerStore { return a.timers }

func (a *App) Countdown() *countdown.Clock { return a.clock }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(Validate)

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	if a.notif.Enabled() {
		a.notif.Start(run)
	}

	a.replacer.Bind(run)
	a.clock.SetToggles(a.settings.Toggles())
	a.clock.Start(run)
	a.sup.Go0("countdown.load", a.rollover)

	if err := a.currentWatcher().Start(run); err != nil {
		return err
	}
	a.replacer.Request("startup")

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.dispatcher.Run(c, a.updates)
	})
	a.sup.Go0("bot.menu", func(c context.Context) {
		if err := a.dispatcher.UpdateMenu(c); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
	})
	a.sup.Go0("events", a.eventLoop)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", a.watchdogLoop)
	a.debug.Apply(run, a.debugCfg)

	a.sdNotify(daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

func (a *App) currentWatcher() *refresh.Watcher {
	a.watcherMu.Lock()
	defer a.watcherMu.Unlock()
	return a.watcher
}

func (a *App) restartWatcher(ctx context.Context, cfg refresh.Config) {
	a.watcherMu.Lock()
	defer a.watcherMu.Unlock()
	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	a.watcher.Stop(stopCtx)
	cancel()
	a.watcher = a.newWatcher(cfg)
	if err := a.watcher.Start(ctx); err != nil {
		a.log.Warn("refresh watcher restart failed", logx.Err(err))
		return
	}
	a.log.Info("refresh schedule updated", logx.String("check", cfg.Check), logx.String("rollover", cfg.Rollover))
}

// deliver sends a fired alert to the bound chat.
func (a *App) deliver(al alerts.Alert) {
	chatID, threadID := a.settings.Chat()
	if chatID == 0 {
		a.log.Warn("alert fired but no chat is bound; send /bind", logx.String("id", al.ID))
		return
	}
	ctx := context.Background()
	if a.sup != nil {
		ctx = a.sup.Context()
	}
	prio := 5
	if al.Payload.Kind == planner.KindMeta {
		prio = 1
	}
	err := a.notif.Notify(ctx, transport.Notification{
		Channel:  "telegram",
		Priority: prio,
		Target:   transport.ChatTarget{ChatID: chatID, ThreadID: threadID},
		Text:     bot.FormatAlert(al),
		Options:  &transport.SendOptions{ParseMode: "HTML", DisablePreview: true},
	})
	if err != nil {
		a.log.Warn("alert delivery failed", logx.String("id", al.ID), logx.Err(err))
	}
}

// rollover reloads today's and tomorrow's sets into the countdown.
func (a *App) rollover(ctx context.Context) {
	today, tomorrow := a.planning.Days(ctx)
	a.clock.SetDays(today, tomorrow)
	a.log.Debug("countdown days loaded", logx.Bool("today", !today.Empty()), logx.Bool("tomorrow", !tomorrow.Empty()))
}

// eventLoop reacts to settings changes and logs delivery failures.
func (a *App) eventLoop(ctx context.Context) {
	events, unsub := a.bus.Subscribe(64,
		eventbus.TopicSettingsChanged,
		eventbus.TopicRegenerate,
		eventbus.TopicNotifierFailed,
		eventbus.TopicScheduleReplaced,
	)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.handleEvent(e)
		}
	}
}

func (a *App) handleEvent(e eventbus.Event) {
	switch e.Type {
	case eventbus.TopicSettingsChanged:
		ch, _ := e.Data.(settings.Change)
		switch ch.Kind {
		case settings.ChangeToggles:
			a.clock.SetToggles(a.settings.Toggles())
			a.replacer.Request("toggles")
		case settings.ChangePreference:
			a.replacer.Request("preferences")
		}
	case eventbus.TopicRegenerate:
		reason, _ := e.Data.(string)
		if reason == "" {
			reason = "event"
		}
		a.replacer.Request(reason)
	case eventbus.TopicNotifierFailed:
		a.log.Warn("notification permanently failed", logx.Any("event", e.Data))
	case eventbus.TopicScheduleReplaced:
		if res, ok := e.Data.(alerts.Result); ok && res.Failed > 0 {
			a.log.Warn("some alerts could not be registered",
				logx.Int("failed", res.Failed), logx.Int("registered", res.Registered))
		}
	}
}

// reloadLoop applies committed config reloads, coalescing bursts.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	rc, err := mapConfig(newCfg)
	if err != nil {
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}
	a.sdNotify(daemon.SdNotifyReloading)
	defer a.sdNotify(daemon.SdNotifyReady)

	a.logs.Apply(rc.Logging)
	a.dispatcher.SetOwners(rc.Owners)

	prevNotif := a.notif.Enabled()
	a.notif.Apply(rc.Notifier)
	switch {
	case prevNotif && !rc.Notifier.Enabled:
		a.log.Info("notifier disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.notif.Stop(stopCtx)
		cancel()
	case !prevNotif && rc.Notifier.Enabled:
		a.log.Info("notifier enabled via config")
		a.notif.Start(ctx)
	}

	if a.planning.Apply(rc) {
		a.log.Info("location changed; reloading prayer times", logx.String("location", rc.Location.String()))
		a.rollover(ctx)
	}
	if config.NeedsRegeneration(sections) {
		a.replacer.Request("config")
	}

	if slices.Contains(sections, config.SectionRefresh) {
		a.restartWatcher(ctx, rc.Refresh)
	}
	if slices.Contains(sections, config.SectionDebug) {
		a.debug.Apply(ctx, rc.Debug)
	}
	if rr := config.RestartRequired(sections); len(rr) > 0 {
		a.log.Warn("restart required for some config changes", logx.Strings("sections", rr))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sdNotify(daemon.SdNotifyStopping)
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	step("refresh", 2*time.Second, func(c context.Context) error { a.currentWatcher().Stop(c); return nil })
	step("replacer", time.Second, func(context.Context) error { a.replacer.Cancel(); return nil })
	step("countdown", time.Second, func(context.Context) error { a.clock.Stop(); return nil })
	step("alerts", time.Second, func(context.Context) error { a.timers.Stop(); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("settings", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
