package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"prayerbell/internal/alerts"
	"prayerbell/internal/countdown"
	"prayerbell/internal/prayer"
)

// Countdown exposes the live next-event state.
type Countdown interface {
	ResolveNow() countdown.State
}

// Settings is the subset of settings.Service used by commands.
type Settings interface {
	Preferences() prayer.Preferences
	Toggles() prayer.Toggles
	Chat() (int64, int)
	ScheduledThrough() time.Time
	SetVisibility(ctx context.Context, c prayer.Category, on bool) (bool, error)
	UpdatePreference(ctx context.Context, c prayer.Category, fn func(p *prayer.NotificationPreference)) (prayer.NotificationPreference, error)
	BindChat(ctx context.Context, chatID int64, threadID int) error
}

// Pending lists the currently registered alerts.
type Pending interface {
	Pending() []alerts.Alert
}

// Scheduler is the replacement pass controller.
type Scheduler interface {
	Phase() alerts.Phase
	Last() alerts.Result
	Request(reason string)
}

type Deps struct {
	Countdown Countdown
	Settings  Settings
	Pending   Pending
	Scheduler Scheduler
	Now       func() time.Time
	// PlanLimit caps the rows /plan prints (default 10).
	PlanLimit int
}

// Commands returns the prayer command set.
func Commands(d Deps) []Command {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.PlanLimit <= 0 {
		d.PlanLimit = 10
	}
	h := &handlers{d: d}
	return []Command{
		{Name: "next", Aliases: []string{"n"}, Description: "next prayer and countdown", Usage: "/next", Handle: h.next},
		{Name: "show", Description: "show or hide Asr/Isha", Usage: "/show asr|isha on|off", Access: AccessOwnerOnly, Handle: h.show},
		{Name: "start", Description: "alert at prayer start", Usage: "/start <prayer> on|off [minutes]", Access: AccessOwnerOnly, Handle: h.start},
		{Name: "expire", Description: "alert before prayer time ends", Usage: "/expire <prayer> on|off [minutes]", Access: AccessOwnerOnly, Handle: h.expire},
		{Name: "prefs", Description: "current alert preferences", Usage: "/prefs", Handle: h.prefs},
		{Name: "plan", Description: "upcoming scheduled alerts", Usage: "/plan", Handle: h.plan},
		{Name: "bind", Description: "deliver alerts to this chat", Usage: "/bind", Access: AccessOwnerOnly, Handle: h.bind},
		{Name: "status", Description: "scheduling status", Usage: "/status", Handle: h.status},
		{Name: "refresh", Description: "reschedule alerts now", Usage: "/refresh", Access: AccessOwnerOnly, Handle: h.refresh},
	}
}

type handlers struct {
	d Deps
}

func (h *handlers) next(ctx context.Context, req *Request) error {
	return req.Reply(ctx, FormatState(h.d.Countdown.ResolveNow()))
}

func (h *handlers) show(ctx context.Context, req *Request) error {
	const usage = "/show asr|isha on|off"
	if len(req.Args) != 2 {
		return usageError(usage)
	}
	c, err := prayer.ParseCategory(req.Args[0])
	if err != nil || !prayer.Optional(c) {
		return usageError(usage)
	}
	on, err := parseSwitch(req.Args[1])
	if err != nil {
		return usageError(usage)
	}
	changed, err := h.d.Settings.SetVisibility(ctx, c, on)
	if err != nil {
		return err
	}
	state := "hidden"
	if on {
		state = "shown"
	}
	if !changed {
		return req.Reply(ctx, fmt.Sprintf("%s is already %s.", c, state))
	}
	return req.Reply(ctx, fmt.Sprintf("%s is now %s.", c, state))
}

func (h *handlers) start(ctx context.Context, req *Request) error {
	return h.setAlert(ctx, req, false)
}

func (h *handlers) expire(ctx context.Context, req *Request) error {
	return h.setAlert(ctx, req, true)
}

func (h *handlers) setAlert(ctx context.Context, req *Request, expire bool) error {
	usage, lo, hi := "/start <prayer> on|off [minutes]", prayer.MinStartOffset, prayer.MaxStartOffset
	if expire {
		usage, lo, hi = "/expire <prayer> on|off [minutes]", prayer.MinExpireOffset, prayer.MaxExpireOffset
	}
	if len(req.Args) < 2 || len(req.Args) > 3 {
		return usageError(usage)
	}
	c, err := prayer.ParseCategory(req.Args[0])
	if err != nil {
		return err
	}
	if expire {
		if _, ok := prayer.GroupOf(c); !ok {
			return fmt.Errorf("%s has no expiration alert", c)
		}
	}
	on, err := parseSwitch(req.Args[1])
	if err != nil {
		return usageError(usage)
	}
	offset := -1
	if len(req.Args) == 3 {
		offset, err = strconv.Atoi(req.Args[2])
		if err != nil || offset < lo || offset > hi {
			return fmt.Errorf("minutes must be between %d and %d", lo, hi)
		}
	}

	p, err := h.d.Settings.UpdatePreference(ctx, c, func(p *prayer.NotificationPreference) {
		if expire {
			p.ExpireEnabled = on
			if offset >= 0 {
				p.ExpireOffset = offset
			}
			return
		}
		p.StartEnabled = on
		if offset >= 0 {
			p.StartOffset = offset
		}
	})
	if err != nil {
		return err
	}
	return req.Reply(ctx, formatPreference(c, p))
}

func (h *handlers) prefs(ctx context.Context, req *Request) error {
	prefs := h.d.Settings.Preferences()
	toggles := h.d.Settings.Toggles()
	lines := []string{"<b>Alert preferences</b>"}
	for _, c := range prayer.Categories() {
		if !prayer.IsVisible(c, toggles) {
			lines = append(lines, fmt.Sprintf("%s: hidden", c))
			continue
		}
		lines = append(lines, formatPreference(c, prefs.Get(c)))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func (h *handlers) plan(ctx context.Context, req *Request) error {
	pending := h.d.Pending.Pending()
	if len(pending) == 0 {
		return req.Reply(ctx, "No alerts are scheduled. Send /refresh to schedule them.")
	}
	now := h.d.Now()
	lines := []string{fmt.Sprintf("<b>%d scheduled alerts</b>", len(pending))}
	for i, a := range pending {
		if i == h.d.PlanLimit {
			lines = append(lines, fmt.Sprintf("… and %d more", len(pending)-i))
			break
		}
		lines = append(lines, fmt.Sprintf("%s %s (%s)",
			a.Trigger.Format("Mon 2 Jan 15:04"),
			html.EscapeString(a.Payload.Title),
			humanize.RelTime(a.Trigger, now, "ago", "from now"),
		))
	}
	if through := h.d.Settings.ScheduledThrough(); !through.IsZero() {
		lines = append(lines, "", "Covered through "+through.Format("Mon 2 Jan"))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func (h *handlers) bind(ctx context.Context, req *Request) error {
	if err := h.d.Settings.BindChat(ctx, req.Chat.ChatID, req.Chat.ThreadID); err != nil {
		return err
	}
	return req.Reply(ctx, "Alerts will be delivered to this chat.")
}

func (h *handlers) status(ctx context.Context, req *Request) error {
	now := h.d.Now()
	last := h.d.Scheduler.Last()
	chatID, _ := h.d.Settings.Chat()

	lines := []string{
		"<b>Status</b>",
		"phase: " + h.d.Scheduler.Phase().String(),
		fmt.Sprintf("pending alerts: %d", len(h.d.Pending.Pending())),
	}
	if chatID == 0 {
		lines = append(lines, "delivery chat: not bound (send /bind)")
	}
	if through := h.d.Settings.ScheduledThrough(); !through.IsZero() {
		lines = append(lines, "covered through: "+through.Format("Mon 2 Jan")+" ("+humanize.RelTime(through, now, "ago", "from now")+")")
	}
	if last.PassID != "" {
		lines = append(lines, fmt.Sprintf("last pass: %s, %s (%s), %d/%d registered, %d failed, took %s",
			shortID(last.PassID),
			html.EscapeString(last.Reason),
			humanize.RelTime(last.Started, now, "ago", "from now"),
			last.Registered, last.Planned, last.Failed,
			last.Took.Round(time.Millisecond),
		))
		if last.Abandoned {
			lines = append(lines, "last pass was superseded")
		}
		if last.Err != "" {
			lines = append(lines, "last error: "+html.EscapeString(last.Err))
		}
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func (h *handlers) refresh(ctx context.Context, req *Request) error {
	h.d.Scheduler.Request("manual")
	return req.Reply(ctx, "Rescheduling alerts.")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "yes", "true", "1":
		return true, nil
	case "off", "no", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("want on or off, got %q", s)
}
