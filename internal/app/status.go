package app

import (
	"sort"
	"time"

	"prayerbell/internal/alerts"
	"prayerbell/internal/notifier"
	rtsup "prayerbell/internal/runtime/supervisor"
)

// Status is the JSON snapshot served at /status.
type Status struct {
	Now       time.Time       `json:"now"`
	Countdown CountdownStatus `json:"countdown"`
	Phase     string          `json:"phase"`
	LastPass  alerts.Result   `json:"last_pass"`
	Pending   int             `json:"pending"`
	NextAlert *alerts.Alert   `json:"next_alert,omitempty"`
	Through   time.Time       `json:"scheduled_through"`
	ChatBound bool            `json:"chat_bound"`
	Notifier  notifier.Stats  `json:"notifier"`
	Tasks     []rtsup.Stats   `json:"tasks,omitempty"`
}

type CountdownStatus struct {
	Label     string    `json:"label"`
	Target    time.Time `json:"target,omitempty"`
	Remaining string    `json:"remaining"`
}

func (a *App) Status() Status {
	st := a.clock.State()
	pending := a.timers.Pending()
	sort.Slice(pending, func(i, j int) bool { return pending[i].Trigger.Before(pending[j].Trigger) })
	chat, _ := a.settings.Chat()

	out := Status{
		Now:       time.Now(),
		Countdown: CountdownStatus{Label: st.Label(), Target: st.Target, Remaining: st.Display},
		Phase:     a.replacer.Phase().String(),
		LastPass:  a.replacer.Last(),
		Pending:   len(pending),
		Through:   a.settings.ScheduledThrough(),
		ChatBound: chat != 0,
		Notifier:  a.notif.Stats(),
	}
	if len(pending) > 0 {
		next := pending[0]
		out.NextAlert = &next
	}
	if a.sup != nil {
		out.Tasks = a.sup.Snapshot()
	}
	return out
}
