package bot

import (
	"fmt"
	"html"
	"strings"

	"prayerbell/internal/alerts"
	"prayerbell/internal/countdown"
	"prayerbell/internal/planner"
	"prayerbell/internal/prayer"
)

// FormatAlert renders a fired alert as an HTML message.
func FormatAlert(a alerts.Alert) string {
	icon := "🕌"
	switch a.Payload.Kind {
	case planner.KindExpire:
		icon = "⏳"
	case planner.KindMeta:
		icon = "ℹ️"
	}
	title := html.EscapeString(a.Payload.Title)
	if a.Payload.Body == "" {
		return icon + " <b>" + title + "</b>"
	}
	return icon + " <b>" + title + "</b>\n" + html.EscapeString(a.Payload.Body)
}

// FormatState renders a countdown state for /next and the CLI.
func FormatState(st countdown.State) string {
	switch st.Kind {
	case countdown.KindEvent:
		return fmt.Sprintf("Next: <b>%s</b> at %s (in %s)", st.Category, st.Target.Format("15:04"), st.Display)
	case countdown.KindNow:
		return fmt.Sprintf("It is <b>%s</b> now.", st.Category)
	case countdown.KindPending:
		return fmt.Sprintf("Next: <b>%s</b> tomorrow (times are loading)", st.Category)
	case countdown.KindNone:
		return "No further prayers today."
	default:
		return "Prayer times are loading."
	}
}

func formatPreference(c prayer.Category, p prayer.NotificationPreference) string {
	parts := []string{}
	if p.StartEnabled {
		if p.StartOffset == 0 {
			parts = append(parts, "at start")
		} else {
			parts = append(parts, fmt.Sprintf("%d min before start", p.StartOffset))
		}
	}
	if _, grouped := prayer.GroupOf(c); grouped && p.ExpireEnabled {
		parts = append(parts, fmt.Sprintf("%d min before end", p.ExpireOffset))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s: off", c)
	}
	return fmt.Sprintf("%s: %s", c, strings.Join(parts, ", "))
}
