// Package bot is the chat command surface: a small command dispatcher with
// middleware, the prayer commands (/next, /show, /start, /expire, /plan,
// /bind, /status, /refresh) and the text formatting for fired alerts.
package bot
