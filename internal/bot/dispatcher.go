package bot

import (
	"context"
	"fmt"
	"html"
	"runtime/debug"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "prayerbell/internal/runtime/supervisor"
	"prayerbell/internal/transport"
	logx "prayerbell/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	// AccessOwnerOnly restricts a command to telegram.owner_user_ids. With
	// no owners configured every sender counts as owner.
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // default 10s
	Handle      HandlerFunc
}

// Request is one parsed command invocation.
type Request struct {
	Chat    transport.ChatTarget
	FromID  int64
	IsGroup bool
	Command string
	Args    []string
	ReqID   string
	Logger  logx.Logger

	adapter transport.Adapter
}

// Reply sends text back to the originating chat in HTML parse mode.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.adapter.SendText(ctx, r.Chat, text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

// Dispatcher routes inbound messages to commands on a bounded worker pool.
type Dispatcher struct {
	log     logx.Logger
	adapter transport.Adapter
	workers int

	mu     sync.RWMutex
	byName map[string]*Command
	list   []Command
	owners []int64

	jobs chan func()
}

func NewDispatcher(log logx.Logger, adapter transport.Adapter, owners []int64, workers int) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if workers <= 0 {
		workers = 2
	}
	return &Dispatcher{
		log:     log,
		adapter: adapter,
		workers: workers,
		byName:  map[string]*Command{},
		owners:  slices.Clone(owners),
		jobs:    make(chan func(), 64),
	}
}

// SetOwners replaces the owner list. Safe during hot reload.
func (d *Dispatcher) SetOwners(owners []int64) {
	d.mu.Lock()
	d.owners = slices.Clone(owners)
	d.mu.Unlock()
}

// SetCommands installs the command set plus the built-in /help.
func (d *Dispatcher) SetCommands(cmds []Command) {
	cmds = append(slices.Clone(cmds), Command{
		Name:        "help",
		Description: "list commands",
		Usage:       "/help",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, d.helpText())
		},
	})
	byName := make(map[string]*Command, len(cmds)*2)
	list := make([]Command, 0, len(cmds))
	for i := range cmds {
		c := cmds[i]
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		list = append(list, c)
	}
	for i := range list {
		byName[list[i].Name] = &list[i]
		for _, a := range list[i].Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				if _, exists := byName[a]; !exists {
					byName[a] = &list[i]
				}
			}
		}
	}
	d.mu.Lock()
	d.byName = byName
	d.list = list
	d.mu.Unlock()
}

// MenuCommands returns the platform command menu, sorted by name.
func (d *Dispatcher) MenuCommands() []transport.BotCommand {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]transport.BotCommand, 0, len(d.list))
	for _, c := range d.list {
		out = append(out, transport.BotCommand{Command: c.Name, Description: c.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// UpdateMenu pushes MenuCommands to the adapter if it supports a menu.
func (d *Dispatcher) UpdateMenu(ctx context.Context) error {
	up, ok := d.adapter.(transport.CommandMenuUpdater)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(ctx, d.MenuCommands())
}

// Run consumes updates until ctx is done or updates is closed.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan transport.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(d.log.With(logx.String("comp", "bot.dispatch"))))
	jobs := d.jobs
	for i := 0; i < d.workers; i++ {
		idx := i
		sup.GoRestart("worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					d.runJob(idx, job)
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	d.log.Info("command dispatcher started", logx.Int("workers", d.workers))
	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		d.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Message == nil {
				continue
			}
			job := d.prepare(ctx, up.Message)
			if job == nil {
				continue
			}
			select {
			case jobs <- job:
			default:
				_, _ = d.adapter.SendText(ctx, chatOf(up.Message), "busy, try again", nil)
			}
		}
	}
}

func (d *Dispatcher) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

// Dispatch handles one message synchronously and returns the handler error.
// Non-command text is ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *transport.Message) error {
	var err error
	job := d.prepareWith(ctx, msg, func(e error) { err = e })
	if job != nil {
		job()
	}
	return err
}

func (d *Dispatcher) prepare(ctx context.Context, msg *transport.Message) func() {
	return d.prepareWith(ctx, msg, nil)
}

// prepareWith parses msg and returns the job to run, or nil when there is
// nothing to do. Unknown commands and access denials reply inline.
func (d *Dispatcher) prepareWith(ctx context.Context, msg *transport.Message, done func(error)) func() {
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return nil
	}
	d.mu.RLock()
	cmd, found := d.byName[name]
	owners := d.owners
	d.mu.RUnlock()

	chat := chatOf(msg)
	if !found {
		_, _ = d.adapter.SendText(ctx, chat, "unknown command, try /help", nil)
		return nil
	}
	if cmd.Access == AccessOwnerOnly && len(owners) > 0 && !slices.Contains(owners, msg.FromID) {
		_, _ = d.adapter.SendText(ctx, chat, "unauthorized", nil)
		return nil
	}

	rid := uuid.NewString()[:8]
	req := &Request{
		Chat:    chat,
		FromID:  msg.FromID,
		IsGroup: msg.IsGroup,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Logger: d.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
		),
		adapter: d.adapter,
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	h := Chain(cmd.Handle, MWPanicRecover(), MWRequestLog(), MWTimeout(timeout))
	return func() {
		err := h(ctx, req)
		if err != nil {
			_ = req.Reply(ctx, "⚠️ "+html.EscapeString(err.Error()))
		}
		if done != nil {
			done(err)
		}
	}
}

func (d *Dispatcher) helpText() string {
	d.mu.RLock()
	list := slices.Clone(d.list)
	d.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	lines := []string{"<b>Commands</b>"}
	for _, c := range list {
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		line := "<code>" + html.EscapeString(usage) + "</code>"
		if c.Description != "" {
			line += " " + html.EscapeString(c.Description)
		}
		if c.Access == AccessOwnerOnly {
			line += " 🔒"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// parseCommand splits "/cmd@bot a b" into ("cmd", ["a","b"]).
func parseCommand(text string) (string, []string, bool) {
	parts := strings.Fields(strings.TrimSpace(text))
	if len(parts) == 0 || !strings.HasPrefix(parts[0], "/") {
		return "", nil, false
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", nil, false
	}
	return strings.ToLower(word), parts[1:], true
}

func chatOf(msg *transport.Message) transport.ChatTarget {
	return transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
}

// usageError is returned by handlers for malformed arguments.
func usageError(usage string) error {
	return fmt.Errorf("usage: %s", usage)
}
