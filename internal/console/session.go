package console

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/cueworks/stagehand/internal/director"
	"github.com/cueworks/stagehand/internal/savegame"
	"github.com/cueworks/stagehand/internal/script"
	"github.com/cueworks/stagehand/internal/vars"
)

// maxAuthAttempts is how many password tries an operator gets.
const maxAuthAttempts = 3

// Session drives one operator connection: optional password auth, then the
// command loop. One Session value serves all connections; it holds no
// per-connection state.
type Session struct {
	director *director.Director
	slots    *savegame.Slots
	hash     string
	started  time.Time
	registry *Registry
	logger   *zap.Logger
}

// NewSession creates the console session handler.
//
// Precondition: d and logger must be non-nil. slots may be nil when no save
// directory is configured; passwordHash may be empty to disable auth.
func NewSession(d *director.Director, slots *savegame.Slots, passwordHash string, logger *zap.Logger) *Session {
	return &Session{
		director: d,
		slots:    slots,
		hash:     passwordHash,
		started:  time.Now(),
		registry: DefaultRegistry(),
		logger:   logger,
	}
}

// HandleSession implements SessionHandler.
//
// Postcondition: Returns nil on clean quit, ctx.Err() on cancellation, or a
// wrapped error on failure.
func (s *Session) HandleSession(ctx context.Context, conn *Conn) error {
	_ = conn.WriteLine(Colorize(BrightCyan, "stagehand console"))
	_ = conn.WriteLine(Colorize(Dim, "type 'help' for commands"))

	if s.hash != "" {
		if err := s.authenticate(conn); err != nil {
			return err
		}
	}

	return s.commandLoop(ctx, conn)
}

// authenticate prompts for the console password until it matches the
// configured bcrypt hash or the attempts run out.
func (s *Session) authenticate(conn *Conn) error {
	for attempt := 1; attempt <= maxAuthAttempts; attempt++ {
		if err := conn.WritePrompt("password: "); err != nil {
			return fmt.Errorf("writing password prompt: %w", err)
		}
		input, err := conn.ReadPassword()
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		if bcrypt.CompareHashAndPassword([]byte(s.hash), []byte(input)) == nil {
			return nil
		}
		s.logger.Warn("console password rejected",
			zap.String("remote_addr", conn.RemoteAddr().String()),
			zap.Int("attempt", attempt),
		)
		_ = conn.WriteLine(Colorize(Red, "wrong password"))
	}
	return errors.New("too many failed password attempts")
}

// commandLoop reads lines, parses commands, and dispatches them.
func (s *Session) commandLoop(ctx context.Context, conn *Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := conn.WritePrompt(Colorf(BrightCyan, "stagehand> ")); err != nil {
			return fmt.Errorf("writing prompt: %w", err)
		}
		line, err := conn.ReadLine()
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		parsed := Parse(line)
		if parsed.Command == "" {
			continue
		}

		cmd, ok := s.registry.Resolve(parsed.Command)
		if !ok {
			_ = conn.WriteLine(Colorf(Dim, "unknown command '%s', try 'help'", parsed.Command))
			continue
		}

		switch cmd.Handler {
		case HandlerQuit:
			_ = conn.WriteLine(Colorize(Cyan, "goodbye"))
			return nil

		case HandlerHelp:
			s.showHelp(conn)

		case HandlerLists:
			s.showLists(conn)

		case HandlerInspect:
			s.showInspection(conn, parsed.RawArgs)

		case HandlerKinds:
			s.showKinds(conn)

		case HandlerRuns:
			s.showRuns(conn)

		case HandlerStart:
			if parsed.RawArgs == "" {
				_ = conn.WriteLine(Colorize(Red, "start which list?"))
				continue
			}
			id, err := s.director.Start(parsed.RawArgs)
			if err != nil {
				_ = conn.WriteLine(Colorf(Red, "start failed: %v", err))
				continue
			}
			_ = conn.WriteLine(Colorf(BrightGreen, "started run %s", shortID(id)))

		case HandlerPause:
			s.runControl(conn, parsed.RawArgs, "paused", s.director.Pause)

		case HandlerResume:
			s.runControl(conn, parsed.RawArgs, "resumed", s.director.Resume)

		case HandlerSkip:
			s.runControl(conn, parsed.RawArgs, "skipping", s.director.Skip)

		case HandlerStop:
			s.runControl(conn, parsed.RawArgs, "stopped", s.director.StopRun)

		case HandlerWatch:
			if err := s.watch(ctx, conn); err != nil {
				return err
			}

		case HandlerVars:
			s.showVars(conn, parsed.RawArgs)

		case HandlerSet:
			s.setVar(conn, parsed.Args)

		case HandlerSaves:
			s.showSaves(conn)

		case HandlerSave:
			s.saveSlot(conn, parsed.RawArgs)

		case HandlerLoad:
			s.loadSlot(conn, parsed.RawArgs)

		case HandlerStats:
			s.showStats(conn)

		default:
			_ = conn.WriteLine(Colorf(Dim, "'%s' is not wired up", parsed.Command))
		}
	}
}

// runControl resolves a run by ID prefix and applies one director operation.
func (s *Session) runControl(conn *Conn, prefix, verb string, op func(uuid.UUID) error) {
	id, err := s.resolveRun(prefix)
	if err != nil {
		_ = conn.WriteLine(Colorf(Red, "%v", err))
		return
	}
	if err := op(id); err != nil {
		_ = conn.WriteLine(Colorf(Red, "%v", err))
		return
	}
	_ = conn.WriteLine(Colorf(BrightGreen, "run %s %s", shortID(id), verb))
}

// resolveRun matches a run by unique ID prefix.
func (s *Session) resolveRun(prefix string) (uuid.UUID, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return uuid.Nil, errors.New("which run? give an id prefix from 'runs'")
	}

	var matches []uuid.UUID
	for _, view := range s.director.Runs() {
		if strings.HasPrefix(view.ID.String(), prefix) {
			matches = append(matches, view.ID)
		}
	}
	switch len(matches) {
	case 0:
		return uuid.Nil, fmt.Errorf("no run matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return uuid.Nil, fmt.Errorf("%d runs match %q, give more characters", len(matches), prefix)
	}
}

func (s *Session) showHelp(conn *Conn) {
	order := []string{CategoryLibrary, CategoryRuns, CategoryVars, CategorySaves, CategorySystem}
	byCategory := s.registry.CommandsByCategory()

	for _, category := range order {
		cmds := byCategory[category]
		if len(cmds) == 0 {
			continue
		}
		sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

		_ = conn.WriteLine(Colorize(Yellow, category))
		for _, cmd := range cmds {
			name := cmd.Name
			if len(cmd.Aliases) > 0 {
				name += " (" + strings.Join(cmd.Aliases, ", ") + ")"
			}
			_ = conn.WriteLine(fmt.Sprintf("  %-22s %s", name, cmd.Help))
		}
	}
}

func (s *Session) showLists(conn *Conn) {
	lists := s.director.Library().AllLists()
	if len(lists) == 0 {
		_ = conn.WriteLine(Colorize(Dim, "the library is empty"))
		return
	}
	for _, list := range lists {
		marker := " "
		if list.Skippable {
			marker = Colorize(BrightGreen, "s")
		}
		_ = conn.WriteLine(fmt.Sprintf("%s %-24s %3d nodes  %s", marker, list.ID, list.Len(), list.Source))
	}
}

func (s *Session) showInspection(conn *Conn, listID string) {
	var issues []script.Issue
	if listID == "" {
		issues = s.director.Library().Inspect(s.director.Registry())
	} else {
		list, ok := s.director.Library().GetList(listID)
		if !ok {
			_ = conn.WriteLine(Colorf(Red, "no list %q", listID))
			return
		}
		issues = list.Inspect(s.director.Registry())
	}

	if len(issues) == 0 {
		_ = conn.WriteLine(Colorize(BrightGreen, "clean"))
		return
	}
	for _, issue := range issues {
		_ = conn.WriteLine(Colorize(Yellow, issue.String()))
	}
}

func (s *Session) showKinds(conn *Conn) {
	reg := s.director.Registry()
	for _, kind := range reg.Kinds() {
		def, ok := reg.Lookup(kind)
		if !ok {
			continue
		}
		exits := fmt.Sprintf("%d", def.MinExits)
		if def.MaxExits == 0 {
			exits = fmt.Sprintf("%d+", def.MinExits)
		} else if def.MaxExits != def.MinExits {
			exits = fmt.Sprintf("%d-%d", def.MinExits, def.MaxExits)
		}
		_ = conn.WriteLine(fmt.Sprintf("%-14s %-5s %s", kind, exits, def.Doc))
	}
}

func (s *Session) showRuns(conn *Conn) {
	views := s.director.Runs()
	if len(views) == 0 {
		_ = conn.WriteLine(Colorize(Dim, "no runs"))
		return
	}
	for _, view := range views {
		status := string(view.Status)
		if view.Skipping {
			status += "+skip"
		}
		age := time.Since(view.StartedAt).Round(time.Second)
		_ = conn.WriteLine(fmt.Sprintf("%s  %-20s %s %8s  at %s",
			shortID(view.ID), view.ListID,
			statusColor(view.Status, fmt.Sprintf("%-13s", status)), age,
			strings.Join(view.Cursors, ","),
		))
	}
}

// watch streams engine events to the operator until they press enter.
func (s *Session) watch(ctx context.Context, conn *Conn) error {
	ch := make(chan director.Event, 256)
	s.director.Subscribe(ch)
	defer s.director.Unsubscribe(ch)

	_ = conn.WriteLine(Colorize(Dim, "watching engine events, press enter to stop"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = conn.ReadLine()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			_ = conn.WriteLine(Colorize(Dim, "watch ended"))
			return nil
		case ev := <-ch:
			if err := conn.WriteLine(renderEvent(ev)); err != nil {
				return fmt.Errorf("writing event: %w", err)
			}
		}
	}
}

func (s *Session) showVars(conn *Conn, name string) {
	board := s.director.Vars()

	if name != "" {
		v, ok := board.Get(name)
		if !ok {
			_ = conn.WriteLine(Colorf(Red, "no variable %q", name))
			return
		}
		_ = conn.WriteLine(fmt.Sprintf("%-24s %-7s %s", name, v.Kind, v.String()))
		return
	}

	names := board.Names()
	if len(names) == 0 {
		_ = conn.WriteLine(Colorize(Dim, "the board is empty"))
		return
	}
	for _, n := range names {
		v, _ := board.Get(n)
		_ = conn.WriteLine(fmt.Sprintf("%-24s %-7s %s", n, v.Kind, v.String()))
	}
}

func (s *Session) setVar(conn *Conn, args []string) {
	if len(args) < 2 {
		_ = conn.WriteLine(Colorize(Red, "usage: set <name> <value>"))
		return
	}
	name := args[0]
	raw := strings.Join(args[1:], " ")

	board := s.director.Vars()
	var value vars.Value
	if existing, ok := board.Get(name); ok {
		parsed, err := vars.ParseAs(existing.Kind, raw)
		if err != nil {
			_ = conn.WriteLine(Colorf(Red, "%s is a %s: %v", name, existing.Kind, err))
			return
		}
		value = parsed
	} else {
		value = inferValue(raw)
	}

	board.Set(name, value)
	_ = conn.WriteLine(Colorf(BrightGreen, "%s = %s (%s)", name, value.String(), value.Kind))
}

func (s *Session) showSaves(conn *Conn) {
	if s.slots == nil {
		_ = conn.WriteLine(Colorize(Dim, "saves are not configured"))
		return
	}
	infos, err := s.slots.List()
	if err != nil {
		_ = conn.WriteLine(Colorf(Red, "%v", err))
		return
	}
	if len(infos) == 0 {
		_ = conn.WriteLine(Colorize(Dim, "no save slots"))
		return
	}
	for _, info := range infos {
		_ = conn.WriteLine(fmt.Sprintf("%-24s %8d bytes  %s",
			info.Name, info.Size, info.SavedAt.Format(time.RFC3339)))
	}
}

func (s *Session) saveSlot(conn *Conn, slot string) {
	if s.slots == nil {
		_ = conn.WriteLine(Colorize(Dim, "saves are not configured"))
		return
	}
	if slot == "" {
		_ = conn.WriteLine(Colorize(Red, "usage: save <slot>"))
		return
	}
	if err := s.slots.Save(slot, s.director); err != nil {
		_ = conn.WriteLine(Colorf(Red, "save failed: %v", err))
		return
	}
	_ = conn.WriteLine(Colorf(BrightGreen, "saved %q", slot))
}

func (s *Session) loadSlot(conn *Conn, slot string) {
	if s.slots == nil {
		_ = conn.WriteLine(Colorize(Dim, "saves are not configured"))
		return
	}
	if slot == "" {
		_ = conn.WriteLine(Colorize(Red, "usage: load <slot>"))
		return
	}
	file, err := s.slots.Load(slot, s.director)
	if err != nil {
		_ = conn.WriteLine(Colorf(Red, "load failed: %v", err))
		return
	}
	_ = conn.WriteLine(Colorf(BrightGreen, "loaded %q: %d vars, %d runs, saved %s",
		slot, len(file.Vars), len(file.Runs), file.SavedAt.Format(time.RFC3339)))
}

func (s *Session) showStats(conn *Conn) {
	running, paused, terminal := 0, 0, 0
	for _, view := range s.director.Runs() {
		switch {
		case view.Status == director.StatusRunning:
			running++
		case view.Status == director.StatusPaused:
			paused++
		default:
			terminal++
		}
	}

	_ = conn.WriteLine(fmt.Sprintf("uptime    %s", time.Since(s.started).Round(time.Second)))
	_ = conn.WriteLine(fmt.Sprintf("tick      %d", s.director.Tick()))
	_ = conn.WriteLine(fmt.Sprintf("lists     %d", s.director.Library().ListCount()))
	_ = conn.WriteLine(fmt.Sprintf("vars      %d", s.director.Vars().Len()))
	_ = conn.WriteLine(fmt.Sprintf("runs      %d running, %d paused, %d done", running, paused, terminal))

	if info, err := host.Info(); err == nil {
		_ = conn.WriteLine(fmt.Sprintf("host      %s (%s, up %s)",
			info.Hostname, info.Platform, (time.Duration(info.Uptime) * time.Second)))
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		_ = conn.WriteLine(fmt.Sprintf("memory    %.1f%% of %d MiB used",
			vm.UsedPercent, vm.Total/1024/1024))
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := proc.MemoryInfo(); err == nil {
			_ = conn.WriteLine(fmt.Sprintf("process   %d MiB resident", mi.RSS/1024/1024))
		}
	}
}

// renderEvent colors an engine event for the terminal.
func renderEvent(ev director.Event) string {
	var color string
	switch ev.Kind {
	case director.EventBreakpointHit:
		color = BrightRed
	case director.EventRunStarted, director.EventRunFinished:
		color = BrightGreen
	case director.EventRunPaused, director.EventRunResumed,
		director.EventRunStopped, director.EventRunSkipping:
		color = Cyan
	case director.EventLine:
		color = BrightWhite
	case director.EventVarChanged:
		color = Yellow
	case director.EventCustom:
		color = Magenta
	default:
		color = Dim
	}
	return Colorize(color, ev.String())
}

func statusColor(status director.Status, text string) string {
	switch status {
	case director.StatusRunning:
		return Colorize(BrightGreen, text)
	case director.StatusPaused:
		return Colorize(Yellow, text)
	default:
		return Colorize(Dim, text)
	}
}

// shortID renders the first UUID group, enough to address a run at the prompt.
func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

// inferValue types a console-entered literal: bool, then int, then float,
// falling back to string.
func inferValue(raw string) vars.Value {
	switch raw {
	case "true", "false":
		return vars.BoolValue(raw == "true")
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return vars.IntValue(i)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return vars.FloatValue(f)
	}
	return vars.StringValue(raw)
}
