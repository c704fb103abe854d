package console

// Categories for organizing commands in help output.
const (
	CategoryLibrary = "library"
	CategoryRuns    = "runs"
	CategoryVars    = "vars"
	CategorySaves   = "saves"
	CategorySystem  = "system"
)

// Handler identifiers mapping commands to session dispatch cases.
const (
	HandlerLists   = "lists"
	HandlerInspect = "inspect"
	HandlerKinds   = "kinds"
	HandlerRuns    = "runs"
	HandlerStart   = "start"
	HandlerPause   = "pause"
	HandlerResume  = "resume"
	HandlerSkip    = "skip"
	HandlerStop    = "stop"
	HandlerWatch   = "watch"
	HandlerVars    = "vars"
	HandlerSet     = "set"
	HandlerSaves   = "saves"
	HandlerSave    = "save"
	HandlerLoad    = "load"
	HandlerStats   = "stats"
	HandlerHelp    = "help"
	HandlerQuit    = "quit"
)

// Command defines an operator-invocable console command.
type Command struct {
	// Name is the canonical command name.
	Name string
	// Aliases are alternate names for this command.
	Aliases []string
	// Help is the short help text displayed to operators.
	Help string
	// Category groups the command (library, runs, vars, saves, system).
	Category string
	// Handler maps to the session dispatch case.
	Handler string
}

// BuiltinCommands returns all built-in console commands.
func BuiltinCommands() []Command {
	return []Command{
		// Library commands
		{Name: "lists", Aliases: []string{"ls"}, Help: "Show the loaded action lists", Category: CategoryLibrary, Handler: HandlerLists},
		{Name: "inspect", Aliases: []string{"lint"}, Help: "Report wiring problems (inspect [list])", Category: CategoryLibrary, Handler: HandlerInspect},
		{Name: "kinds", Aliases: nil, Help: "Show the registered action kinds", Category: CategoryLibrary, Handler: HandlerKinds},

		// Run commands
		{Name: "runs", Aliases: []string{"ps"}, Help: "Show tracked runs", Category: CategoryRuns, Handler: HandlerRuns},
		{Name: "start", Aliases: nil, Help: "Start a list (start <list>)", Category: CategoryRuns, Handler: HandlerStart},
		{Name: "pause", Aliases: nil, Help: "Pause a run (pause <run>)", Category: CategoryRuns, Handler: HandlerPause},
		{Name: "resume", Aliases: []string{"cont"}, Help: "Resume a paused run (resume <run>)", Category: CategoryRuns, Handler: HandlerResume},
		{Name: "skip", Aliases: []string{"ff"}, Help: "Fast-forward a skippable run (skip <run>)", Category: CategoryRuns, Handler: HandlerSkip},
		{Name: "stop", Aliases: nil, Help: "Stop a run (stop <run>)", Category: CategoryRuns, Handler: HandlerStop},
		{Name: "watch", Aliases: []string{"tail"}, Help: "Stream engine events until you press enter", Category: CategoryRuns, Handler: HandlerWatch},

		// Variable commands
		{Name: "vars", Aliases: []string{"v"}, Help: "Show the variable board (vars [name])", Category: CategoryVars, Handler: HandlerVars},
		{Name: "set", Aliases: nil, Help: "Set a variable (set <name> <value>)", Category: CategoryVars, Handler: HandlerSet},

		// Save commands
		{Name: "saves", Aliases: nil, Help: "Show the save slots on disk", Category: CategorySaves, Handler: HandlerSaves},
		{Name: "save", Aliases: nil, Help: "Save variables and runs (save <slot>)", Category: CategorySaves, Handler: HandlerSave},
		{Name: "load", Aliases: nil, Help: "Load a save slot (load <slot>)", Category: CategorySaves, Handler: HandlerLoad},

		// System commands
		{Name: "stats", Aliases: nil, Help: "Show daemon and host statistics", Category: CategorySystem, Handler: HandlerStats},
		{Name: "help", Aliases: []string{"?"}, Help: "Show available commands", Category: CategorySystem, Handler: HandlerHelp},
		{Name: "quit", Aliases: []string{"exit"}, Help: "Disconnect from the console", Category: CategorySystem, Handler: HandlerQuit},
	}
}
