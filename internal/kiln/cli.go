package kiln

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"kiln/internal/arch"
	"kiln/internal/lifecycle"
	"kiln/internal/states"
)

// errUsage marks errors already explained by a usage message.
var errUsage = errors.New("usage")

type command struct {
	Name string
	Args string
	Desc string
	Run  func(a *app, args []string) error
}

var commands = []command{
	{"arch", "", "Show the resolved build target", (*app).cmdArch},
	{"status", "<part> [options]", "Show which steps of a part must run and why", (*app).cmdStatus},
	{"record", "<part> <step> [options]", "Record the state of a step after it ran", (*app).cmdRecord},
	{"show", "<part> [step]", "Show recorded states", (*app).cmdShow},
	{"clean", "<part> [--from step] [--yes]", "Remove recorded states from a step onward", (*app).cmdClean},
	{"export", "<part> <archive>", "Write a part's states to .tar.zst/.tar.gz/.tar.xz", (*app).cmdExport},
	{"import", "<archive>", "Replace a part's states from an archive", (*app).cmdImport},
	{"push", "[part...]", "Upload state archives to the remote mirror", (*app).cmdPush},
	{"pull", "[part...]", "Download state archives from the remote mirror", (*app).cmdPull},
	{"browse", "", "Browse recorded states", (*app).cmdBrowse},
	{"version", "", "Version information", (*app).cmdVersion},
}

// app carries what every command needs for one invocation.
type app struct {
	ctx      context.Context
	cfg      *Config
	settings Settings
	store    *states.Store
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
}

// printHelp prints the commands table
func printHelp(w io.Writer) {
	cPrintln(w, colSuccess, "Usage: kiln <command> [arguments]")
	fmt.Fprintln(w)
	cPrintln(w, colInfo, "Available Commands:")

	width := 0
	for _, c := range commands {
		width = max(width, len(c.Name)+len(c.Args)+1)
	}
	for _, c := range commands {
		usage := strings.TrimSpace(c.Name + " " + c.Args)
		fmt.Fprint(w, "  ", color.Bold.Sprint(c.Name))
		if c.Args != "" {
			fmt.Fprint(w, " ", color.Cyan.Sprint(c.Args))
		}
		fmt.Fprint(w, strings.Repeat(" ", width-len(usage)+4))
		cPrintln(w, colInfo, c.Desc)
	}
	fmt.Fprintln(w)
}

// Main is the CLI entrypoint for cmd/kiln.
func Main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			cPrintf(os.Stderr, colArrow, "\n-> ")
			cPrintln(os.Stderr, color.Danger, fmt.Sprintf("Received %v. Cancelling", sig))
			cancel()
			select {
			case <-sigs:
				os.Exit(130)
			case <-time.After(2 * time.Second):
				os.Exit(130)
			}
		case <-ctx.Done():
		}
	}()

	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run executes one command line and returns the exit code.
func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printHelp(out)
		return 0
	}
	if args[0] == "--version" {
		args[0] = "version"
	}

	var cmd *command
	for i := range commands {
		if commands[i].Name == args[0] {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		cPrintln(errOut, colError, fmt.Sprintf("Unknown command: %s", args[0]))
		printHelp(errOut)
		return 1
	}

	cfg, err := loadConfig(configPath())
	if err != nil {
		return fail(errOut, err)
	}
	settings, err := initConfig(cfg)
	if err != nil {
		return fail(errOut, err)
	}

	a := &app{
		ctx:      ctx,
		cfg:      cfg,
		settings: settings,
		store:    states.NewStore(settings.StateDir),
		in:       in,
		out:      out,
		errOut:   errOut,
	}
	if err := cmd.Run(a, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return 1
		}
		return fail(errOut, err)
	}
	return 0
}

func fail(w io.Writer, err error) int {
	var confErr *arch.ConfigurationError
	var corrupt *states.CorruptStateError
	switch {
	case errors.As(err, &confErr):
		cPrintln(w, colError, "Configuration error: "+err.Error())
	case errors.As(err, &corrupt):
		cPrintln(w, colError, "Error: "+err.Error())
		cPrintln(w, colWarn, "Run 'kiln clean <part>' to discard the damaged state.")
	default:
		cPrintln(w, colError, "Error: "+err.Error())
	}
	return 1
}

func (a *app) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.errOut)
	fs.Usage = func() {}
	return fs
}

// usage prints the command's usage line and returns errUsage.
func (a *app) usage(fs *pflag.FlagSet, line string) error {
	cPrintln(a.errOut, colNote, "Usage: kiln "+line)
	if fs != nil && fs.HasFlags() {
		fmt.Fprint(a.errOut, fs.FlagUsages())
	}
	return errUsage
}

// parse parses args, turning flag errors into errUsage.
func (a *app) parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			cPrintln(a.errOut, colError, err.Error())
		}
		return errUsage
	}
	return nil
}

func (a *app) inputFlags(fs *pflag.FlagSet, in *stepInputs, withOutput bool) {
	fs.StringVarP(&in.propertiesFile, "properties", "p", "", "YAML file with the part's properties")
	fs.StringArrayVarP(&in.dependencies, "dependency", "d", nil, "dependency path the step used (repeatable)")
	fs.StringSliceVar(&in.pullProps, "pull-property", nil, "extra plugin property that affects pull")
	fs.StringSliceVar(&in.buildProps, "build-property", nil, "extra plugin property that affects build")
	if withOutput {
		fs.StringVarP(&in.outputDir, "output-dir", "o", "", "directory holding the step's output")
	}
}

func (a *app) cmdArch(args []string) error {
	fs := a.flagSet("arch")
	if err := a.parse(fs, args); err != nil || fs.NArg() != 0 {
		return a.usage(fs, "arch")
	}
	target, err := resolveTarget(a.ctx, a.settings)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(target)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, string(data))
	fmt.Fprintf(a.out, "cross: %t\n", target.Cross())
	return nil
}

func (a *app) cmdStatus(args []string) error {
	fs := a.flagSet("status")
	var in stepInputs
	a.inputFlags(fs, &in, false)
	if err := a.parse(fs, args); err != nil || fs.NArg() != 1 {
		return a.usage(fs, "status <part> [options]")
	}
	part := fs.Arg(0)
	if err := states.ValidatePart(part); err != nil {
		return err
	}

	target, err := resolveTarget(a.ctx, a.settings)
	if err != nil {
		return err
	}
	candidates := make(map[states.Step]states.State)
	for _, step := range states.Steps() {
		c, err := in.candidate(a.store, part, step, target)
		if err != nil {
			return err
		}
		candidates[step] = c
	}

	planner := &lifecycle.Planner{Store: a.store, Log: debugWriter()}
	plan, err := planner.Plan(part, candidates)
	if err != nil {
		return err
	}

	if plan.UpToDate() {
		arrowf(a.out, colSuccess, "%s is up to date for %s", part, target.Platform)
	} else {
		first, _ := plan.FirstRun()
		arrowf(a.out, colWarn, "%s must run from the %s step for %s", part, first, target.Platform)
	}
	for _, d := range plan.Decisions {
		style := styler(colInfo)
		if d.Action == lifecycle.Run {
			style = colWarn
		}
		fmt.Fprintf(a.out, "  %-6s %s  %s\n", d.Step, style.Sprintf("%-4s", d.Action), d.Reason)
	}
	return nil
}

func (a *app) cmdRecord(args []string) error {
	fs := a.flagSet("record")
	var in stepInputs
	a.inputFlags(fs, &in, true)
	if err := a.parse(fs, args); err != nil || fs.NArg() != 2 {
		return a.usage(fs, "record <part> <step> [options]")
	}
	part := fs.Arg(0)
	if err := states.ValidatePart(part); err != nil {
		return err
	}
	step, err := states.ParseStep(fs.Arg(1))
	if err != nil {
		return err
	}

	target, err := resolveTarget(a.ctx, a.settings)
	if err != nil {
		return err
	}
	state, err := in.candidate(a.store, part, step, target)
	if err != nil {
		return err
	}
	planner := &lifecycle.Planner{Store: a.store, Log: debugWriter()}
	if err := planner.Record(part, state); err != nil {
		return err
	}
	arrowf(a.out, colSuccess, "Recorded %s state of %s (%d files, %d directories)", step, part, len(state.Files), len(state.Directories))
	return nil
}

func (a *app) cmdShow(args []string) error {
	fs := a.flagSet("show")
	if err := a.parse(fs, args); err != nil || fs.NArg() < 1 || fs.NArg() > 2 {
		return a.usage(fs, "show <part> [step]")
	}
	part := fs.Arg(0)
	steps := states.Steps()
	if fs.NArg() == 2 {
		step, err := states.ParseStep(fs.Arg(1))
		if err != nil {
			return err
		}
		steps = []states.Step{step}
	}

	var lines []string
	for _, step := range steps {
		state, ok, err := a.store.Load(part, step)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		data, err := states.Marshal(state)
		if err != nil {
			return err
		}
		lines = append(lines, "# "+a.store.Path(part, step))
		lines = append(lines, strings.Split(strings.TrimRight(string(data), "\n"), "\n")...)
	}
	if len(lines) == 0 {
		arrowf(a.out, colWarn, "No recorded states for %s", part)
		return nil
	}
	return RunPager(a.out, part+" states", lines)
}

func (a *app) cmdClean(args []string) error {
	fs := a.flagSet("clean")
	from := fs.String("from", states.Pull.String(), "first step to clean")
	yes := fs.BoolP("yes", "y", false, "do not ask for confirmation")
	if err := a.parse(fs, args); err != nil || fs.NArg() != 1 {
		return a.usage(fs, "clean <part> [--from step] [--yes]")
	}
	part := fs.Arg(0)
	if err := states.ValidatePart(part); err != nil {
		return err
	}
	step, err := states.ParseStep(*from)
	if err != nil {
		return err
	}

	if !*yes {
		cPrintf(a.out, colArrow, "-> ")
		if !askForConfirmation(a.in, a.out, colWarn, "Remove the recorded states of %s from the %s step onward?", part, step) {
			arrowf(a.out, colInfo, "Nothing removed")
			return nil
		}
	}
	planner := &lifecycle.Planner{Store: a.store, Log: debugWriter()}
	if err := planner.Clean(part, step); err != nil {
		return err
	}
	arrowf(a.out, colSuccess, "Cleaned %s from the %s step", part, step)
	return nil
}

func (a *app) cmdExport(args []string) error {
	fs := a.flagSet("export")
	if err := a.parse(fs, args); err != nil || fs.NArg() != 2 {
		return a.usage(fs, "export <part> <archive>")
	}
	n, err := ExportPart(a.store, fs.Arg(0), fs.Arg(1))
	if err != nil {
		return err
	}
	arrowf(a.out, colSuccess, "Exported %d states of %s to %s", n, fs.Arg(0), fs.Arg(1))
	return nil
}

func (a *app) cmdImport(args []string) error {
	fs := a.flagSet("import")
	if err := a.parse(fs, args); err != nil || fs.NArg() != 1 {
		return a.usage(fs, "import <archive>")
	}
	part, err := ImportPart(a.store, fs.Arg(0))
	if err != nil {
		return err
	}
	arrowf(a.out, colSuccess, "Imported states of %s from %s", part, fs.Arg(0))
	return nil
}

// remote resolves the target platform and connects to the mirror.
func (a *app) remote() (objectStore, string, error) {
	target, err := resolveTarget(a.ctx, a.settings)
	if err != nil {
		return nil, "", err
	}
	client, err := NewR2Client(a.ctx, a.cfg)
	if err != nil {
		return nil, "", err
	}
	return client, target.Platform, nil
}

func (a *app) cmdPush(args []string) error {
	fs := a.flagSet("push")
	if err := a.parse(fs, args); err != nil {
		return a.usage(fs, "push [part...]")
	}
	remote, platform, err := a.remote()
	if err != nil {
		return err
	}
	arrowf(a.out, colSuccess, "Pushing states for %s", platform)
	n, err := pushParts(a.ctx, remote, a.store, platform, fs.Args(), a.out)
	if err != nil {
		return err
	}
	arrowf(a.out, colSuccess, "Pushed %d parts", n)
	return nil
}

func (a *app) cmdPull(args []string) error {
	fs := a.flagSet("pull")
	if err := a.parse(fs, args); err != nil {
		return a.usage(fs, "pull [part...]")
	}
	remote, platform, err := a.remote()
	if err != nil {
		return err
	}
	arrowf(a.out, colSuccess, "Pulling states for %s", platform)
	n, err := pullParts(a.ctx, remote, a.store, platform, fs.Args(), a.out)
	if err != nil {
		return err
	}
	arrowf(a.out, colSuccess, "Pulled %d parts", n)
	return nil
}

func (a *app) cmdBrowse(args []string) error {
	fs := a.flagSet("browse")
	if err := a.parse(fs, args); err != nil || fs.NArg() != 0 {
		return a.usage(fs, "browse")
	}
	rows, err := stateMatrix(a.store)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		arrowf(a.out, colWarn, "No recorded states in %s", a.settings.StateDir)
		return nil
	}
	if _, tty := terminalFd(a.out); !tty {
		return renderMatrix(a.out, rows)
	}
	return runBrowser(a.store, rows)
}

func (a *app) cmdVersion(args []string) error {
	fmt.Fprintf(a.out, "kiln %s (built %s)\n", version, buildDate)
	return nil
}
