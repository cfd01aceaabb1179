// Command nirmaan is the one-shot command line for the site ledger:
// record entries, read the dashboard figures and sync with the remote.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"nirmaan/internal/cli"
	"nirmaan/internal/config"
	"nirmaan/internal/ledger"
	"nirmaan/internal/log"
	"nirmaan/internal/storage"
)

type app struct {
	cfg   *config.Config
	kv    storage.KV
	store *ledger.Store
	log   *log.Logger
	out   io.Writer
}

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"summary":       {"show totals and partner shares", runSummary},
	"history":       {"list incomes and expenses by day [-q text] [-category c]", runHistory},
	"recent":        {"show the latest activity", runRecent},
	"budget":        {"show spending against category budgets", runBudget},
	"labour-ledger": {"show earned, paid and due per labour [-labour name]", runLabourLedger},
	"add-income":    {"record an income", runAddIncome},
	"add-expense":   {"record an expense", runAddExpense},
	"add-labour":    {"add a labour to the roster", runAddLabour},
	"delete-labour": {"remove a labour and their attendance", runDeleteLabour},
	"attendance":    {"mark or clear attendance, or list a day without -labour", runAttendance},
	"overtime":      {"set overtime hours on a marked day", runOvertime},
	"add-payment":   {"record an advance or full payment", runAddPayment},
	"set-budget":    {"set a category budget", runSetBudget},
	"push":          {"push local data to the remote", runPush},
	"pull":          {"pull remote data into the ledger", runPull},
	"remote":        {"remote set: save the remote endpoint on this device", runRemote},
	"login":         {"sign in a partner", runLogin},
	"logout":        {"sign out", runLogout},
	"passwd":        {"create or reset a partner password", runPasswd},
	"export":        {"write an xlsx report -o file.xlsx", runExport},
	"reset":         {"delete all ledger data on this device", runReset},
}

func main() {
	cli.LoadEnvFile()
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("nirmaan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ephemeral := fs.Bool("ephemeral", false, "keep the ledger in memory only")
	fs.Usage = func() { usage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	name, rest := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		fs.Usage()
		return 2
	}

	cfg := config.Load()
	lc := cfg.LoggerConfig(log.ComponentApp)
	lc.Output = stderr
	logger := log.New(lc)
	log.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	var (
		kv    storage.KV
		store *ledger.Store
	)
	if *ephemeral {
		kv, store = cli.OpenEphemeralStore(ctx, logger)
	} else {
		var err error
		kv, err = storage.NewSQLiteKV(cfg.DBPath)
		if err != nil {
			fmt.Fprintf(stderr, "open local store: %v\n", err)
			return 1
		}
		store = ledger.Open(ctx, kv, ledger.WithLogger(logger))
	}
	defer kv.Close()

	a := &app{cfg: cfg, kv: kv, store: store, log: logger, out: stdout}
	if err := cmd.run(ctx, a, rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return 1
	}
	return 0
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "usage: nirmaan [-ephemeral] <command> [flags]")
	fmt.Fprintln(w, "\ncommands:")
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  %-14s %s\n", n, commands[n].usage)
	}
	fmt.Fprintln(w, "\nflags:")
	fs.PrintDefaults()
}

// newFlags returns a flag set for a subcommand that reports errors
// instead of exiting.
func newFlags(name string, a *app) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func required(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, "-"+pairs[i])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}
