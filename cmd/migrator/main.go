package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/app"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/config"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/diff"
	httpserver "github.com/diarrand09/Migration-Mysql-to-Postgre/internal/http"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/logging"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/transfer"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	commands := map[string]func([]string) error{
		"transfer":        transferCmd,
		"update":          updateCmd,
		"delete":          deleteCmd,
		"reset-sequence":  resetSequenceCmd,
		"reset-sequences": resetSequencesCmd,
		"clear-mapping":   clearMappingCmd,
		"status":          statusCmd,
		"order":           orderCmd,
		"compare":         compareCmd,
		"pending-edits":   pendingEditsCmd,
		"serve":           serveCmd,
	}
	run, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %s\n", cmd)
		usage()
		os.Exit(1)
	}
	if err := run(args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`migrator commands:
  transfer         - copy one source row into the destination
  update           - rewrite an already transferred row from its source
  delete           - remove a transferred row from the destination
  reset-sequence   - restart the key sequence of one destination table
  reset-sequences  - restart every key sequence in the destination schema
  clear-mapping    - forget every transferred key of one database table
  status           - show mapped row counts per database and table
  order            - list the tables of a database in dependency order
  compare          - show how a source table differs from the destination
  pending-edits    - list edits not applied to both stores
  serve            - launch the JSON API

Configuration is read from the environment and an optional .env file.
Flags are command specific; run "<cmd> -h" for details.`)
}

type rowFlags struct {
	env      *string
	db       *string
	table    *string
	id       *string
	idColumn *string
	resetSeq *bool
}

func newRowFlags(fs *flag.FlagSet, withReset bool) rowFlags {
	f := rowFlags{
		env:      fs.String("env", ".env", "path to an optional .env file"),
		db:       fs.String("db", "", "source database"),
		table:    fs.String("table", "", "source table"),
		id:       fs.String("id", "", "row key; composite keys as a_b"),
		idColumn: fs.String("id-column", "", "key column when the table has no primary key"),
	}
	if withReset {
		f.resetSeq = fs.Bool("reset", false, "restart the destination sequence first")
	}
	return f
}

func (f rowFlags) request() (transfer.Request, error) {
	if *f.db == "" || *f.table == "" || *f.id == "" {
		return transfer.Request{}, fmt.Errorf("-db, -table and -id are required")
	}
	req := transfer.Request{
		SourceDB:  *f.db,
		Table:     *f.table,
		RowKey:    *f.id,
		KeyColumn: *f.idColumn,
	}
	if f.resetSeq != nil {
		req.ResetSequence = *f.resetSeq
	}
	return req, nil
}

func transferCmd(args []string) error {
	fs := flagSet("transfer")
	f := newRowFlags(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return rowCommand(*f.env, f, func(ctx context.Context, svc *transfer.Service, req transfer.Request) (transfer.Result, error) {
		return svc.Transfer(ctx, req)
	})
}

func updateCmd(args []string) error {
	fs := flagSet("update")
	f := newRowFlags(fs, false)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return rowCommand(*f.env, f, func(ctx context.Context, svc *transfer.Service, req transfer.Request) (transfer.Result, error) {
		return svc.Update(ctx, req)
	})
}

func deleteCmd(args []string) error {
	fs := flagSet("delete")
	f := newRowFlags(fs, false)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return rowCommand(*f.env, f, func(ctx context.Context, svc *transfer.Service, req transfer.Request) (transfer.Result, error) {
		return svc.Delete(ctx, req)
	})
}

func rowCommand(envFile string, f rowFlags, op func(context.Context, *transfer.Service, transfer.Request) (transfer.Result, error)) error {
	req, err := f.request()
	if err != nil {
		return err
	}
	return withService(envFile, func(ctx context.Context, svc *transfer.Service) error {
		res, err := op(ctx, svc, req)
		if err != nil {
			return err
		}
		return printJSON(res)
	})
}

func resetSequenceCmd(args []string) error {
	fs := flagSet("reset-sequence")
	envFile := fs.String("env", ".env", "path to an optional .env file")
	table := fs.String("table", "", "destination table")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *table == "" {
		return fmt.Errorf("-table is required")
	}
	return withService(*envFile, func(ctx context.Context, svc *transfer.Service) error {
		reset, err := svc.ResetSequence(ctx, *table)
		if err != nil {
			return err
		}
		if !reset {
			fmt.Printf("%s has no sequence behind its key\n", *table)
			return nil
		}
		fmt.Printf("sequence of %s restarted at 1\n", *table)
		return nil
	})
}

func resetSequencesCmd(args []string) error {
	fs := flagSet("reset-sequences")
	envFile := fs.String("env", ".env", "path to an optional .env file")
	approve := fs.Bool("approve", false, "skip approval prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*approve {
		if ok, err := promptYes("Every destination sequence restarts at 1. Type YES to proceed: "); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("aborted by user")
		}
	}
	return withService(*envFile, func(ctx context.Context, svc *transfer.Service) error {
		n, err := svc.ResetAllSequences(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d sequences restarted\n", n)
		return nil
	})
}

func clearMappingCmd(args []string) error {
	fs := flagSet("clear-mapping")
	envFile := fs.String("env", ".env", "path to an optional .env file")
	db := fs.String("db", "", "source database")
	table := fs.String("table", "", "source table")
	approve := fs.Bool("approve", false, "skip approval prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *db == "" || *table == "" {
		return fmt.Errorf("-db and -table are required")
	}
	if !*approve {
		prompt := fmt.Sprintf("Every mapping of %s.%s will be forgotten. Type YES to proceed: ", *db, *table)
		if ok, err := promptYes(prompt); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("aborted by user")
		}
	}
	return withService(*envFile, func(ctx context.Context, svc *transfer.Service) error {
		if err := svc.ClearMapping(ctx, *db, *table); err != nil {
			return err
		}
		fmt.Printf("mapping of %s.%s cleared\n", *db, *table)
		return nil
	})
}

func statusCmd(args []string) error {
	fs := flagSet("status")
	envFile := fs.String("env", ".env", "path to an optional .env file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withService(*envFile, func(ctx context.Context, svc *transfer.Service) error {
		counts, err := svc.Status(ctx)
		if err != nil {
			return err
		}
		if len(counts) == 0 {
			fmt.Println("nothing transferred yet")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DATABASE\tTABLE\tROWS")
		for _, c := range counts {
			fmt.Fprintf(w, "%s\t%s\t%d\n", c.Database, c.Table, c.Rows)
		}
		return w.Flush()
	})
}

func orderCmd(args []string) error {
	fs := flagSet("order")
	envFile := fs.String("env", ".env", "path to an optional .env file")
	db := fs.String("db", "", "source database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *db == "" {
		return fmt.Errorf("-db is required")
	}
	return withService(*envFile, func(ctx context.Context, svc *transfer.Service) error {
		tables, err := svc.Tables(ctx, *db)
		if err != nil {
			return err
		}
		for i, t := range tables {
			fmt.Printf("%3d  %s\n", i+1, t)
		}
		return nil
	})
}

func compareCmd(args []string) error {
	fs := flagSet("compare")
	envFile := fs.String("env", ".env", "path to an optional .env file")
	db := fs.String("db", "", "source database")
	table := fs.String("table", "", "source table; every table when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *db == "" {
		return fmt.Errorf("-db is required")
	}
	return withService(*envFile, func(ctx context.Context, svc *transfer.Service) error {
		tables := []string{*table}
		if *table == "" {
			var err error
			if tables, err = svc.Tables(ctx, *db); err != nil {
				return err
			}
		}
		blocked := 0
		for _, t := range tables {
			d, err := svc.Compare(ctx, *db, t)
			if err != nil {
				fmt.Printf("Table %s: %v\n", t, err)
				blocked++
				continue
			}
			fmt.Println(diff.Describe(d))
			if !d.Transferable() {
				blocked++
			}
		}
		if blocked > 0 {
			return fmt.Errorf("%d of %d tables cannot be transferred as is", blocked, len(tables))
		}
		return nil
	})
}

func pendingEditsCmd(args []string) error {
	fs := flagSet("pending-edits")
	envFile := fs.String("env", ".env", "path to an optional .env file")
	limit := fs.Int("limit", 50, "maximum number of edits to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withService(*envFile, func(ctx context.Context, svc *transfer.Service) error {
		edits, err := svc.PendingEdits(ctx, *limit)
		if err != nil {
			return err
		}
		return printJSON(edits)
	})
}

func serveCmd(args []string) error {
	fs := flagSet("serve")
	envFile := fs.String("env", ".env", "path to an optional .env file")
	addr := fs.String("addr", "", "listen address, overrides MIGRATOR_HTTP_ADDR")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.HTTPAddress = *addr
	}
	if err := cfg.RequireSecret(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	nav := httpserver.NewNavigator(cfg.SecretKeyBytes, cfg.CookieSecure)
	fmt.Printf("API listening on %s (databases: %s)\n", cfg.HTTPAddress, strings.Join(cfg.Source.Databases, ", "))
	return httpserver.New(cfg, logger, a.Transfer, nav, a.Metrics).Start(ctx)
}

// withService loads configuration, opens both stores and runs fn with a
// deadline slightly above the per-operation timeout.
func withService(envFile string, fn func(ctx context.Context, svc *transfer.Service) error) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Transfer.OperationTimeout+30*time.Second)
	defer cancel()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Transfer)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func promptYes(prompt string) (bool, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(line), "YES"), nil
}

func flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	return fs
}
