package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/srbenoit/mathops-sub032/internal/adapters/localauth"
	"github.com/srbenoit/mathops-sub032/internal/bootstrap"
	"github.com/srbenoit/mathops-sub032/internal/data"
	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	"github.com/srbenoit/mathops-sub032/internal/domain/model"
	"github.com/srbenoit/mathops-sub032/internal/migrate"
	"github.com/srbenoit/mathops-sub032/internal/service"
)

type migrateOptions struct {
	Timeout time.Duration
	Status  bool
}

type reconcileOptions struct {
	StudentID string
	TermID    string
	JSON      bool
}

type setLoginOptions struct {
	Username   string
	UserID     string
	Role       domainauth.Role
	FirstName  string
	LastName   string
	ScreenName string
}

type holdsOptions struct {
	StudentID string
	HoldIDs   []string
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, _, err := connectInfra(&connectInfraOptions{Logger: cmdCtx.Logger, Config: &cmdCtx.Config})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	if opts.Status {
		report, reportErr := migrate.Report(ctx, db)
		if reportErr != nil {
			return fmt.Errorf("migration status: %w", reportErr)
		}
		return printMigrationStatus(cmdCtx.Stdout, report)
	}

	cmdCtx.Logger.Info("running database migrations")
	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}
	cmdCtx.Logger.Info("database migrations complete")
	return nil
}

func printMigrationStatus(w io.Writer, report []migrate.Status) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "VERSION\tAPPLIED\n"); err != nil {
		return err
	}
	for _, st := range report {
		applied := "pending"
		if st.AppliedAt != nil {
			applied = st.AppliedAt.UTC().Format(time.RFC3339)
		}
		if err := writef(tw, "%s\t%s\n", st.Version, applied); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runReconcile(cmdCtx *commandContext, args []string) error {
	opts, err := parseReconcileFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, redisClient, err := connectInfra(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeInfra(db, redisClient); closeErr != nil {
			cmdCtx.Logger.Warn("close infrastructure failed", "error", closeErr)
		}
	}()

	reconciler, err := bootstrap.NewReconciler(&bootstrap.ServiceDeps{
		Config:      &cmdCtx.Config,
		DB:          db,
		RedisClient: redisClient,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	if probeErr := reconciler.ProbeSource(ctx); probeErr != nil {
		cmdCtx.Logger.Warn("live source probe failed", "error", probeErr)
	}

	report, err := reconciler.Reconcile(ctx, service.ReconcileRequest{StudentID: opts.StudentID, TermID: opts.TermID})
	if report != nil {
		if printErr := printReport(cmdCtx.Stdout, report, opts.JSON); printErr != nil {
			return errors.Join(err, printErr)
		}
	}
	return err
}

func printReport(w io.Writer, report *service.ReconcileReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return writef(w, "%s", report.String())
}

func runHashPassword(cmdCtx *commandContext, _ []string) error {
	password, err := readSecret(cmdCtx.Stdin)
	if err != nil {
		return err
	}
	hash, err := localauth.HashPassword(password, localauth.HashParams{})
	if err != nil {
		return err
	}
	return writef(cmdCtx.Stdout, "%s\n", hash)
}

func runSetLogin(cmdCtx *commandContext, args []string) error {
	opts, err := parseSetLoginFlags(args)
	if err != nil {
		return err
	}
	password, err := readSecret(cmdCtx.Stdin)
	if err != nil {
		return err
	}
	hash, err := localauth.HashPassword(password, localauth.HashParams{})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, _, err := connectInfra(&connectInfraOptions{Logger: cmdCtx.Logger, Config: &cmdCtx.Config})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	if err := data.NewUserLoginRepo(db).Upsert(ctx, &model.UserLogin{
		Username:     opts.Username,
		UserID:       opts.UserID,
		PasswordHash: hash,
		Role:         opts.Role.Abbrev(),
		FirstName:    opts.FirstName,
		LastName:     opts.LastName,
		ScreenName:   opts.ScreenName,
	}); err != nil {
		return fmt.Errorf("save login: %w", err)
	}
	cmdCtx.Logger.Info("login saved", "username", strings.ToLower(opts.Username), "user_id", opts.UserID, "role", opts.Role)
	return nil
}

func runListHolds(cmdCtx *commandContext, args []string) error {
	opts, err := parseHoldsFlags("list-holds", args, false)
	if err != nil {
		return err
	}
	return withHoldService(cmdCtx, func(ctx context.Context, holds *service.HoldService) error {
		list, err := holds.ListHolds(ctx, opts.StudentID)
		if err != nil {
			return err
		}
		return printHolds(cmdCtx.Stdout, list)
	})
}

func runClearHolds(cmdCtx *commandContext, args []string) error {
	opts, err := parseHoldsFlags("clear-holds", args, true)
	if err != nil {
		return err
	}
	return withHoldService(cmdCtx, func(ctx context.Context, holds *service.HoldService) error {
		removed, err := holds.ClearHolds(ctx, opts.StudentID, opts.HoldIDs...)
		if err != nil {
			return err
		}
		if len(removed) == 0 {
			return writef(cmdCtx.Stdout, "no matching holds on %s\n", opts.StudentID)
		}
		return writef(cmdCtx.Stdout, "removed %s from %s\n", strings.Join(removed, ", "), opts.StudentID)
	})
}

func withHoldService(cmdCtx *commandContext, fn func(context.Context, *service.HoldService) error) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, _, err := connectInfra(&connectInfraOptions{Logger: cmdCtx.Logger, Config: &cmdCtx.Config})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	return fn(ctx, service.NewHoldService(service.HoldServiceOptions{
		Store:  data.NewMirrorStore(db),
		Logger: cmdCtx.Logger,
	}))
}

func printHolds(w io.Writer, holds []*model.Hold) error {
	if len(holds) == 0 {
		return writef(w, "(no holds)\n")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "HOLD\tSEVERITY\tTIMES\tAPPLIED\n"); err != nil {
		return err
	}
	for _, h := range holds {
		if err := writef(tw, "%s\t%s\t%d\t%s\n",
			h.HoldID, h.Severity, h.TimesApplied, h.DateApplied.Format(time.DateOnly)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// readSecret reads the first line of r. Trailing whitespace is dropped.
func readSecret(r io.Reader) (string, error) {
	if r == nil {
		return "", errors.New("no input")
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, " \t\r\n")
	if line == "" {
		return "", errors.New("password is required on stdin")
	}
	return line, nil
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{Timeout: defaultMigrationTimeout}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete")
	fs.BoolVar(&opts.Status, "status", false, "List applied and pending migrations without applying them")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseReconcileFlags(args []string) (reconcileOptions, error) {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts reconcileOptions
	fs.StringVar(&opts.StudentID, "student", "", "Student ID to reconcile (required)")
	fs.StringVar(&opts.TermID, "term", "", "Term ID (defaults to the active term)")
	fs.BoolVar(&opts.JSON, "json", false, "Print the report as JSON")

	if err := fs.Parse(args); err != nil {
		return reconcileOptions{}, err
	}
	if opts.StudentID == "" && fs.NArg() > 0 {
		opts.StudentID = fs.Arg(0)
	}
	opts.StudentID = strings.TrimSpace(opts.StudentID)
	if opts.StudentID == "" {
		return reconcileOptions{}, errors.New("--student is required")
	}
	return opts, nil
}

func parseSetLoginFlags(args []string) (setLoginOptions, error) {
	fs := flag.NewFlagSet("set-login", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		opts setLoginOptions
		role string
	)
	fs.StringVar(&opts.Username, "username", "", "Login name (required)")
	fs.StringVar(&opts.UserID, "user-id", "", "User ID the login resolves to (required)")
	fs.StringVar(&role, "role", "student", "Role name or abbreviation")
	fs.StringVar(&opts.FirstName, "first", "", "First name")
	fs.StringVar(&opts.LastName, "last", "", "Last name")
	fs.StringVar(&opts.ScreenName, "screen-name", "", "Screen name")

	if err := fs.Parse(args); err != nil {
		return setLoginOptions{}, err
	}
	if strings.TrimSpace(opts.Username) == "" || strings.TrimSpace(opts.UserID) == "" {
		return setLoginOptions{}, errors.New("--username and --user-id are required")
	}
	parsed, err := domainauth.ParseRole(role)
	if err != nil {
		return setLoginOptions{}, fmt.Errorf("--role: %w", err)
	}
	opts.Role = parsed
	return opts, nil
}

func parseHoldsFlags(name string, args []string, needHolds bool) (holdsOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		opts  holdsOptions
		holds string
	)
	fs.StringVar(&opts.StudentID, "student", "", "Student ID (required)")
	if needHolds {
		fs.StringVar(&holds, "holds", "", "Comma-separated hold IDs to remove (required)")
	}

	if err := fs.Parse(args); err != nil {
		return holdsOptions{}, err
	}
	opts.StudentID = strings.TrimSpace(opts.StudentID)
	if opts.StudentID == "" {
		return holdsOptions{}, errors.New("--student is required")
	}
	for _, id := range strings.Split(holds, ",") {
		if id = strings.TrimSpace(id); id != "" {
			opts.HoldIDs = append(opts.HoldIDs, id)
		}
	}
	if needHolds && len(opts.HoldIDs) == 0 {
		return holdsOptions{}, errors.New("--holds is required")
	}
	return opts, nil
}
