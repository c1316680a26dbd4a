// register-maintenance runs one-off jobs against the register tables:
//
//	seed --org <uuid>                                  install default payment methods and expense category
//	rederive --shop <uuid> --from <date> --to <date>   report summaries that disagree with their line items
//	user --org <uuid> --email <addr> --name <name>     provision a profile with a password
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"trfc-backend/internal/cache"
	"trfc-backend/internal/config"
	"trfc-backend/internal/db"
	"trfc-backend/internal/domain"
	"trfc-backend/internal/register"
	"trfc-backend/internal/repository"
	"trfc-backend/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return errors.New("missing command")
	}
	cmd, rest := args[0], args[1:]

	cfg, err := config.LoadTool()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "seed":
		return runSeed(ctx, cfg, logger, rest)
	case "rederive":
		return runRederive(ctx, cfg, logger, rest)
	case "user":
		return runUser(ctx, cfg, logger, rest)
	case "help", "-h", "--help":
		printUsage()
		return nil
	}
	printUsage()
	return fmt.Errorf("unknown command %q", cmd)
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: register-maintenance <command> [flags]

Commands:
  seed       install default payment methods and expense category for an org
  rederive   compare stored day summaries with their line items, optionally repair
  user       provision a login profile

Run "register-maintenance <command> --help" for flags.
`)
}

func parseFlags(fs *pflag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	if extra := fs.Args(); len(extra) > 0 {
		return false, fmt.Errorf("unexpected argument: %s", extra[0])
	}
	return true, nil
}

func runSeed(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	var org string
	fs := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	fs.StringVar(&org, "org", "", "organization id (uuid)")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	orgID, err := uuid.Parse(org)
	if err != nil {
		return fmt.Errorf("--org: %w", err)
	}

	pg, err := db.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := (repository.OrgSeeder{DB: pg}).SeedDefaults(ctx, orgID); err != nil {
		return err
	}
	logger.Info("org defaults seeded", "org", orgID)
	return nil
}

func runRederive(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	var (
		shop, from, to string
		apply          bool
	)
	fs := pflag.NewFlagSet("rederive", pflag.ContinueOnError)
	fs.StringVar(&shop, "shop", "", "shop id (uuid)")
	fs.StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	fs.StringVar(&to, "to", "", "last day, YYYY-MM-DD (default: today)")
	fs.BoolVar(&apply, "apply", false, "rewrite drifted summaries in one transaction")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	shopID, err := uuid.Parse(shop)
	if err != nil {
		return fmt.Errorf("--shop: %w", err)
	}
	start, end, err := parseRange(from, to)
	if err != nil {
		return err
	}

	pg, err := db.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer pg.Close()

	engine := &register.Engine{
		Store:  repository.RegisterRepository{DB: pg},
		Users:  repository.UserRepository{DB: pg},
		Cache:  cache.Noop{},
		Logger: logger,
	}
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable; cached days will expire on their own", "err", err)
		} else {
			defer rdb.Close()
			engine.Cache = cache.NewRedisCache(rdb, cfg.RegisterCacheTTL)
		}
	}

	drifts, err := engine.Rederive(ctx, shopID, start, end, apply)
	if err != nil {
		return err
	}
	held := 0
	for _, d := range drifts {
		fmt.Println(formatDrift(d))
		if d.Held {
			held++
		}
	}
	verb := "found"
	if apply {
		verb = "repaired"
	}
	fmt.Printf("%s %d drifted day(s) between %s and %s\n", verb, len(drifts)-held, start, end)
	if held > 0 {
		fmt.Printf("%d verified or locked day(s) left as stored\n", held)
	}
	return nil
}

func runUser(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	var org, email, name, role, roleName string
	fs := pflag.NewFlagSet("user", pflag.ContinueOnError)
	fs.StringVar(&org, "org", "", "organization id (uuid)")
	fs.StringVar(&email, "email", "", "login email")
	fs.StringVar(&name, "name", "", "display name")
	fs.StringVar(&role, "role", string(domain.RoleManager), "admin, manager or staff")
	fs.StringVar(&roleName, "role-name", "", "role label shown in activity logs")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	orgID, err := uuid.Parse(org)
	if err != nil {
		return fmt.Errorf("--org: %w", err)
	}
	if email == "" || name == "" {
		return errors.New("--email and --name are required")
	}
	switch domain.UserRole(role) {
	case domain.RoleAdmin, domain.RoleManager, domain.RoleStaff:
	default:
		return fmt.Errorf("--role: unknown role %q", role)
	}
	password := os.Getenv("REGISTER_USER_PASSWORD")
	if password == "" {
		return errors.New("REGISTER_USER_PASSWORD must hold the initial password")
	}
	hash, err := service.HashPassword(password)
	if err != nil {
		return err
	}

	pg, err := db.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer pg.Close()

	user, err := repository.UserRepository{DB: pg}.Create(ctx, repository.CreateUserParams{
		OrgID:        &orgID,
		Name:         name,
		Email:        strings.ToLower(email),
		Role:         domain.UserRole(role),
		RoleName:     roleName,
		PasswordHash: &hash,
	})
	if err != nil {
		if repository.IsDuplicate(err) {
			return fmt.Errorf("email %s already used", email)
		}
		return err
	}
	logger.Info("user created", "id", user.ID, "org", orgID, "role", user.Role)
	return nil
}

func parseRange(from, to string) (register.Date, register.Date, error) {
	if from == "" {
		return register.Date{}, register.Date{}, errors.New("--from is required")
	}
	start, err := register.ParseDate(from)
	if err != nil {
		return register.Date{}, register.Date{}, fmt.Errorf("--from: %w", err)
	}
	_, end := register.DefaultRange(timeNow())
	if to != "" {
		if end, err = register.ParseDate(to); err != nil {
			return register.Date{}, register.Date{}, fmt.Errorf("--to: %w", err)
		}
	}
	if end.Before(start.Time) {
		return register.Date{}, register.Date{}, errors.New("--to is before --from")
	}
	return start, end, nil
}

func formatDrift(d register.Drift) string {
	names := make([]string, 0, len(d.Fields))
	for name := range d.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		f := d.Fields[name]
		parts = append(parts, fmt.Sprintf("%s %s -> %s", name, f.Stored.StringFixed(2), f.Derived.StringFixed(2)))
	}
	line := fmt.Sprintf("%s  %s", d.LogDate, strings.Join(parts, ", "))
	if d.Held {
		line += fmt.Sprintf("  (%s, not repaired)", d.Stored.Status)
	}
	return line
}
