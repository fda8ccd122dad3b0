package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/uconnect/uconnect-ledger/config"
	"github.com/uconnect/uconnect-ledger/internal/bootstrap"
	"github.com/uconnect/uconnect-ledger/internal/domain/activity"
	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
	"github.com/uconnect/uconnect-ledger/internal/infrastructure/persistence/postgres"
	"github.com/uconnect/uconnect-ledger/pkg/logger"
	"github.com/uconnect/uconnect-ledger/pkg/timeutil"
)

// ErrInconsistent is returned by reconcile when the ledger and the stored
// totals disagree, so scripts get a non-zero exit.
var ErrInconsistent = errors.New("ledger is inconsistent")

// cli carries the persistent flags shared by every subcommand.
type cli struct {
	configPath string
	driver     string
	verbose    bool
	out        io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "xpctl",
		Short:         "Administer the XP ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "config file (default: ./config/config.yaml)")
	pf.StringVar(&c.driver, "driver", "", "override storage.driver (memory, sqlite, badger, postgres)")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		c.migrateCmd(),
		c.registerCmd(),
		c.recordCmd(),
		c.studyCmd(),
		c.sleepCmd(),
		c.attendCmd(),
		c.rankingCmd(),
		c.profileCmd(),
		c.historyCmd(),
		c.reconcileCmd(),
	)
	return root
}

// ─────────────────────────────────────────────────────────────────────────────
// Setup
// ─────────────────────────────────────────────────────────────────────────────

func (c *cli) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.driver != "" {
		cfg.Storage.Driver = c.driver
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *cli) logger(cfg *config.Config) *logger.Logger {
	obs := cfg.Observability
	obs.LogFormat = string(logger.FormatConsole)
	obs.LogLevel = "warn"
	if c.verbose {
		obs.LogLevel = "debug"
	}
	return bootstrap.NewLogger(obs).With(logger.Component("xpctl"))
}

// withApp assembles the application for one command and closes it after.
func (c *cli) withApp(cmd *cobra.Command, fn func(app *bootstrap.App) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	app, err := bootstrap.New(cmd.Context(), cfg, c.logger(cfg))
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ─────────────────────────────────────────────────────────────────────────────
// migrate
// ─────────────────────────────────────────────────────────────────────────────

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the storage schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			store, err := bootstrap.OpenStore(cmd.Context(), cfg.Storage, c.logger(cfg))
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Fprintf(c.out, "%s schema is up to date\n", store.Name())
			return nil
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration (postgres only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withPostgres(cmd, func(s *postgres.Store) error {
				if err := s.Migrator().Rollback(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(c.out, "rolled back the last migration")
				return nil
			})
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied (postgres only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withPostgres(cmd, func(s *postgres.Store) error {
				migrations, err := s.Migrator().Status(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
				for _, m := range migrations {
					applied := "no"
					if m.IsApplied {
						applied = m.AppliedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\n", m.Version, m.Name, applied)
				}
				return tw.Flush()
			})
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

// withPostgres opens the postgres store without migrating it.
func (c *cli) withPostgres(cmd *cobra.Command, fn func(s *postgres.Store) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != config.DriverPostgres {
		return fmt.Errorf("driver %s migrates automatically on open", cfg.Storage.Driver)
	}
	pc := postgres.DefaultConfig(cfg.Storage.Postgres.URL)
	s, err := postgres.Open(cmd.Context(), pc, c.logger(cfg))
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// ─────────────────────────────────────────────────────────────────────────────
// writes
// ─────────────────────────────────────────────────────────────────────────────

func (c *cli) registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <user-id> <display-name>",
		Short: "Register a user with 0 XP",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(app *bootstrap.App) error {
				p, err := app.Writer.RegisterUser(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return c.printJSON(p)
			})
		},
	}
}

func (c *cli) recordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "record <user-id> <kind> <xp>",
		Short: "Append a raw XP amount to the ledger",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: xp must be an integer", shared.ErrInvalidAmount)
			}
			return c.withApp(cmd, func(app *bootstrap.App) error {
				res, err := app.Writer.RecordActivity(cmd.Context(), args[0], activity.Kind(args[1]), amount)
				if err != nil {
					return err
				}
				return c.printJSON(res)
			})
		},
	}
}

func (c *cli) studyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "study <user-id> <minutes>",
		Short: "Award XP for a study session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: minutes must be an integer", shared.ErrInvalidInput)
			}
			return c.withApp(cmd, func(app *bootstrap.App) error {
				res, err := app.Awarder.RecordStudy(cmd.Context(), args[0], minutes)
				if err != nil {
					return err
				}
				return c.printJSON(res)
			})
		},
	}
}

func (c *cli) sleepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sleep <user-id> <hours>",
		Short: "Award XP for a night of sleep",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hours, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("%w: hours must be a number", shared.ErrInvalidInput)
			}
			return c.withApp(cmd, func(app *bootstrap.App) error {
				res, err := app.Awarder.RecordSleep(cmd.Context(), args[0], hours)
				if err != nil {
					return err
				}
				return c.printJSON(res)
			})
		},
	}
}

func (c *cli) attendCmd() *cobra.Command {
	var late bool
	cmd := &cobra.Command{
		Use:   "attend <user-id>",
		Short: "Award XP for attending a class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(app *bootstrap.App) error {
				res, err := app.Awarder.RecordAttendance(cmd.Context(), args[0], !late)
				if err != nil {
					return err
				}
				return c.printJSON(res)
			})
		},
	}
	cmd.Flags().BoolVar(&late, "late", false, "the user arrived late")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// reads
// ─────────────────────────────────────────────────────────────────────────────

// windowFlag parses a --window value; empty means the configured default.
func windowFlag(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := timeutil.ParseWindow(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", shared.ErrInvalidWindow, err)
	}
	return d, nil
}

func (c *cli) rankingCmd() *cobra.Command {
	var (
		window string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "ranking",
		Short: "Print the leaderboard for a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := windowFlag(window)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(app *bootstrap.App) error {
				snap, err := app.Ranking.Snapshot(cmd.Context(), d, limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "window %s, %d participants\n", timeutil.FormatWindow(snap.Window), snap.Participants)
				tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RANK\tUSER\tNAME\tXP")
				for _, e := range snap.Entries {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", e.Position.Int(), e.UserID, e.DisplayName, e.XP)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&window, "window", "w", "", "window: weekly, monthly, semester, 30d or a duration")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum entries (0 = default)")
	return cmd
}

func (c *cli) profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile <user-id>",
		Short: "Print a user's total, league and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(app *bootstrap.App) error {
				p, err := app.Profiles.GetProfile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.printJSON(p)
			})
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	var (
		window string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history <user-id>",
		Short: "Print a user's ledger records, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := windowFlag(window)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(app *bootstrap.App) error {
				d, _, err := app.Ranking.Normalize(d, 0)
				if err != nil {
					return err
				}
				h, err := app.Profiles.History(cmd.Context(), args[0], d, limit)
				if err != nil {
					return err
				}
				return c.printJSON(h)
			})
		},
	}
	cmd.Flags().StringVarP(&window, "window", "w", "", "window (default: ranking.default_window)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum records (0 = all)")
	return cmd
}

func (c *cli) reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Check every xp_total against the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(app *bootstrap.App) error {
				report, err := app.Reconciler.Run(cmd.Context())
				if err != nil {
					return err
				}
				if err := c.printJSON(report); err != nil {
					return err
				}
				if !report.Consistent() {
					return ErrInconsistent
				}
				return nil
			})
		},
	}
}
