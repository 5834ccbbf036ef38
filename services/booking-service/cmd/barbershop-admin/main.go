package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/barberline/barbershop/libs/config"
	"github.com/barberline/barbershop/libs/db"
	"github.com/barberline/barbershop/libs/runtime"
	"github.com/barberline/barbershop/services/booking-service/internal/accounts"
	"github.com/barberline/barbershop/services/booking-service/internal/availability"
	"github.com/barberline/barbershop/services/booking-service/internal/booking"
	"github.com/barberline/barbershop/services/booking-service/internal/outbox"
	"github.com/barberline/barbershop/services/booking-service/internal/slots"
	"github.com/barberline/barbershop/services/booking-service/internal/storage"
	"github.com/spf13/cobra"
)

// backend is the storage a command runs against. migrate is nil when the store has no
// schema to manage.
type backend struct {
	store   storage.Store
	migrate func(ctx context.Context) (int, error)
	close   func()
}

type opener func(cmd *cobra.Command) (backend, error)

type cli struct {
	open opener
	now  availability.Clock
}

func main() {
	ctx, stop := runtime.SignalContext()
	defer stop()
	if err := newRootCmd(openPostgres, time.Now).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd(open opener, now availability.Clock) *cobra.Command {
	c := &cli{open: open, now: now}
	rootCmd := &cobra.Command{
		Use:          "barbershop-admin",
		Short:        "Operate the barbershop booking database",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("database-url", "", "Postgres URL (defaults to DATABASE_URL)")

	rootCmd.AddCommand(c.migrateCmd())
	rootCmd.AddCommand(c.createAdminCmd())
	rootCmd.AddCommand(c.blockDayCmd())
	rootCmd.AddCommand(c.unblockDayCmd())
	rootCmd.AddCommand(c.slotsCmd())
	return rootCmd
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer b.close()
			if b.migrate == nil {
				return errors.New("this store has no schema to migrate")
			}

			applied, err := b.migrate(cmd.Context())
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		},
	}
}

func (c *cli) createAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			password := config.String("BARBERSHOP_ADMIN_PASSWORD", "")
			if password == "" {
				return fmt.Errorf("BARBERSHOP_ADMIN_PASSWORD is required")
			}

			b, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer b.close()

			svc := accounts.NewService(b.store, "", 0, c.now)
			admin, err := svc.CreateAdmin(cmd.Context(), email, name, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", admin.Email, admin.ID)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Admin email")
	cmd.Flags().String("name", "", "Display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) blockDayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block-day DATE",
		Short: "Close a whole day for bookings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			svc, closeFn, err := c.openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			b, err := svc.BlockDay(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "blocked %s: %s\n", b.Date, b.Reason)
			return nil
		},
	}
	cmd.Flags().String("reason", "", "Reason shown to customers")
	return cmd
}

func (c *cli) unblockDayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock-day DATE",
		Short: "Reopen a blocked day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := c.openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := svc.UnblockDay(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unblocked %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) slotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "slots DATE",
		Short: "Print the available slots of a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := c.openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			day, err := svc.Availability(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if day.Closed {
				fmt.Fprintf(out, "%s is closed: %s\n", day.Date, day.Reason)
				return nil
			}
			labels := make([]string, 0, len(day.Slots))
			for _, s := range day.Slots {
				labels = append(labels, s.String())
			}
			fmt.Fprintf(out, "%s: %s\n", day.Date, strings.Join(labels, ", "))
			return nil
		},
	}
}

func openPostgres(cmd *cobra.Command) (backend, error) {
	url, _ := cmd.Flags().GetString("database-url")
	if url == "" {
		var err error
		if url, err = config.RequiredString("DATABASE_URL"); err != nil {
			return backend{}, err
		}
	}
	pool, err := db.Open(cmd.Context(), url, db.Options{MaxConns: 2})
	if err != nil {
		return backend{}, fmt.Errorf("connect: %w", err)
	}
	store := storage.NewPostgres(pool, outbox.NewRepository(pool))
	return backend{store: store, migrate: store.Migrate, close: pool.Close}, nil
}

// openService builds a booking service with the same catalog and window settings as the
// server, so blocks are validated the same way.
func (c *cli) openService(cmd *cobra.Command) (*booking.Service, func(), error) {
	def := slots.DefaultConfig()
	step, err := config.Minutes("SLOT_STEP_MINUTES", def.Step)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := slots.New(slots.Config{
		First: config.String("SLOT_FIRST", def.First),
		Last:  config.String("SLOT_LAST", def.Last),
		Step:  step,
	})
	if err != nil {
		return nil, nil, err
	}
	loc, err := config.Location("SHOP_TIMEZONE", "UTC")
	if err != nil {
		return nil, nil, err
	}

	b, err := c.open(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := availability.NewResolver(b.store, catalog, availability.Policy{Location: loc}, c.now)
	return booking.NewService(b.store, resolver, logger, booking.Config{}, c.now), b.close, nil
}
