package main

import (
	"chatcore/backend/internal/database"
	"chatcore/backend/internal/delivery"
	"chatcore/backend/internal/membership"
	"chatcore/backend/internal/messaging"
	"chatcore/backend/internal/presence"
	"chatcore/backend/internal/storage"
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
)

var dbFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "db-driver",
		Value:   "postgres",
		Usage:   "Database driver (postgres or sqlite)",
		Sources: cli.EnvVars("DB_DRIVER"),
	},
	&cli.StringFlag{
		Name:    "db-dsn",
		Value:   "host=localhost user=user password=password dbname=chatcore port=5432 sslmode=disable",
		Usage:   "Database connection string",
		Sources: cli.EnvVars("DB_DSN"),
	},
	&cli.StringFlag{
		Name:    "log-level",
		Value:   "warn",
		Usage:   "SQL log level (silent, error, warn, info)",
		Sources: cli.EnvVars("LOG_LEVEL"),
	},
}

// openStorage connects without Redis; commands that need it attach a client.
func openStorage(c *cli.Command) (*storage.Service, error) {
	db, err := database.Open(database.Options{
		Driver:   c.String("db-driver"),
		DSN:      c.String("db-dsn"),
		LogLevel: c.String("log-level"),
	})
	if err != nil {
		return nil, err
	}
	return storage.NewStorageService(db, nil), nil
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update all tables",
		Action: func(_ context.Context, c *cli.Command) error {
			s, err := openStorage(c)
			if err != nil {
				return err
			}
			if err := database.Migrate(s.DB); err != nil {
				return err
			}
			fmt.Println("Migrations complete.")
			return nil
		},
	}
}

func archiveEmptyCmd() *cli.Command {
	return &cli.Command{
		Name:  "archive-empty",
		Usage: "Archive sessions that have no participants",
		Action: func(ctx context.Context, c *cli.Command) error {
			s, err := openStorage(c)
			if err != nil {
				return err
			}
			n, err := membership.NewService(s, nil).ArchiveEmptySessions(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Archived %d sessions.\n", n)
			return nil
		},
	}
}

func sweepPresenceCmd() *cli.Command {
	return &cli.Command{
		Name:  "sweep-presence",
		Usage: "Mark users whose heartbeat expired as offline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "redis-addr",
				Value:   "localhost:6380",
				Usage:   "Redis address",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				Sources: cli.EnvVars("REDIS_PASSWORD"),
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			s, err := openStorage(c)
			if err != nil {
				return err
			}
			s.Redis = redis.NewClient(&redis.Options{
				Addr:     c.String("redis-addr"),
				Password: c.String("redis-password"),
			})
			defer s.Redis.Close()

			n, err := presence.NewService(s, time.Minute).Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Marked %d users offline.\n", n)
			return nil
		},
	}
}

func verifyCmd() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Report stored messages that break delivery or reply invariants",
		Action: func(ctx context.Context, c *cli.Command) error {
			s, err := openStorage(c)
			if err != nil {
				return err
			}
			report, err := messaging.NewService(s, nil).VerifyIntegrity(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("read but not delivered:  %d\n", report.ReadNotDelivered)
			fmt.Printf("dangling replies:        %d\n", report.DanglingReplies)
			fmt.Printf("cross-session replies:   %d\n", report.CrossSession)
			fmt.Printf("replies not after parent: %d\n", report.ReplyNotNewer)
			if !report.OK() {
				return cli.Exit("integrity violations found", 2)
			}
			fmt.Println("OK")
			return nil
		},
	}
}

func repairDeliveryCmd() *cli.Command {
	return &cli.Command{
		Name:  "repair-delivery",
		Usage: "Set Delivered on messages that are read but not delivered",
		Action: func(ctx context.Context, c *cli.Command) error {
			s, err := openStorage(c)
			if err != nil {
				return err
			}
			n, err := delivery.NewService(s, nil).RepairInvalid(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Repaired %d messages.\n", n)
			return nil
		},
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("WARN: [Admin] .env file not loaded, relying on environment")
	}

	cmd := &cli.Command{
		Name:  "admin",
		Usage: "chatcore maintenance commands",
		Flags: dbFlags,
		Commands: []*cli.Command{
			migrateCmd(),
			archiveEmptyCmd(),
			sweepPresenceCmd(),
			verifyCmd(),
			repairDeliveryCmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
