// Package main is the operator CLI: role assignment, user and review-queue listings, migrations.
package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nexstream/backend/config"
	"github.com/nexstream/backend/internal/models"
	"github.com/nexstream/backend/internal/users"
	"github.com/nexstream/backend/internal/webinars"
	"github.com/nexstream/backend/pkg/database"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	if err := newApp(logger).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

func newApp(logger *zap.Logger) *cli.App {
	return &cli.App{
		Name:  "nexstream-admin",
		Usage: "operator tasks for the webinar platform",
		Commands: []*cli.Command{
			{
				Name:  "promote",
				Usage: "set the role of an existing user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "role", Value: string(models.RoleAdmin), Usage: "student, host or admin"},
				},
				Action: func(c *cli.Context) error { return promote(c, logger) },
			},
			{
				Name:   "users",
				Usage:  "list users and their roles",
				Action: func(c *cli.Context) error { return listUsers(c, logger) },
			},
			{
				Name:   "pending",
				Usage:  "list webinars awaiting review",
				Action: func(c *cli.Context) error { return listPending(c, logger) },
			},
			{
				Name:  "migrate",
				Usage: "apply the database schema",
				Action: func(c *cli.Context) error {
					return withPool(c, logger, func(pool *pgxpool.Pool) error {
						return database.Migrate(c.Context, pool, logger)
					})
				},
			},
		},
	}
}

func withPool(c *cli.Context, logger *zap.Logger, fn func(pool *pgxpool.Pool) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := database.NewPostgresPool(c.Context, cfg.Database.DSN(), logger)
	if err != nil {
		return errors.Wrap(err, "connect database")
	}
	defer pool.Close()
	return fn(pool)
}

func parseRole(s string) (models.Role, error) {
	switch r := models.Role(strings.ToLower(strings.TrimSpace(s))); r {
	case models.RoleStudent, models.RoleHost, models.RoleAdmin:
		return r, nil
	}
	return "", errors.Errorf("unknown role %q", s)
}

func promote(c *cli.Context, logger *zap.Logger) error {
	role, err := parseRole(c.String("role"))
	if err != nil {
		return err
	}
	email := strings.ToLower(strings.TrimSpace(c.String("email")))
	return withPool(c, logger, func(pool *pgxpool.Pool) error {
		u, err := users.NewRepository(pool).SetRole(c.Context, email, role)
		if err != nil {
			return err
		}
		fmt.Printf("%s is now %s\n", u.Email, u.Role)
		return nil
	})
}

func listUsers(c *cli.Context, logger *zap.Logger) error {
	return withPool(c, logger, func(pool *pgxpool.Pool) error {
		list, err := users.NewRepository(pool).List(c.Context)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "EMAIL\tNAME\tROLE")
		for _, u := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\n", u.Email, u.Name, u.Role)
		}
		return w.Flush()
	})
}

func listPending(c *cli.Context, logger *zap.Logger) error {
	return withPool(c, logger, func(pool *pgxpool.Pool) error {
		list, err := webinars.NewRepository(pool).List(c.Context, webinars.ListFilter{
			Statuses: []models.WebinarStatus{models.WebinarPending},
		})
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tHOST\tSCHEDULED")
		for _, wb := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\n", wb.ID, wb.Title, wb.HostEmail, wb.Date, wb.Time)
		}
		return w.Flush()
	})
}
