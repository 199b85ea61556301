// Command seed loads a YAML inventory fixture into the configured store
// and prints bearer tokens for the fixture's actors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chathuwa-whiz/schoolbus/internal/config"
	"github.com/chathuwa-whiz/schoolbus/internal/http-server/middleware/auth"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/internal/storage/sqldb"
	"github.com/chathuwa-whiz/schoolbus/pkg/logger/handlers/slogpretty"
	"github.com/chathuwa-whiz/schoolbus/pkg/logger/sl"
	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

type fixture struct {
	Buses []struct {
		ID        string `yaml:"id"`
		BusNumber string `yaml:"bus_number"`
		Status    string `yaml:"status"`
	} `yaml:"buses"`
	Routes []struct {
		ID          string  `yaml:"id"`
		RouteNumber string  `yaml:"route_number"`
		Name        string  `yaml:"name"`
		BusID       *string `yaml:"bus_id"`
		DriverID    *string `yaml:"driver_id"`
		IsActive    bool    `yaml:"is_active"`
	} `yaml:"routes"`
	Children []struct {
		ID              string  `yaml:"id"`
		ParentID        string  `yaml:"parent_id"`
		FirstName       string  `yaml:"first_name"`
		LastName        string  `yaml:"last_name"`
		RouteID         *string `yaml:"route_id"`
		PickupLocation  string  `yaml:"pickup_location"`
		DropoffLocation string  `yaml:"dropoff_location"`
	} `yaml:"children"`
	Actors []struct {
		ID   string `yaml:"id"`
		Role string `yaml:"role"`
	} `yaml:"actors"`
}

func main() {
	path := flag.String("fixture", "./config/seed.yaml", "path to the YAML fixture")
	ttl := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed tokens")
	flag.Parse()

	cfg := config.MustLoad()

	opts := slogpretty.PrettyHandlerOptions{SlogOpts: &slog.HandlerOptions{Level: slog.LevelInfo}}
	log := slog.New(opts.NewPrettyHandler(os.Stderr))

	fx, err := readFixture(*path)
	if err != nil {
		log.Error("Failed to read fixture", sl.Err(err))
		os.Exit(1)
	}

	storage, err := sqldb.New(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		log.Error("Failed to init storage", sl.Err(err))
		os.Exit(1)
	}
	defer storage.Close()

	if err := load(context.Background(), log, storage, fx); err != nil {
		log.Error("Failed to load fixture", sl.Err(err))
		os.Exit(1)
	}

	for _, a := range fx.Actors {
		token, err := auth.IssueToken([]byte(cfg.Auth.JWTSecret), models.Actor{ID: a.ID, Role: models.Role(a.Role)}, *ttl)
		if err != nil {
			log.Error("Failed to issue token", slog.String("actor", a.ID), sl.Err(err))
			os.Exit(1)
		}
		fmt.Printf("%s\t%s\t%s\n", a.ID, a.Role, token)
	}
}

func readFixture(path string) (*fixture, error) {
	const op = "seed.readFixture"

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var fx fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &fx, nil
}

// load inserts the fixture. Rows that already exist are kept as they are,
// so the command can be rerun.
func load(ctx context.Context, log *slog.Logger, s *sqldb.Storage, fx *fixture) error {
	const op = "seed.load"

	var inserted, skipped int

	count := func(err error) error {
		switch {
		case err == nil:
			inserted++
		case errors.Is(err, response.ErrConflict):
			skipped++
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	for _, b := range fx.Buses {
		if err := count(s.InsertBus(ctx, models.Bus{ID: b.ID, BusNumber: b.BusNumber, Status: b.Status})); err != nil {
			return err
		}
	}

	for _, r := range fx.Routes {
		if err := count(s.InsertRoute(ctx, models.Route{
			ID:          r.ID,
			RouteNumber: r.RouteNumber,
			Name:        r.Name,
			BusID:       r.BusID,
			DriverID:    r.DriverID,
			IsActive:    r.IsActive,
		})); err != nil {
			return err
		}
	}

	for _, c := range fx.Children {
		if err := count(s.InsertChild(ctx, models.Child{
			ID:              c.ID,
			ParentID:        c.ParentID,
			FirstName:       c.FirstName,
			LastName:        c.LastName,
			RouteID:         c.RouteID,
			PickupLocation:  c.PickupLocation,
			DropoffLocation: c.DropoffLocation,
		})); err != nil {
			return err
		}
	}

	log.Info("Fixture loaded", slog.Int("inserted", inserted), slog.Int("skipped", skipped))

	return nil
}
