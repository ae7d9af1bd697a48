package main

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/quayside/flotilla/pkg/database"
	"github.com/quayside/flotilla/pkg/scheduler"
)

var (
	setup = &Setup{}
)

type Setup struct {
	db   database.Database
	pool *pgxpool.Pool
	svc  *scheduler.Service
}

func init() {
	// set FLOTILLA_TEST_PG_URL to run these against a live postgres;
	// without it every test here skips
	pgURL := os.Getenv("FLOTILLA_TEST_PG_URL")
	if pgURL == "" {
		return
	}
	fmt.Println("Test Postgres Location:", pgURL)

	dbconn, err := database.NewPostgres(&database.Options{URL: pgURL})
	if err != nil {
		panic(err)
	}
	err = dbconn.Migrate()
	if err != nil {
		panic(err)
	}
	setup.db = dbconn

	// a raw pool for assertions the Database interface doesn't expose
	setup.pool, err = pgxpool.New(context.Background(), pgURL)
	if err != nil {
		panic(err)
	}

	// no background daemons; the tests drive expiry and claims themselves
	svc, err := scheduler.NewService(dbconn, nil, scheduler.OptionsClientDefault(), zerolog.Nop())
	if err != nil {
		panic(err)
	}
	setup.svc = svc
}

func skipWithoutDB(t *testing.T) {
	if setup.db == nil {
		t.Skip("FLOTILLA_TEST_PG_URL not set")
	}
}
