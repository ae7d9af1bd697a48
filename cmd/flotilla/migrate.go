package main

import (
	"github.com/quayside/flotilla/pkg/database"
)

const (
	docMigrate = `Apply pending database schema migrations`
)

type optsMigrate struct {
	optsGeneral
	optsDatabase
}

func (c *optsMigrate) Execute(args []string) error {
	log := c.logger()

	db, err := database.NewPostgres(&database.Options{URL: c.url()})
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.Migrate()
	if err != nil {
		return err
	}
	log.Info().Msg("migrations applied")
	return nil
}
