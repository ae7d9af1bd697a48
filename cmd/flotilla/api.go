package main

import (
	"github.com/quayside/flotilla/pkg/api"
	"github.com/quayside/flotilla/pkg/api/http/server"
	"github.com/quayside/flotilla/pkg/database"
	"github.com/quayside/flotilla/pkg/fleet"
	"github.com/quayside/flotilla/pkg/scheduler"
)

const (
	docAPI = `Run the API server`
)

type optsAPI struct {
	optsGeneral
	optsDatabase

	Addr string `long:"addr" env:"ADDR" description:"Address to bind to" default:"localhost:8100"`

	RegistryURL string `long:"registry-url" env:"REGISTRY_URL" description:"Image registry base URL (v2 API), used to verify rollout images"`
}

func (c *optsAPI) Execute(args []string) error {
	// This runs an API server so that callers can interact with flotilla over HTTP.
	// Configured with OptionsClientDefault it runs none of the background daemons
	// (expiry monitor, schedule sweep, janitor); run the worker command for those.
	log := c.logger()

	db, err := database.NewPostgres(&database.Options{URL: c.url()})
	if err != nil {
		return err
	}

	var registry fleet.ImageRegistry
	if c.RegistryURL != "" {
		registry = fleet.NewHTTPRegistry(c.RegistryURL)
	}

	svc, err := api.NewAPI(db, nil, registry, scheduler.OptionsClientDefault(), log)
	if err != nil {
		return err
	}
	defer svc.Close()

	s := server.NewServer(c.Addr, c.Debug, log)
	return s.ServeForever(svc)
}
