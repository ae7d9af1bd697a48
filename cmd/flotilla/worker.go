package main

import (
	"os"
	"os/signal"

	"github.com/quayside/flotilla/pkg/api"
	"github.com/quayside/flotilla/pkg/database"
	"github.com/quayside/flotilla/pkg/fleet"
	"github.com/quayside/flotilla/pkg/scheduler"
)

const (
	docWorker = `Run flotilla background daemons`
)

type optsWorker struct {
	optsGeneral
	optsDatabase

	ProvisionerURL string `long:"provisioner-url" env:"PROVISIONER_URL" description:"Node provisioner base URL; enables the fleet supervisor"`
	RegistryURL    string `long:"registry-url" env:"REGISTRY_URL" description:"Image registry base URL (v2 API)"`
}

func (c *optsWorker) Execute(args []string) error {
	// This runs the flotilla internal daemons: the expiry monitor, the
	// due-schedule sweep, the retention janitor and (if a provisioner is
	// configured) the fleet supervisor.
	//
	// It serves no API; run the api command for that. Running several workers
	// is safe: the monitor is leader-elected and the supervisor tick is
	// serialized by an advisory lock.
	log := c.logger()

	db, err := database.NewPostgres(&database.Options{URL: c.url()})
	if err != nil {
		return err
	}

	var registry fleet.ImageRegistry
	if c.RegistryURL != "" {
		registry = fleet.NewHTTPRegistry(c.RegistryURL)
	}

	svc, err := api.NewAPI(db, nil, registry, scheduler.OptionsServerDefault(), log)
	if err != nil {
		return err
	}
	defer svc.Close()

	if c.ProvisionerURL != "" {
		supervisor := fleet.NewSupervisor(db, fleet.NewHTTPProvider(c.ProvisionerURL), nil, log)
		go supervisor.Run()
		defer supervisor.Close()
	}

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt)
	<-exit
	return nil
}
