package main

import (
	"context"
	"os"
	_ "time/tzdata"

	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/fiche-cuisine/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		log.WithError(err).Error("fichectl failed")
		os.Exit(1)
	}
}
