package main

import (
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "docpipeline",
		Usage: "Invoice intake, upload and OCR extraction pipeline",
		Commands: []*cli.Command{
			runCommand,
			migrateCommand,
			tenantsCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("application failed")
	}
}
