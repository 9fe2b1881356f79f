package main

import (
	"encoding/json"
	"os"

	"github.com/urfave/cli/v2"

	"docpipeline/internal/tenant"
)

var tenantsCommand = &cli.Command{
	Name:  "tenants",
	Usage: "Validate the prefix map and print the resolved tenants",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "Prefix map path",
			EnvVars: []string{"PREFIX_MAP_PATH"},
		},
	},
	Action: listTenants,
}

func listTenants(cCtx *cli.Context) error {
	tenants, err := tenant.NewResolver(cCtx.String("file")).Tenants()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tenants)
}
