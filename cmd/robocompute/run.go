package main

import (
	"strconv"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/urfave/cli/v2"

	"github.com/robocompute/go-robocompute/internal/initializer"
	"github.com/robocompute/go-robocompute/util"
)

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Start the marketplace server",
	Action: func(cctx *cli.Context) error {
		logs.GetLogger().Info("Start in marketplace mode.")

		node, err := initializer.ProjectInit(repoPath(cctx))
		if err != nil {
			return err
		}
		node.Start()

		c := node.Config
		shutdownChan := make(chan struct{})
		httpStopper, err := util.ServeHttp(node.Server.Router(), "robocompute-api", ":"+strconv.Itoa(c.API.Port), c.TLS.CrtFile, c.TLS.KeyFile)
		if err != nil {
			node.Close()
			return err
		}

		finishCh := util.MonitorShutdown(shutdownChan,
			util.ShutdownHandler{Component: "robocompute-api", StopFunc: httpStopper},
			util.ShutdownHandler{Component: "marketplace", StopFunc: node.Stop},
		)
		<-finishCh

		return nil
	},
}
