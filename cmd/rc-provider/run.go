package main

import (
	"context"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/urfave/cli/v2"

	"github.com/robocompute/go-robocompute/conf"
	"github.com/robocompute/go-robocompute/internal/agent"
	"github.com/robocompute/go-robocompute/util"
)

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Start the provider node",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "kubeconfig",
			Usage: "kubeconfig for the k8s backend when not running in cluster",
		},
	},
	Action: func(cctx *cli.Context) error {
		logs.GetLogger().Info("Start in provider node mode.")

		node, c, err := loadNode(cctx)
		if err != nil {
			return err
		}
		exec, err := newExecutor(node, cctx.String("kubeconfig"))
		if err != nil {
			return err
		}
		a := agent.New(c, exec, node)

		ctx, cancel := context.WithCancel(context.Background())
		shutdownChan := make(chan struct{})
		done := make(chan error, 1)
		go func() {
			err := a.Run(ctx)
			if err != nil {
				logs.GetLogger().Errorf("provider agent stopped, error: %v", err)
			}
			done <- err
			close(shutdownChan)
		}()

		finishCh := util.MonitorShutdown(shutdownChan,
			util.ShutdownHandler{Component: "provider-agent", StopFunc: func(stopCtx context.Context) error {
				cancel()
				select {
				case <-shutdownChan:
					return nil
				case <-stopCtx.Done():
					return stopCtx.Err()
				}
			}},
		)
		<-finishCh

		select {
		case err := <-done:
			return err
		default:
			return nil
		}
	},
}

func newExecutor(node *conf.ProviderNode, kubeConfig string) (agent.Executor, error) {
	if node.Executor.Backend == "k8s" {
		return agent.NewK8sExecutor(node.Executor.Namespace, kubeConfig)
	}
	return agent.NewDockerExecutor()
}
