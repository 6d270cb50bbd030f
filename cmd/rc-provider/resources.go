package main

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/robocompute/go-robocompute/internal/agent"
	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/robocompute/go-robocompute/util"
)

var resourcesCmd = &cli.Command{
	Name:  "resources",
	Usage: "Manage the resources of this provider",
	Subcommands: []*cli.Command{
		resourcesList,
		resourcesRegister,
		resourcesDetect,
	},
}

var resourcesList = &cli.Command{
	Name:  "list",
	Usage: "List registered resources",
	Action: func(cctx *cli.Context) error {
		node, c, err := loadNode(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		list, err := c.ListResources(ctx, node.Provider.ProviderId, "", "")
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(cctx.App.Writer)
		table.SetHeader([]string{"RESOURCE", "TYPE", "MODEL", "PRICE /H", "STATUS", "TASK"})
		table.SetBorder(false)
		for _, r := range list.Resources {
			row := []string{r.Id, string(r.ResourceType), r.Specifications.Model, r.Pricing.PerHour.String(), string(r.Status), r.ActiveTaskId}
			statusColor := tablewriter.Colors{tablewriter.Bold, tablewriter.FgGreenColor}
			if r.Status != models.ResourceAvailable {
				statusColor = tablewriter.Colors{tablewriter.Bold, tablewriter.FgYellowColor}
			}
			table.Rich(row, []tablewriter.Colors{{}, {}, {}, {}, statusColor, {}})
		}
		table.Render()
		return nil
	},
}

var resourcesRegister = &cli.Command{
	Name:  "register",
	Usage: "Register the resources of provider.toml that are not registered yet",
	Action: func(cctx *cli.Context) error {
		node, c, err := loadNode(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		created, err := agent.New(c, nil, node).RegisterResources(ctx)
		for _, r := range created {
			fmt.Printf("registered %s %s %s\n", r.Id, r.ResourceType, r.Specifications.Model)
		}
		if err != nil {
			return err
		}
		if len(created) == 0 {
			fmt.Println("all configured resources are registered")
		}
		return nil
	},
}

var statusCmd = &cli.Command{
	Name:  "status",
	Usage: "Show provider status and stake",
	Action: func(cctx *cli.Context) error {
		node, c, err := loadNode(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		st, err := c.ProviderStatus(ctx, node.Provider.ProviderId)
		if err != nil {
			return err
		}
		stake, err := c.StakingStatus(ctx, node.Provider.ProviderId)
		if err != nil {
			return err
		}
		fmt.Printf("provider: %s\nstatus: %s\nlast heartbeat: %s\nactive tasks: %d\nresources: %d\nstaked: %s %s (minimum %s)\neligible: %t\n",
			st.ProviderId, st.Status, st.LastHeartbeat.Format("2006-01-02 15:04:05"), st.ActiveTasks, st.ResourcesTotal,
			stake.StakedAmount, stake.Currency, stake.MinimumRequired, st.Eligible)
		return nil
	},
}

var resourcesDetect = &cli.Command{
	Name:  "detect",
	Usage: "Show free cluster capacity as provider.toml resource entries",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "kubeconfig",
			Usage: "kubeconfig when not running in cluster",
		},
	},
	Action: func(cctx *cli.Context) error {
		node, _, err := loadNode(cctx)
		if err != nil {
			return err
		}
		k, err := agent.NewK8sExecutor(node.Executor.Namespace, cctx.String("kubeconfig"))
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		caps, err := k.Capacity(ctx)
		if err != nil {
			return err
		}
		for _, c := range caps {
			typ := "cpu"
			if c.GpuFree > 0 {
				typ = "gpu"
			}
			fmt.Printf("# node %s, %d/%d gpu free\n", c.Name, c.GpuFree, c.GpuTotal)
			fmt.Printf("[[Resource]]\nType = %q\nModel = %q\nCpuCores = %d\nRamGb = %d\nStorageGb = %d\nPricePerHour = \"\"\n\n",
				typ, c.GpuModel, c.CpuFree, c.MemFreeGb, c.StorageFree)
		}
		return nil
	},
}
