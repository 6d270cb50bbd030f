package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/robocompute/go-robocompute/util"
	"github.com/robocompute/go-robocompute/yaml"
)

var taskCmd = &cli.Command{
	Name:  "task",
	Usage: "Manage tasks",
	Subcommands: []*cli.Command{
		taskSubmit,
		taskList,
		taskDetail,
		taskCancel,
		taskLogs,
		taskStream,
	},
}

var taskSubmit = &cli.Command{
	Name:  "submit",
	Usage: "Submit a task from a yaml file",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "file",
			Aliases:  []string{"f"},
			Usage:    "task yaml file",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "max-price",
			Usage: "override max_price_per_hour of the file",
		},
	},
	Action: func(cctx *cli.Context) error {
		req, err := yaml.HandlerYaml(cctx.String("file"))
		if err != nil {
			return err
		}
		if p := cctx.String("max-price"); p != "" {
			if req.MaxPricePerHour, err = decimal.NewFromString(p); err != nil {
				return fmt.Errorf("invalid max-price %q: %w", p, err)
			}
		}

		c, err := newClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		sub, err := c.SubmitTask(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("task %s submitted, escrow: %s %s, estimated wait: %s\n", sub.Id, sub.EscrowAmount, sub.Currency, sub.EstimatedWait)
		return nil
	},
}

var taskList = &cli.Command{
	Name:  "list",
	Usage: "List tasks",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "status",
			Usage: "only tasks in this status",
		},
		&cli.IntFlag{
			Name:  "limit",
			Value: 50,
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "--verbose",
			Aliases: []string{"v"},
		},
	},
	Action: func(cctx *cli.Context) error {
		c, err := newClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		list, err := c.ListTasks(ctx, models.ListTasksReq{Status: cctx.String("status"), Limit: cctx.Int("limit")})
		if err != nil {
			return err
		}

		fullFlag := cctx.Bool("verbose")
		var taskData [][]string
		var rowColorList []RowColor
		for i, t := range list.Tasks {
			taskId, provider := t.Id, t.ProviderId
			if !fullFlag {
				taskId = shorten(taskId)
				provider = shorten(provider)
			}
			taskData = append(taskData, []string{
				taskId, t.Name, string(t.Type), string(t.Status), fmt.Sprintf("%d%%", t.Progress),
				provider, t.MaxPricePerHour.String(), t.Cost.String(), t.CreatedAt.Format("2006-01-02 15:04:05"),
			})
			rowColorList = append(rowColorList, RowColor{
				row:    i,
				column: []int{3},
				color:  []tablewriter.Colors{statusColors(t.Status)},
			})
		}

		header := []string{"TASK ID", "NAME", "TYPE", "STATUS", "PROGRESS", "PROVIDER", "MAX PRICE", "COST", "CREATED"}
		fmt.Println("")
		NewVisualTable(header, taskData, rowColorList).Generate()
		fmt.Printf("\n%d of %d task(s)\n", len(list.Tasks), list.Total)
		return nil
	},
}

var taskDetail = &cli.Command{
	Name:      "get",
	Usage:     "Get task detail info",
	ArgsUsage: "[task_id]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("incorrect number of arguments, got %d, missing args: task_id", cctx.NArg())
		}
		c, err := newClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		t, err := c.GetTask(ctx, cctx.Args().First())
		if err != nil {
			return err
		}

		rows := [][]string{
			{"Task ID", t.Id},
			{"Name", t.Name},
			{"Type", string(t.Type)},
			{"Image", t.DockerImage},
			{"Command", strings.Join(t.Command, " ")},
			{"Priority", string(t.Priority)},
			{"Progress", fmt.Sprintf("%d%%", t.Progress)},
			{"Provider", t.ProviderId},
			{"Resource", t.ResourceId},
			{"Max price/h", t.MaxPricePerHour.String() + " " + t.Currency},
			{"Price/h", t.PricePerHour.String()},
			{"Escrow", t.EscrowAmount.String()},
			{"Cost", t.Cost.String()},
			{"Timeout", fmt.Sprintf("%ds", t.TimeoutSeconds)},
		}
		if t.ErrorCode != "" {
			rows = append(rows, []string{"Error", t.ErrorCode + ": " + t.ErrorMessage})
		}
		if t.Result != nil {
			rows = append(rows, []string{"Result", t.Result.ResultHash})
		}
		fmt.Printf("Status: %s\n\n", colorStatus(t.Status))
		NewVisualTable([]string{"FIELD", "VALUE"}, rows, nil).Generate()
		return nil
	},
}

var taskCancel = &cli.Command{
	Name:      "cancel",
	Usage:     "Cancel a task and refund its escrow",
	ArgsUsage: "[task_id]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("incorrect number of arguments, got %d, missing args: task_id", cctx.NArg())
		}
		c, err := newClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		t, err := c.CancelTask(ctx, cctx.Args().First())
		if err != nil {
			return err
		}
		fmt.Printf("task %s %s\n", t.Id, colorStatus(t.Status))
		return nil
	},
}

var taskLogs = &cli.Command{
	Name:      "logs",
	Usage:     "Print the last log lines of a task",
	ArgsUsage: "[task_id]",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "lines",
			Value: 100,
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("incorrect number of arguments, got %d, missing args: task_id", cctx.NArg())
		}
		c, err := newClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		out, err := c.TaskLogs(ctx, cctx.Args().First(), cctx.Int("lines"))
		if err != nil {
			return err
		}
		for _, l := range out.Lines {
			fmt.Printf("%s %s\n", color.HiBlackString(l.Timestamp.Format("15:04:05")), l.Line)
		}
		return nil
	},
}

var taskStream = &cli.Command{
	Name:      "stream",
	Usage:     "Follow a task until it finishes",
	ArgsUsage: "[task_id]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("incorrect number of arguments, got %d, missing args: task_id", cctx.NArg())
		}
		c, err := newClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		return c.StreamTask(ctx, cctx.Args().First(), func(evt models.TaskEvent) error {
			switch evt.Type {
			case models.EventLog:
				fmt.Println(evt.Message)
			case models.EventProgress:
				fmt.Printf("progress %d%%\n", evt.Progress)
			default:
				fmt.Printf("[%s] %s %s\n", evt.Type, colorStatus(evt.Status), evt.Message)
			}
			return nil
		})
	},
}

func shorten(id string) string {
	if len(id) <= 14 {
		return id
	}
	return id[:6] + "..." + id[len(id)-5:]
}
