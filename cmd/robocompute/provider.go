package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/robocompute/go-robocompute/constants"
	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/robocompute/go-robocompute/util"
)

var providerCmd = &cli.Command{
	Name:  "provider",
	Usage: "Find providers and manage provider funds",
	Subcommands: []*cli.Command{
		providerSearch,
		providerDetail,
		providerEarnings,
		providerStake,
		providerPayout,
	},
}

var providerSearch = &cli.Command{
	Name:  "search",
	Usage: "Search providers that can serve a workload",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "gpu-memory-min"},
		&cli.IntFlag{Name: "cpu-cores-min"},
		&cli.StringFlag{Name: "max-price"},
		&cli.StringFlag{Name: "location"},
	},
	Action: func(cctx *cli.Context) error {
		q := models.ProviderSearch{
			GpuMemoryMin: cctx.Int("gpu-memory-min"),
			CpuCoresMin:  cctx.Int("cpu-cores-min"),
			Location:     cctx.String("location"),
		}
		if p := cctx.String("max-price"); p != "" {
			price, err := decimal.NewFromString(p)
			if err != nil {
				return fmt.Errorf("invalid max-price %q: %w", p, err)
			}
			q.MaxPrice = price
		}
		c, err := newClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		res, err := c.SearchProviders(ctx, q)
		if err != nil {
			return err
		}
		var data [][]string
		for _, p := range res.Providers {
			var names []string
			for _, r := range p.Resources {
				names = append(names, r.Specifications.Model)
			}
			data = append(data, []string{p.ProviderId, p.Name, p.Location, fmt.Sprintf("%.2f", p.SuccessRate), p.MinPrice.String(), strings.Join(names, ",")})
		}
		NewVisualTable([]string{"PROVIDER", "NAME", "LOCATION", "SUCCESS RATE", "FROM /H", "RESOURCES"}, data, nil).Generate()
		return nil
	},
}

var providerDetail = &cli.Command{
	Name:      "get",
	Usage:     "Get provider detail info",
	ArgsUsage: "[provider_id]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("incorrect number of arguments, got %d, missing args: provider_id", cctx.NArg())
		}
		c, err := newClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		p, err := c.GetProvider(ctx, cctx.Args().First())
		if err != nil {
			return err
		}
		status := color.GreenString(string(p.Status))
		if p.Status != models.ProviderOnline {
			status = color.RedString(string(p.Status))
		}
		fmt.Printf("%s (%s) %s, success rate %.2f\n\n", p.Name, p.Id, status, p.SuccessRate)

		var data [][]string
		for _, r := range p.Resources {
			spec := r.Specifications
			data = append(data, []string{r.Id, string(r.ResourceType), spec.Model, fmt.Sprintf("%d", spec.MemoryGb), fmt.Sprintf("%d", spec.CpuCores), fmt.Sprintf("%d", spec.RamGb), r.Pricing.PerHour.String(), string(r.Status)})
		}
		NewVisualTable([]string{"RESOURCE", "TYPE", "MODEL", "GPU GB", "CPU", "RAM GB", "PRICE /H", "STATUS"}, data, nil).Generate()
		return nil
	},
}

func providerArg(cctx *cli.Context) (string, error) {
	if cctx.NArg() < 1 {
		return "", fmt.Errorf("incorrect number of arguments, got %d, missing args: provider_id", cctx.NArg())
	}
	return cctx.Args().First(), nil
}

var providerEarnings = &cli.Command{
	Name:      "earnings",
	Usage:     "Show provider earnings",
	ArgsUsage: "[provider_id]",
	Action: func(cctx *cli.Context) error {
		pid, err := providerArg(cctx)
		if err != nil {
			return err
		}
		c, err := newClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		e, err := c.Earnings(ctx, pid, models.DateRangeReq{})
		if err != nil {
			return err
		}
		var data [][]string
		for _, cur := range []string{constants.CurrencyUSDC, constants.CurrencyUSDT} {
			data = append(data, []string{cur, e.TotalEarnings[cur].String(), e.FeesWithheld[cur].String(),
				e.AvailableBalance[cur].String(), e.PendingPayouts[cur].String()})
		}
		NewVisualTable([]string{"CURRENCY", "EARNED", "FEES", "AVAILABLE", "PENDING PAYOUTS"}, data, nil).Generate()
		fmt.Printf("\ntasks completed: %d\n", e.TasksCompleted)
		return nil
	},
}

var providerStake = &cli.Command{
	Name:      "stake",
	Usage:     "Show, add or withdraw stake",
	ArgsUsage: "[provider_id] [amount]",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "unstake", Usage: "withdraw the amount instead"},
	},
	Action: func(cctx *cli.Context) error {
		pid, err := providerArg(cctx)
		if err != nil {
			return err
		}
		c, err := newClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()

		var st *models.StakingStatus
		if cctx.NArg() < 2 {
			st, err = c.StakingStatus(ctx, pid)
		} else {
			amount, perr := decimal.NewFromString(cctx.Args().Get(1))
			if perr != nil {
				return fmt.Errorf("invalid amount: %w", perr)
			}
			if cctx.Bool("unstake") {
				st, err = c.Unstake(ctx, pid, models.StakeReq{Amount: amount})
			} else {
				st, err = c.Stake(ctx, pid, models.StakeReq{Amount: amount})
			}
		}
		if err != nil {
			return err
		}
		eligible := color.GreenString("eligible")
		if !st.Eligible {
			eligible = color.RedString("not eligible")
		}
		fmt.Printf("staked: %s %s (minimum %s), slashed: %s, %s\n", st.StakedAmount, st.Currency, st.MinimumRequired, st.SlashedTotal, eligible)
		if len(st.SlashEvents) > 0 {
			var data [][]string
			for _, ev := range st.SlashEvents {
				data = append(data, []string{ev.Id, ev.TaskId, ev.Amount.String(), ev.Currency, ev.Reason, ev.CreatedAt.Format("2006-01-02 15:04:05")})
			}
			NewVisualTable([]string{"SLASH", "TASK", "AMOUNT", "CURRENCY", "REASON", "CREATED"}, data, nil).Generate()
		}
		return nil
	},
}

var providerPayout = &cli.Command{
	Name:      "payout",
	Usage:     "Request a payout, or list payouts without an amount",
	ArgsUsage: "[provider_id] [amount]",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "currency", Value: "USDC"},
		&cli.StringFlag{Name: "wallet-address"},
	},
	Action: func(cctx *cli.Context) error {
		pid, err := providerArg(cctx)
		if err != nil {
			return err
		}
		c, err := newClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()

		if cctx.NArg() >= 2 {
			amount, err := decimal.NewFromString(cctx.Args().Get(1))
			if err != nil {
				return fmt.Errorf("invalid amount: %w", err)
			}
			p, err := c.RequestPayout(ctx, pid, models.PayoutReq{Amount: amount, Currency: cctx.String("currency"), WalletAddress: cctx.String("wallet-address")})
			if err != nil {
				return err
			}
			fmt.Printf("payout %s %s: %s %s to %s\n", p.Id, p.Status, p.Amount, p.Currency, p.WalletAddress)
			return nil
		}

		list, err := c.PayoutHistory(ctx, pid, 50)
		if err != nil {
			return err
		}
		var data [][]string
		for _, p := range list.Payouts {
			data = append(data, []string{p.Id, p.Amount.String(), p.Currency, string(p.Status), p.WalletAddress, p.CreatedAt.Format("2006-01-02 15:04:05")})
		}
		NewVisualTable([]string{"PAYOUT", "AMOUNT", "CURRENCY", "STATUS", "WALLET", "CREATED"}, data, nil).Generate()
		return nil
	},
}
