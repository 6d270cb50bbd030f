package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/robocompute/go-robocompute/util"
)

var accountCmd = &cli.Command{
	Name:  "account",
	Usage: "Manage accounts and balances",
	Subcommands: []*cli.Command{
		accountCreate,
		accountList,
		accountBalance,
		accountDeposit,
		accountBilling,
	},
}

var accountCreate = &cli.Command{
	Name:  "create",
	Usage: "Create an account, requires the admin token as api key",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "role",
			Usage: "client or provider",
			Value: string(models.RoleClient),
		},
		&cli.StringFlag{
			Name:     "name",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "wallet-address",
			Usage: "wallet used for signatures and payouts",
		},
	},
	Action: func(cctx *cli.Context) error {
		c, err := newClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		creds, err := c.CreateAccount(ctx, models.CreateAccountReq{
			Role:          models.Role(cctx.String("role")),
			Name:          cctx.String("name"),
			WalletAddress: cctx.String("wallet-address"),
		})
		if err != nil {
			return err
		}
		fmt.Printf("account: %s\n", creds.Id)
		if creds.ProviderId != "" {
			fmt.Printf("provider: %s\n", creds.ProviderId)
		}
		fmt.Printf("api key: %s\n", creds.ApiKey)
		return nil
	},
}

var accountList = &cli.Command{
	Name:  "list",
	Usage: "List accounts, requires the admin token as api key",
	Action: func(cctx *cli.Context) error {
		c, err := newClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		list, err := c.ListAccounts(ctx)
		if err != nil {
			return err
		}
		var data [][]string
		for _, a := range list.Accounts {
			data = append(data, []string{a.Id, string(a.Role), a.Name, a.WalletAddress, a.ProviderId, a.CreatedAt.Format("2006-01-02 15:04:05")})
		}
		NewVisualTable([]string{"ACCOUNT", "ROLE", "NAME", "WALLET", "PROVIDER", "CREATED"}, data, nil).Generate()
		return nil
	},
}

var accountBalance = &cli.Command{
	Name:  "balance",
	Usage: "Show the account balance",
	Action: func(cctx *cli.Context) error {
		c, err := newClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		b, err := c.Balance(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("USDC: %s\nUSDT: %s\n", b.UsdcBalance.StringFixed(2), b.UsdtBalance.StringFixed(2))
		return nil
	},
}

var accountDeposit = &cli.Command{
	Name:      "deposit",
	Usage:     "Deposit funds",
	ArgsUsage: "[amount]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "currency",
			Value: "USDC",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("incorrect number of arguments, got %d, missing args: amount", cctx.NArg())
		}
		amount, err := decimal.NewFromString(cctx.Args().First())
		if err != nil {
			return fmt.Errorf("invalid amount: %w", err)
		}
		c, err := newClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		res, err := c.Deposit(ctx, models.DepositReq{Amount: amount, Currency: cctx.String("currency")})
		if err != nil {
			return err
		}
		fmt.Printf("deposited %s %s, balance: %s\n", amount, res.Record.Currency, res.Balance.Get(res.Record.Currency))
		return nil
	},
}

var accountBilling = &cli.Command{
	Name:  "billing",
	Usage: "Show billing history",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "start-date", Usage: "YYYY-MM-DD"},
		&cli.StringFlag{Name: "end-date", Usage: "YYYY-MM-DD"},
	},
	Action: func(cctx *cli.Context) error {
		c, err := newClient(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		h, err := c.BillingHistory(ctx, models.DateRangeReq{StartDate: cctx.String("start-date"), EndDate: cctx.String("end-date")})
		if err != nil {
			return err
		}
		var data [][]string
		for _, r := range h.Records {
			data = append(data, []string{r.CreatedAt.Format("2006-01-02 15:04:05"), string(r.Type), r.Amount.String(), r.Currency, r.TaskId, r.Description})
		}
		NewVisualTable([]string{"TIME", "TYPE", "AMOUNT", "CURRENCY", "TASK", "DESCRIPTION"}, data, nil).Generate()
		return nil
	},
}
