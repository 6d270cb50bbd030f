package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/robocompute/go-robocompute/build"
	"github.com/robocompute/go-robocompute/internal/client"
	"github.com/robocompute/go-robocompute/wallet"
)

const (
	FlagRepo   = "repo"
	FlagApiUrl = "api-url"
	FlagApiKey = "api-key"
	FlagWallet = "wallet"
)

func main() {
	app := &cli.App{
		Name:                 "robocompute",
		Usage:                "A decentralized compute marketplace where robots rent GPU and CPU time from independent providers.",
		EnableBashCompletion: true,
		Version:              build.UserVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    FlagRepo,
				EnvVars: []string{"RC_PATH"},
				Usage:   "robocompute repo path",
				Value:   "~/.robocompute",
			},
			&cli.StringFlag{
				Name:    FlagApiUrl,
				EnvVars: []string{"RC_API_URL"},
				Usage:   "marketplace api url",
				Value:   "http://127.0.0.1:8085",
			},
			&cli.StringFlag{
				Name:    FlagApiKey,
				EnvVars: []string{"RC_API_KEY"},
				Usage:   "api key, or the admin token for account commands",
			},
			&cli.StringFlag{
				Name:    FlagWallet,
				EnvVars: []string{"RC_WALLET"},
				Usage:   "sign requests with this keystore address",
			},
		},
		Commands: []*cli.Command{
			runCmd,
			accountCmd,
			taskCmd,
			providerCmd,
			walletCmd,
		},
	}
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func repoPath(cctx *cli.Context) string {
	p := cctx.String(FlagRepo)
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func newClient(cctx *cli.Context) (*client.Client, error) {
	c := client.New(cctx.String(FlagApiUrl), cctx.String(FlagApiKey))
	if addr := cctx.String(FlagWallet); addr != "" {
		localWallet, err := wallet.SetupWallet(repoPath(cctx), wallet.WalletRepo)
		if err != nil {
			return nil, err
		}
		c.WithSigner(localWallet, addr)
	}
	return c, nil
}
