package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/robocompute/go-robocompute/build"
	"github.com/robocompute/go-robocompute/conf"
	"github.com/robocompute/go-robocompute/internal/client"
	"github.com/robocompute/go-robocompute/wallet"
)

const (
	FlagRepo = "repo"
)

func main() {
	app := &cli.App{
		Name:                 "rc-provider",
		Usage:                "A provider node runs marketplace tasks on local docker or kubernetes capacity and reports them back.",
		EnableBashCompletion: true,
		Version:              build.UserVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    FlagRepo,
				EnvVars: []string{"RC_PROVIDER_PATH"},
				Usage:   "provider repo path",
				Value:   "~/.robocompute/provider",
			},
		},
		Commands: []*cli.Command{
			runCmd,
			resourcesCmd,
			statusCmd,
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

// loadNode reads provider.toml and builds a client that signs with the
// configured wallet when one is set.
func loadNode(cctx *cli.Context) (*conf.ProviderNode, *client.Client, error) {
	repo := repoPath(cctx)
	node, err := conf.LoadProviderConfig(repo)
	if err != nil {
		return nil, nil, err
	}
	c := client.New(node.Provider.ApiUrl, node.Provider.ApiKey)
	if node.Provider.WalletAddress != "" {
		localWallet, err := wallet.SetupWallet(repo, node.Provider.KeystoreDir)
		if err != nil {
			return nil, nil, err
		}
		c.WithSigner(localWallet, node.Provider.WalletAddress)
	}
	return node, c, nil
}
