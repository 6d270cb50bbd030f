package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/robocompute/go-robocompute/util"
	"github.com/robocompute/go-robocompute/wallet"
)

var walletCmd = &cli.Command{
	Name:  "wallet",
	Usage: "Manage the local keystore used to sign requests",
	Subcommands: []*cli.Command{
		walletNew,
		walletList,
		walletExport,
		walletImport,
		walletDelete,
		walletSign,
		walletVerify,
	},
}

func openWallet(cctx *cli.Context) (*wallet.LocalWallet, error) {
	return wallet.SetupWallet(repoPath(cctx), wallet.WalletRepo)
}

var walletNew = &cli.Command{
	Name:  "new",
	Usage: "Generate a new key",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "type",
			Usage: "secp256k1 (0x address) or ed25519 (solana address)",
			Value: string(wallet.KTSecp256k1),
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, cancel := util.ReqContext()
		defer cancel()
		localWallet, err := openWallet(cctx)
		if err != nil {
			return err
		}
		addr, err := localWallet.WalletNew(ctx, wallet.KeyType(cctx.String("type")))
		if err != nil {
			return err
		}
		fmt.Println(addr)
		return nil
	},
}

var walletList = &cli.Command{
	Name:  "list",
	Usage: "List wallet address",
	Action: func(cctx *cli.Context) error {
		ctx, cancel := util.ReqContext()
		defer cancel()
		localWallet, err := openWallet(cctx)
		if err != nil {
			return err
		}
		entries, err := localWallet.WalletList(ctx)
		if err != nil {
			return err
		}
		var data [][]string
		for _, e := range entries {
			data = append(data, []string{e.Address, string(e.Type)})
		}
		NewVisualTable([]string{"ADDRESS", "TYPE"}, data, nil).Generate()
		return nil
	},
}

var walletExport = &cli.Command{
	Name:      "export",
	Usage:     "export keys",
	ArgsUsage: "[address]",
	Action: func(cctx *cli.Context) error {
		if !cctx.Args().Present() {
			return fmt.Errorf("must specify key to export")
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		localWallet, err := openWallet(cctx)
		if err != nil {
			return err
		}
		ki, err := localWallet.WalletExport(ctx, cctx.Args().First())
		if err != nil {
			return err
		}
		fmt.Println(ki.PrivateKey)
		return nil
	},
}

var walletImport = &cli.Command{
	Name:      "import",
	Usage:     "import keys",
	ArgsUsage: "[<path> (optional, will read from stdin if omitted)]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "type",
			Value: string(wallet.KTSecp256k1),
		},
	},
	Action: func(cctx *cli.Context) error {
		var inpdata []byte
		if !cctx.Args().Present() || cctx.Args().First() == "-" {
			reader := bufio.NewReader(os.Stdin)
			fmt.Print("Enter private key: ")
			indata, err := reader.ReadBytes('\n')
			if err != nil {
				return err
			}
			inpdata = indata
		} else {
			fdata, err := os.ReadFile(cctx.Args().First())
			if err != nil {
				return err
			}
			inpdata = fdata
		}

		ctx, cancel := util.ReqContext()
		defer cancel()
		localWallet, err := openWallet(cctx)
		if err != nil {
			return err
		}
		ki := wallet.KeyInfo{
			Type:       wallet.KeyType(cctx.String("type")),
			PrivateKey: strings.TrimSpace(string(inpdata)),
		}
		addr, err := localWallet.WalletImport(ctx, &ki)
		if err != nil {
			return err
		}
		fmt.Printf("imported key %s successfully!\n", addr)
		return nil
	},
}

var walletDelete = &cli.Command{
	Name:      "delete",
	Usage:     "Delete an account from the wallet",
	ArgsUsage: "<address> ",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("must specify address to delete")
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		localWallet, err := openWallet(cctx)
		if err != nil {
			return err
		}
		return localWallet.WalletDelete(ctx, cctx.Args().First())
	},
}

var walletSign = &cli.Command{
	Name:      "sign",
	Usage:     "Sign a request the way the api expects it",
	ArgsUsage: "<signing address> <METHOD> <endpoint>",
	Flags: []cli.Flag{
		&cli.Int64Flag{
			Name:  "timestamp",
			Usage: "unix seconds, defaults to now",
		},
	},
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 3 {
			return fmt.Errorf("must specify signing address, method and endpoint")
		}
		addr := cctx.Args().Get(0)
		ts := cctx.Int64("timestamp")
		if ts == 0 {
			ts = time.Now().Unix()
		}
		msg := wallet.SignatureMessage(strings.ToUpper(cctx.Args().Get(1)), cctx.Args().Get(2), ts)

		ctx, cancel := util.ReqContext()
		defer cancel()
		localWallet, err := openWallet(cctx)
		if err != nil {
			return err
		}
		sig, err := localWallet.WalletSign(ctx, addr, []byte(msg))
		if err != nil {
			return err
		}
		fmt.Printf("X-Wallet-Signature: %s\nX-Timestamp: %s\n", sig, strconv.FormatInt(ts, 10))
		return nil
	},
}

var walletVerify = &cli.Command{
	Name:      "verify",
	Usage:     "verify the signature of a message",
	ArgsUsage: "<signing address> <signature> <rawMessage>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 3 {
			return fmt.Errorf("incorrect number of arguments, requires 3 parameters")
		}
		messageData := cctx.Args().Get(2)
		if strings.TrimSpace(messageData) == "" {
			return fmt.Errorf("failed to get raw message")
		}
		ctx, cancel := util.ReqContext()
		defer cancel()
		localWallet, err := openWallet(cctx)
		if err != nil {
			return err
		}
		pass, err := localWallet.WalletVerify(ctx, cctx.Args().First(), cctx.Args().Get(1), []byte(messageData))
		if err != nil {
			return err
		}
		fmt.Println(pass)
		return nil
	},
}
