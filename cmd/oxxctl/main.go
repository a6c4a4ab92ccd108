package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/oxx-labs/oxx-backend/internal/config"
)

func main() {
	if err := config.Init(); err != nil {
		log.Fatal(err)
	}

	app := &cli.App{
		Name:  "oxxctl",
		Usage: "Operate OXX content tokens on-chain",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Log adapter activity"},
		},
		Commands: []*cli.Command{
			CreateTokenCommand(),
			UpdateContentURICommand(),
			MintCommand(),
			TokensCommand(),
			DetailsCommand(),
			PriceCommand(),
			BalanceCommand(),
			MarketDataCommand(),
			RefreshCommand(),
			BuyCommand(),
			SellCommand(),
			DeadlineCommand(),
			JournalCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
