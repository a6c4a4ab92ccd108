package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/oxx-labs/oxx-backend/internal/bootstrap"
	"github.com/oxx-labs/oxx-backend/internal/config"
	"github.com/oxx-labs/oxx-backend/internal/factory"
	"github.com/oxx-labs/oxx-backend/internal/journal"
	"github.com/oxx-labs/oxx-backend/internal/trading"
	"github.com/oxx-labs/oxx-backend/pkg/chain"
	"github.com/oxx-labs/oxx-backend/pkg/logging"
	"github.com/oxx-labs/oxx-backend/pkg/types"
)

var (
	tokenFlag     = &cli.StringFlag{Name: "token", Usage: "Content token address", Required: true}
	amountFlag    = &cli.StringFlag{Name: "amount", Usage: "Amount in base units (wei)", Required: true}
	minOutFlag    = &cli.StringFlag{Name: "min-out", Usage: "Minimum output in base units; derived from a quote when omitted"}
	slippageFlag  = &cli.UintFlag{Name: "slippage-bps", Usage: "Slippage tolerance for the quote-derived minimum", Value: 100}
	recipientFlag = &cli.StringFlag{Name: "recipient", Usage: "Output recipient (defaults to the operator)"}
	feeFlag       = &cli.UintFlag{Name: "fee", Usage: "Pool fee tier override"}
	projectFlag   = &cli.StringFlag{Name: "project", Usage: "Project ID recorded in the journal"}
)

func withApp(c *cli.Context, fn func(ctx context.Context, app *bootstrap.App) error) error {
	logger, err := logging.NewZapLogger(logging.LoggerConfig{
		ProcessName:   logging.CLIProcess,
		IsDevelopment: c.Bool("verbose"),
		ConsoleOnly:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Shutdown()

	app, err := bootstrap.New(c.Context, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(c.Context, app)
}

func requireSigner(app *bootstrap.App) (chain.TxSigner, error) {
	if app.Signer == nil {
		return nil, errors.New("OXX_OPERATOR_PRIVATE_KEY is required for on-chain writes")
	}
	return app.Signer, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func addressArg(c *cli.Context, name string) (common.Address, error) {
	value := c.String(name)
	if !common.IsHexAddress(value) {
		return common.Address{}, chain.NewValidationError(name, "must be a 0x-prefixed 20-byte hex address")
	}
	return common.HexToAddress(value), nil
}

func optionalAddressArg(c *cli.Context, name string) (*common.Address, error) {
	if !c.IsSet(name) {
		return nil, nil
	}
	addr, err := addressArg(c, name)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func bigArg(c *cli.Context, name string) (*big.Int, error) {
	if !c.IsSet(name) {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(c.String(name), 10)
	if !ok {
		return nil, chain.NewValidationError(name, "must be an integer in base units")
	}
	return v, nil
}

func feeArg(c *cli.Context) *uint32 {
	if !c.IsSet(feeFlag.Name) {
		return nil
	}
	fee := uint32(c.Uint(feeFlag.Name))
	return &fee
}

func CreateTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-token",
		Usage: "Deploy a content token through the factory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Required: true},
			&cli.StringFlag{Name: "symbol", Required: true},
			&cli.StringFlag{Name: "content-uri", Required: true},
			&cli.StringFlag{Name: "creator", Required: true},
			&cli.StringFlag{Name: "mint-recipient", Usage: "Initial mint recipient (defaults to the creator)"},
			&cli.StringFlag{Name: "mint-amount", Usage: "Initial mint in whole tokens", Value: "1000000000"},
			&cli.Uint64Flag{Name: "vesting", Usage: "Vesting duration in seconds"},
			&cli.Int64Flag{Name: "followers", Usage: "Creator follower count to check against the eligibility threshold", Value: -1},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
				if followers := c.Int64("followers"); followers >= 0 {
					if err := app.Eligibility.Check(followers); err != nil {
						return err
					}
				}
				signer, err := requireSigner(app)
				if err != nil {
					return err
				}
				creator, err := addressArg(c, "creator")
				if err != nil {
					return err
				}
				recipient, err := optionalAddressArg(c, "mint-recipient")
				if err != nil {
					return err
				}
				amount, ok := new(big.Int).SetString(c.String("mint-amount"), 10)
				if !ok {
					return chain.NewValidationError("mint-amount", "must be an integer")
				}

				req := factory.TokenCreationRequest{
					Name:              c.String("name"),
					Symbol:            c.String("symbol"),
					ContentURI:        c.String("content-uri"),
					Creator:           creator,
					InitialMintAmount: amount,
					VestingDuration:   c.Uint64("vesting"),
				}
				if recipient != nil {
					req.InitialMintRecipient = *recipient
				}
				token, err := app.Factory.CreateToken(ctx, req, signer)
				if err != nil {
					return err
				}
				return printJSON(map[string]string{"tokenAddress": token.Hex()})
			})
		},
	}
}

func UpdateContentURICommand() *cli.Command {
	return &cli.Command{
		Name:  "set-content-uri",
		Usage: "Point a content token at new content",
		Flags: []cli.Flag{tokenFlag, &cli.StringFlag{Name: "uri", Required: true}},
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
				signer, err := requireSigner(app)
				if err != nil {
					return err
				}
				token, err := addressArg(c, tokenFlag.Name)
				if err != nil {
					return err
				}
				hash, err := app.Factory.UpdateContentURI(ctx, token, c.String("uri"), signer)
				if err != nil {
					return err
				}
				return printJSON(map[string]string{"txHash": hash.Hex()})
			})
		},
	}
}

func MintCommand() *cli.Command {
	return &cli.Command{
		Name:  "mint",
		Usage: "Mint additional content tokens",
		Flags: []cli.Flag{tokenFlag, amountFlag, &cli.StringFlag{Name: "to", Required: true}},
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
				signer, err := requireSigner(app)
				if err != nil {
					return err
				}
				token, err := addressArg(c, tokenFlag.Name)
				if err != nil {
					return err
				}
				to, err := addressArg(c, "to")
				if err != nil {
					return err
				}
				amount, err := bigArg(c, amountFlag.Name)
				if err != nil {
					return err
				}
				hash, err := app.Factory.MintTokens(ctx, token, to, amount, signer)
				if err != nil {
					return err
				}
				return printJSON(map[string]string{"txHash": hash.Hex()})
			})
		},
	}
}

func TokensCommand() *cli.Command {
	return &cli.Command{
		Name:  "tokens",
		Usage: "List every token created by the factory",
		Flags: []cli.Flag{&cli.BoolFlag{Name: "details", Usage: "Read full details for each token"}},
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
				if c.Bool("details") {
					infos, err := app.Query.GetAllTokensWithDetails(ctx)
					if err != nil {
						return err
					}
					return printJSON(infos)
				}
				tokens, err := app.Query.GetAllTokens(ctx)
				if err != nil {
					return err
				}
				return printJSON(tokens)
			})
		},
	}
}

func DetailsCommand() *cli.Command {
	return &cli.Command{
		Name:  "details",
		Usage: "Show a content token's metadata, supply and price",
		Flags: []cli.Flag{tokenFlag},
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
				token, err := addressArg(c, tokenFlag.Name)
				if err != nil {
					return err
				}
				info, err := app.Query.GetTokenDetails(ctx, token)
				if err != nil {
					return err
				}
				return printJSON(info)
			})
		},
	}
}

func PriceCommand() *cli.Command {
	return &cli.Command{
		Name:  "price",
		Usage: "Show a content token's pool price",
		Flags: []cli.Flag{tokenFlag},
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
				token, err := addressArg(c, tokenFlag.Name)
				if err != nil {
					return err
				}
				price, err := app.Query.GetTokenPrice(ctx, token)
				if err != nil {
					return err
				}
				return printJSON(map[string]string{"token": token.Hex(), "price": price})
			})
		},
	}
}

func BalanceCommand() *cli.Command {
	return &cli.Command{
		Name:  "balance",
		Usage: "Show a user's content token balance",
		Flags: []cli.Flag{tokenFlag, &cli.StringFlag{Name: "user", Required: true}},
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
				token, err := addressArg(c, tokenFlag.Name)
				if err != nil {
					return err
				}
				user, err := addressArg(c, "user")
				if err != nil {
					return err
				}
				balance, err := app.Query.GetUserBalance(ctx, token, user)
				if err != nil {
					return err
				}
				return printJSON(map[string]string{"token": token.Hex(), "user": user.Hex(), "balance": balance})
			})
		},
	}
}

func MarketDataCommand() *cli.Command {
	return &cli.Command{
		Name:  "market-data",
		Usage: "Derive market cap, circulating supply and volume for a token",
		Flags: []cli.Flag{tokenFlag},
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
				token, err := addressArg(c, tokenFlag.Name)
				if err != nil {
					return err
				}
				data, err := app.Reconciler.GetMarketData(ctx, token)
				if err != nil {
					return err
				}
				return printJSON(data)
			})
		},
	}
}

func RefreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Overlay on-chain market data onto stored projects",
		Flags: []cli.Flag{&cli.StringFlag{Name: "project", Usage: "Refresh one project; all projects with tokens when omitted"}},
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
				if id := c.String("project"); id != "" {
					project, err := app.Reconciler.RefreshByID(ctx, app.Projects, id)
					if err != nil {
						return err
					}
					return printJSON(project)
				}
				updated := app.Reconciler.RefreshAll(ctx, app.Projects)
				fmt.Printf("Refreshed %d projects\n", updated)
				return nil
			})
		},
	}
}

func tradeFlags(extra ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{tokenFlag, amountFlag, minOutFlag, slippageFlag, recipientFlag, feeFlag, projectFlag}, extra...)
}

type tradeResult struct {
	TxHash         string        `json:"txHash"`
	State          string        `json:"state"`
	AmountOut      *types.BigInt `json:"amountOut,omitempty"`
	ApprovalTxHash string        `json:"approvalTxHash,omitempty"`
	ReconcileError string        `json:"reconcileError,omitempty"`
}

func printOutcome(outcome *trading.TransactionOutcome) error {
	result := tradeResult{
		TxHash:    outcome.TxHash.Hex(),
		State:     string(outcome.State),
		AmountOut: types.NewBigInt(outcome.AmountOut),
	}
	if outcome.ApprovalTxHash != nil {
		result.ApprovalTxHash = outcome.ApprovalTxHash.Hex()
	}
	if outcome.ReconcileErr != nil {
		result.ReconcileError = outcome.ReconcileErr.Error()
	}
	return printJSON(result)
}

func BuyCommand() *cli.Command {
	return &cli.Command{
		Name:  "buy",
		Usage: "Buy content tokens with the native asset or another token",
		Flags: tradeFlags(&cli.StringFlag{Name: "input-token", Usage: "Token spent (defaults to the native asset)"}),
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
				signer, err := requireSigner(app)
				if err != nil {
					return err
				}
				token, err := addressArg(c, tokenFlag.Name)
				if err != nil {
					return err
				}
				amountIn, err := bigArg(c, amountFlag.Name)
				if err != nil {
					return err
				}
				minOut, err := bigArg(c, minOutFlag.Name)
				if err != nil {
					return err
				}
				input, err := optionalAddressArg(c, "input-token")
				if err != nil {
					return err
				}
				recipient, err := optionalAddressArg(c, recipientFlag.Name)
				if err != nil {
					return err
				}

				req := trading.BuyRequest{
					Token:            token,
					AmountIn:         amountIn,
					AmountOutMinimum: minOut,
					SlippageBps:      uint32(c.Uint(slippageFlag.Name)),
					InputToken:       input,
					FeeTier:          feeArg(c),
					ProjectID:        c.String(projectFlag.Name),
				}
				if recipient != nil {
					req.Recipient = *recipient
				}
				outcome, err := app.Trading.Buy(ctx, req, signer)
				if err != nil {
					return err
				}
				return printOutcome(outcome)
			})
		},
	}
}

func SellCommand() *cli.Command {
	return &cli.Command{
		Name:  "sell",
		Usage: "Sell content tokens for the wrapped native asset or another token",
		Flags: tradeFlags(&cli.StringFlag{Name: "output-token", Usage: "Token received (defaults to the wrapped native asset)"}),
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
				signer, err := requireSigner(app)
				if err != nil {
					return err
				}
				token, err := addressArg(c, tokenFlag.Name)
				if err != nil {
					return err
				}
				amountIn, err := bigArg(c, amountFlag.Name)
				if err != nil {
					return err
				}
				minOut, err := bigArg(c, minOutFlag.Name)
				if err != nil {
					return err
				}
				output, err := optionalAddressArg(c, "output-token")
				if err != nil {
					return err
				}
				recipient, err := optionalAddressArg(c, recipientFlag.Name)
				if err != nil {
					return err
				}

				req := trading.SellRequest{
					Token:            token,
					AmountIn:         amountIn,
					AmountOutMinimum: minOut,
					SlippageBps:      uint32(c.Uint(slippageFlag.Name)),
					OutputToken:      output,
					FeeTier:          feeArg(c),
					ProjectID:        c.String(projectFlag.Name),
				}
				if recipient != nil {
					req.Recipient = *recipient
				}
				outcome, err := app.Trading.Sell(ctx, req, signer)
				if err != nil {
					return err
				}
				return printOutcome(outcome)
			})
		},
	}
}

// DeadlineCommand needs no chain connection.
func DeadlineCommand() *cli.Command {
	return &cli.Command{
		Name:  "deadline",
		Usage: "Print a swap deadline timestamp",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "minutes", Usage: "Minutes from now (defaults to the configured deadline)"},
		},
		Action: func(c *cli.Context) error {
			minutes := config.GetDeadlineMinutes()
			if c.IsSet("minutes") {
				minutes = c.Int("minutes")
			}
			deadline := trading.GetDeadlineTimestamp(minutes, time.Now())
			fmt.Println(deadline.String())
			return nil
		},
	}
}

func JournalCommand() *cli.Command {
	return &cli.Command{
		Name:  "journal",
		Usage: "Inspect or settle the transaction journal",
		Subcommands: []*cli.Command{
			{
				Name:  "open",
				Usage: "List writes whose outcome is not settled",
				Action: func(c *cli.Context) error {
					return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
						entries, err := app.Journal.ListOpen(ctx)
						if err != nil {
							return err
						}
						return printJSON(entries)
					})
				},
			},
			{
				Name:  "reconcile",
				Usage: "Settle open entries whose receipts are now available",
				Action: func(c *cli.Context) error {
					return withApp(c, func(ctx context.Context, app *bootstrap.App) error {
						settled, err := journal.ReconcileOpen(ctx, app.Journal, app.Client, app.Settlers(), logging.NewNoOpLogger())
						if err != nil {
							return err
						}
						fmt.Printf("Settled %d journal entries\n", settled)
						return nil
					})
				},
			},
		},
	}
}
