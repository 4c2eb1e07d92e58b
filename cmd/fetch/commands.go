package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"portfoliodash/internal/aggregate"
	"portfoliodash/internal/portfolio"
	"portfoliodash/internal/quotes"
)

type quotesCmd struct {
	symbols string
	asJSON  bool
}

func (*quotesCmd) Name() string     { return "quotes" }
func (*quotesCmd) Synopsis() string { return "refresh quotes for a symbol set" }
func (*quotesCmd) Usage() string {
	return `fetch quotes [-symbols TCS.NS,INFY.NS] [-json]

  Refreshes quotes in batches. Without -symbols the configured holdings are used.
`
}

func (c *quotesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbols, "symbols", getenv("SYMBOLS", ""), "comma-separated symbols")
	f.BoolVar(&c.asJSON, "json", false, "print JSON instead of a table")
}

func (c *quotesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	symbols := quotes.ParseSymbols(c.symbols)
	if len(symbols) == 0 {
		symbols = portfolio.Symbols(a.Holdings)
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	res, err := a.Quotes.GetQuotes(ctx, symbols)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	if c.asJSON {
		return printJSON(map[string]any{"results": res})
	}
	printMarkdown(quotesMarkdown(symbols, res))
	return subcommands.ExitSuccess
}

type quoteCmd struct {
	symbol string
}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "fetch one symbol directly from the provider" }
func (*quoteCmd) Usage() string {
	return `fetch quote -symbol TCS.NS

  Fetches a single quote, bypassing the cache.
`
}

func (c *quoteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "symbol to fetch")
}

func (c *quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.symbol == "" && f.NArg() > 0 {
		c.symbol = f.Arg(0)
	}
	a, err := load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	q, err := a.Quotes.GetQuote(ctx, c.symbol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return printJSON(q)
}

type summaryCmd struct {
	currency string
	watch    int
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "display the sector summary of the configured holdings" }
func (*summaryCmd) Usage() string {
	return `fetch summary [-currency INR] [-w n]

  Values the configured holdings at current quotes, grouped by sector.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "currency", "", "display currency (defaults to portfolio.currency)")
	f.IntVar(&c.watch, "w", 0, "refresh every n seconds")
}

func (c *summaryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	currency := c.currency
	if currency == "" {
		currency = a.Config.Portfolio.Currency
	}
	symbols := portfolio.Symbols(a.Holdings)

	for {
		rctx, cancel := context.WithTimeout(ctx, *timeout)
		res, err := a.Quotes.GetQuotes(rctx, symbols)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if c.watch == 0 {
				return subcommands.ExitFailure
			}
		} else {
			if c.watch > 0 {
				fmt.Println("\033[2J")
			}
			printMarkdown(summaryMarkdown(aggregate.BySector(a.Holdings, res, currency, time.Now())))
		}
		if c.watch <= 0 {
			return subcommands.ExitSuccess
		}
		select {
		case <-ctx.Done():
			return subcommands.ExitSuccess
		case <-time.After(time.Duration(c.watch) * time.Second):
		}
	}
}

func printJSON(v any) subcommands.ExitStatus {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Println(string(b))
	return subcommands.ExitSuccess
}
