package aggregate

import (
	"sort"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"portfoliodash/internal/portfolio"
	"portfoliodash/internal/provider"
	"portfoliodash/internal/refresh"
)

var hundred = decimal.NewFromInt(100)

// Row is one holding valued at its latest quote.
// PresentValue and GainLoss are null when the quote has no price.
type Row struct {
	Name             string              `json:"name"`
	Symbol           string              `json:"symbol"`
	Exchange         string              `json:"exchange"`
	PurchasePrice    decimal.Decimal     `json:"purchasePrice"`
	Quantity         decimal.Decimal     `json:"quantity"`
	Investment       decimal.Decimal     `json:"investment"`
	CMP              decimal.NullDecimal `json:"cmp"`
	PresentValue     decimal.NullDecimal `json:"presentValue"`
	GainLoss         decimal.NullDecimal `json:"gainLoss"`
	PortfolioPercent decimal.Decimal     `json:"portfolioPercent"`
	PERatio          *float64            `json:"peRatio"`
	Earnings         *float64            `json:"earnings"`
	Cached           bool                `json:"cached"`
	Error            bool                `json:"error,omitempty"`
}

// Sector groups holdings. A holding without a price contributes zero
// present value to the sector totals.
type Sector struct {
	Name              string          `json:"name"`
	Investment        decimal.Decimal `json:"investment"`
	PresentValue      decimal.Decimal `json:"presentValue"`
	GainLoss          decimal.Decimal `json:"gainLoss"`
	InvestmentPercent decimal.Decimal `json:"investmentPercent"`
	Count             int             `json:"count"`
	Display           Display         `json:"display"`
	Holdings          []Row           `json:"holdings"`
}

// Slice is one sector of the distribution by value. A holding without a
// price is valued at its investment.
type Slice struct {
	Name    string          `json:"name"`
	Value   decimal.Decimal `json:"value"`
	Percent decimal.Decimal `json:"percent"`
}

// Display carries currency-formatted totals for the presentation layer.
type Display struct {
	Investment   string `json:"investment"`
	PresentValue string `json:"presentValue"`
	GainLoss     string `json:"gainLoss"`
}

type Summary struct {
	Currency          string          `json:"currency"`
	TotalInvestment   decimal.Decimal `json:"totalInvestment"`
	TotalPresentValue decimal.Decimal `json:"totalPresentValue"`
	TotalGainLoss     decimal.Decimal `json:"totalGainLoss"`
	Display           Display         `json:"display"`
	Sectors           []Sector        `json:"sectors"`
	Distribution      []Slice         `json:"distribution"`
	Errors            int             `json:"errors"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// BySector values holdings at the given quotes and groups them by sector.
// Sectors are sorted by name; holdings keep their input order.
func BySector(holdings []portfolio.Holding, quotes map[string]refresh.Result, currency string, now time.Time) Summary {
	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(h.Investment())
	}

	sectors := make(map[string]*Sector)
	values := make(map[string]decimal.Decimal)
	sum := Summary{Currency: currency, TotalInvestment: total, UpdatedAt: now}

	for _, h := range holdings {
		q, ok := quotes[provider.Normalize(h.Symbol)]
		row := valueRow(h, q, total)
		if ok && q.Error {
			sum.Errors++
		}

		sec, ok := sectors[h.Sector]
		if !ok {
			sec = &Sector{Name: h.Sector}
			sectors[h.Sector] = sec
		}
		sec.Holdings = append(sec.Holdings, row)
		sec.Investment = sec.Investment.Add(row.Investment)
		pv := decimal.Zero
		if row.PresentValue.Valid {
			pv = row.PresentValue.Decimal
		}
		sec.PresentValue = sec.PresentValue.Add(pv)
		sec.GainLoss = sec.GainLoss.Add(pv.Sub(row.Investment))

		byValue := row.Investment
		if row.PresentValue.Valid {
			byValue = row.PresentValue.Decimal
		}
		values[h.Sector] = values[h.Sector].Add(byValue)
	}

	names := make([]string, 0, len(sectors))
	for name := range sectors {
		names = append(names, name)
	}
	sort.Strings(names)

	totalValue := decimal.Zero
	for _, v := range values {
		totalValue = totalValue.Add(v)
	}
	if totalValue.IsZero() {
		totalValue = decimal.NewFromInt(1)
	}

	for _, name := range names {
		sec := sectors[name]
		sec.InvestmentPercent = percent(sec.Investment, total, 1)
		sec.Count = len(sec.Holdings)
		sec.Display = display(sec.Investment, sec.PresentValue, sec.GainLoss, currency)
		sum.Sectors = append(sum.Sectors, *sec)
		sum.TotalPresentValue = sum.TotalPresentValue.Add(sec.PresentValue)
		sum.TotalGainLoss = sum.TotalGainLoss.Add(sec.GainLoss)
		sum.Distribution = append(sum.Distribution, Slice{
			Name:    name,
			Value:   values[name],
			Percent: values[name].Div(totalValue).Mul(hundred).Round(1),
		})
	}
	sum.Display = display(sum.TotalInvestment, sum.TotalPresentValue, sum.TotalGainLoss, currency)
	return sum
}

func valueRow(h portfolio.Holding, q refresh.Result, total decimal.Decimal) Row {
	row := Row{
		Name:             h.Name,
		Symbol:           provider.Normalize(h.Symbol),
		Exchange:         h.Exchange,
		PurchasePrice:    h.PurchasePrice,
		Quantity:         h.Quantity,
		Investment:       h.Investment(),
		PERatio:          q.PERatio,
		Earnings:         q.Earnings,
		Cached:           q.Cached,
		Error:            q.Error,
		PortfolioPercent: percent(h.Investment(), total, 2),
	}
	if q.CMP != nil {
		cmp := decimal.NewFromFloat(*q.CMP)
		pv := cmp.Mul(h.Quantity)
		row.CMP = decimal.NewNullDecimal(cmp)
		row.PresentValue = decimal.NewNullDecimal(pv)
		row.GainLoss = decimal.NewNullDecimal(pv.Sub(row.Investment))
	}
	return row
}

func percent(part, whole decimal.Decimal, places int32) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(places)
}

func display(inv, pv, gl decimal.Decimal, currency string) Display {
	return Display{
		Investment:   Format(inv, currency),
		PresentValue: Format(pv, currency),
		GainLoss:     Format(gl, currency),
	}
}

// Format renders amount in currency, e.g. "₹32,000.00".
// Unknown currency codes fall back to the plain decimal string.
func Format(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return money.New(minor.IntPart(), cur.Code).Display()
}
