package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// StatementData is a pre-formatted earnings statement. Amounts are already
// rendered with their currency.
type StatementData struct {
	EarnerName   string
	EarnerEmail  string
	ReferralCode string
	GeneratedAt  string
	LinksOwned   string

	Totals       []StatementTotal
	Transactions []StatementLine
}

type StatementTotal struct {
	Currency      string
	SalesAmount   string
	Direct        string
	Override      string
	Adjustments   string
	TotalEarnings string
}

type StatementLine struct {
	Date        string
	Source      string
	Description string
	Amount      string
}

type MarotoProvider struct{}

func New() Provider {
	return &MarotoProvider{}
}

func (p *MarotoProvider) GenerateStatement(ctx context.Context, data StatementData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Earnings statement", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, data.GeneratedAt, props.Text{Size: 9, Align: align.Right, Top: 4}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New(data.EarnerName, props.Text{Style: fontstyle.Bold}),
			text.New(data.EarnerEmail, props.Text{Top: 5}),
			text.New("Referral code: "+data.ReferralCode, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Links owned: "+data.LinksOwned, props.Text{Align: align.Right}),
		),
	)

	m.AddRow(10,
		text.NewCol(2, "Currency", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Sales", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Direct", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Override", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Adjustments", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, total := range data.Totals {
		m.AddRow(8,
			text.NewCol(2, total.Currency, props.Text{Size: 9}),
			text.NewCol(2, total.SalesAmount, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, total.Direct, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, total.Override, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, total.Adjustments, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, total.TotalEarnings, props.Text{Size: 9, Align: align.Right, Style: fontstyle.Bold}),
		)
	}

	m.AddRow(14,
		text.NewCol(12, "Recent commission transactions", props.Text{Size: 12, Style: fontstyle.Bold, Top: 5}),
	)
	m.AddRow(10,
		text.NewCol(3, "Date", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Source", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(5, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	if len(data.Transactions) == 0 {
		m.AddRow(8, text.NewCol(12, "No commission transactions yet.", props.Text{Size: 9}))
	}
	for _, line := range data.Transactions {
		m.AddRow(8,
			text.NewCol(3, line.Date, props.Text{Size: 9}),
			text.NewCol(2, line.Source, props.Text{Size: 9}),
			text.NewCol(5, line.Description, props.Text{Size: 9}),
			text.NewCol(2, line.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
