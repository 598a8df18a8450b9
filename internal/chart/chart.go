package chart

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/kshitij406/VendingMachine/internal/repository"
)

// transactionWindow bounds how much history feeds one chart.
const transactionWindow = 50

// Renderer produces the opaque chart payload streamed by the CHART verb.
// A nil payload with nil error means there is nothing to chart.
type Renderer interface {
	Render(ctx context.Context) ([]byte, error)
}

// SalesChart renders units sold per product from recent transactions as
// an SVG bar chart. The payload is base64-encoded; the client decodes it
// back into image bytes.
type SalesChart struct {
	store repository.CatalogStore
}

func NewSalesChart(store repository.CatalogStore) *SalesChart {
	return &SalesChart{store: store}
}

func (c *SalesChart) Render(ctx context.Context) ([]byte, error) {
	records, err := c.store.RecentTransactions(ctx, transactionWindow)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	sold := make(map[string]int)
	for _, rec := range records {
		sold[rec.ProductName] += rec.Quantity
	}

	names := make([]string, 0, len(sold))
	maxQty := 0
	for name, qty := range sold {
		names = append(names, name)
		if qty > maxQty {
			maxQty = qty
		}
	}
	sort.Strings(names)
	if maxQty == 0 {
		return nil, nil
	}

	svg := renderSVG(names, sold, maxQty)
	encoded := base64.StdEncoding.EncodeToString([]byte(svg))
	return []byte(encoded), nil
}

func renderSVG(names []string, sold map[string]int, maxQty int) string {
	const (
		barWidth  = 60
		gap       = 30
		maxHeight = 300
		baseline  = 340
	)

	width := gap + len(names)*(barWidth+gap)

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="400">`, width)
	b.WriteString(`<text x="10" y="24" font-size="16">Units sold</text>`)

	x := gap
	for _, name := range names {
		qty := sold[name]
		h := maxHeight * qty / maxQty
		fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="steelblue"/>`,
			x, baseline-h, barWidth, h)
		fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="12" text-anchor="middle">%s</text>`,
			x+barWidth/2, baseline+16, name)
		fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="12" text-anchor="middle">%d</text>`,
			x+barWidth/2, baseline-h-6, qty)
		x += barWidth + gap
	}
	b.WriteString(`</svg>`)
	return b.String()
}
