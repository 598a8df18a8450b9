package cart

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kshitij406/VendingMachine/internal/currency"
	"github.com/kshitij406/VendingMachine/internal/domain"
	"github.com/kshitij406/VendingMachine/internal/inventory"
)

// Cart holds one session's reserved lines. It is owned by exactly one
// session and needs no locking of its own; all snapshot bookkeeping goes
// through TryReserve/Release.
type Cart struct {
	lines map[int64]*domain.CartLine
}

func New() *Cart {
	return &Cart{lines: make(map[int64]*domain.CartLine)}
}

// Add reserves quantity against the snapshot and merges it into the line
// for productID. Unit price is snapshotted on first add.
func (c *Cart) Add(productID int64, quantity int, inv *inventory.Snapshot) (domain.CartLine, error) {
	p, err := inv.Get(productID)
	if err != nil {
		return domain.CartLine{}, err
	}

	if err := inv.TryReserve(productID, quantity); err != nil {
		return domain.CartLine{}, err
	}

	line, ok := c.lines[productID]
	if !ok {
		line = &domain.CartLine{
			ProductID: productID,
			Name:      p.Name,
			UnitPrice: p.Price,
		}
		c.lines[productID] = line
	}
	line.Quantity += quantity
	line.Total += p.Price * float64(quantity)

	return *line, nil
}

// Remove releases up to quantity units back to the snapshot, clamped to
// what the line actually holds. The line is deleted when it hits zero.
// Returns the quantity actually removed and the line as it was.
func (c *Cart) Remove(productID int64, quantity int, inv *inventory.Snapshot) (int, domain.CartLine, error) {
	line, ok := c.lines[productID]
	if !ok {
		return 0, domain.CartLine{}, domain.ErrNotInCart
	}

	if quantity > line.Quantity {
		quantity = line.Quantity
	}

	inv.Release(productID, quantity)

	removed := *line
	line.Quantity -= quantity
	line.Total -= line.UnitPrice * float64(quantity)
	if line.Quantity == 0 {
		delete(c.lines, productID)
	}

	return quantity, removed, nil
}

// Lines returns a copy of the cart sorted by product id.
func (c *Cart) Lines() []domain.CartLine {
	lines := make([]domain.CartLine, 0, len(c.lines))
	for _, line := range c.lines {
		lines = append(lines, *line)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}

func (c *Cart) Total() float64 {
	var total float64
	for _, line := range c.lines {
		total += line.Total
	}
	return total
}

func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

// Clear drops all lines. It does not touch the snapshot; the caller
// decides whether the quantities were settled or must be released.
func (c *Cart) Clear() {
	c.lines = make(map[int64]*domain.CartLine)
}

// Render produces the CART response. Totals are converted with rate and
// formatted in the given currency. The first two lines are headers.
func (c *Cart) Render(rate float64, code string) string {
	if c.Empty() {
		return "Cart is empty."
	}

	var b strings.Builder
	b.WriteString("Cart Summary:\n")
	b.WriteString("ID ITEM TOTAL QTY\n")
	for _, line := range c.Lines() {
		fmt.Fprintf(&b, "%d %s %s %d\n",
			line.ProductID, line.Name, currency.Format(line.Total*rate, code), line.Quantity)
	}
	fmt.Fprintf(&b, "TOTAL %s", currency.Format(c.Total()*rate, code))
	return b.String()
}
