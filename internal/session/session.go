package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kshitij406/VendingMachine/internal/auth"
	"github.com/kshitij406/VendingMachine/internal/cart"
	"github.com/kshitij406/VendingMachine/internal/chart"
	"github.com/kshitij406/VendingMachine/internal/currency"
	"github.com/kshitij406/VendingMachine/internal/domain"
	"github.com/kshitij406/VendingMachine/internal/inventory"
	"github.com/kshitij406/VendingMachine/internal/protocol"
	"github.com/kshitij406/VendingMachine/internal/publisher"
	"github.com/kshitij406/VendingMachine/internal/repository"
)

const historyLimit = 10

// Deps are the shared collaborators handed to every session.
type Deps struct {
	Store     repository.CatalogStore
	Inventory *inventory.Snapshot
	Auth      auth.Authenticator
	Rates     currency.RateProvider
	Charts    chart.Renderer
	Publisher publisher.Publisher
}

// Session drives one connection through authenticate, command loop,
// terminate. It owns its cart; everything else is shared.
type Session struct {
	conn *protocol.Conn
	raw  net.Conn
	deps Deps
	cart *cart.Cart

	username string
	code     string // display currency
	rate     float64

	cleanup sync.Once
}

func New(conn net.Conn, deps Deps) *Session {
	return &Session{
		conn: protocol.NewConn(conn),
		raw:  conn,
		deps: deps,
		cart: cart.New(),
		code: "USD",
		rate: 1,
	}
}

// Run executes the full session lifecycle and always terminates cleanly,
// releasing any reserved quantities exactly once.
func (s *Session) Run(ctx context.Context) {
	defer s.Terminate()

	if !s.authenticate() {
		return
	}

	if err := s.deps.Inventory.Refresh(ctx); err != nil {
		log.Printf("[!] initial inventory refresh failed for %s: %v", s.username, err)
	}

	s.loop(ctx)
}

// Terminate releases the session's reservations and closes the socket.
// Safe to call more than once; cleanup runs exactly once.
func (s *Session) Terminate() {
	s.cleanup.Do(func() {
		for _, line := range s.cart.Lines() {
			s.deps.Inventory.Release(line.ProductID, line.Quantity)
		}
		s.cart.Clear()
		s.raw.Close()
	})
}

// authenticate reads username then password as two sequential messages
// and answers with the literal tokens True/False. After a False the
// session accepts exactly one more read: EXIT closes cleanly, anything
// else drops the connection.
func (s *Session) authenticate() bool {
	username, err := s.conn.ReadMessage()
	if err != nil {
		return false
	}
	password, err := s.conn.ReadMessage()
	if err != nil {
		return false
	}

	if s.deps.Auth.Authenticate(username, password) {
		if err := s.conn.WriteMessage("True"); err != nil {
			return false
		}
		s.username = username
		return true
	}

	if err := s.conn.WriteMessage("False"); err != nil {
		return false
	}

	next, err := s.conn.ReadMessage()
	if err == nil && strings.EqualFold(next, "EXIT") {
		log.Printf("[-] failed login from %s exited cleanly", s.raw.RemoteAddr())
	} else {
		log.Printf("[!] dropping unauthenticated connection from %s", s.raw.RemoteAddr())
	}
	return false
}

func (s *Session) loop(ctx context.Context) {
	for {
		raw, err := s.conn.ReadMessage()
		if err != nil {
			log.Printf("[!] connection lost for %s: %v", s.username, err)
			return
		}
		if strings.TrimSpace(raw) == "" {
			continue
		}

		cmd := Parse(raw)
		switch cmd.Kind {
		case KindView:
			s.handleView(ctx)
		case KindAdd:
			s.handleAdd(ctx, cmd)
		case KindRemove:
			s.handleRemove(cmd)
		case KindCart:
			s.respond(s.cart.Render(s.rate, s.code))
		case KindReceipt:
			s.handleReceipt()
		case KindCheckout:
			s.handleCheckout(ctx)
		case KindHistory:
			s.handleHistory(ctx)
		case KindChangeStock:
			s.handleChangeStock(ctx, cmd)
		case KindCurrency:
			s.handleCurrency(ctx, cmd)
		case KindChart:
			s.handleChart(ctx)
		case KindExit:
			s.respond("Goodbye!")
			return
		case KindMalformed:
			s.respond(cmd.Usage)
		default:
			s.respond("Invalid command.")
		}
	}
}

func (s *Session) handleView(ctx context.Context) {
	if err := s.deps.Inventory.Refresh(ctx); err != nil {
		log.Printf("[!] inventory refresh failed: %v", err)
	}

	var b strings.Builder
	b.WriteString("Available Products:\n")
	b.WriteString("ID ITEM PRICE STOCK\n")
	for _, p := range s.deps.Inventory.List() {
		fmt.Fprintf(&b, "%d %s %s %d\n",
			p.ID, p.Name, currency.Format(p.Price*s.rate, s.code), p.Stock)
	}
	s.respond(b.String())
}

func (s *Session) handleAdd(ctx context.Context, cmd Command) {
	if err := s.deps.Inventory.Refresh(ctx); err != nil {
		log.Printf("[!] inventory refresh failed: %v", err)
	}

	line, err := s.cart.Add(cmd.ProductID, cmd.Quantity, s.deps.Inventory)
	switch {
	case err == nil:
		s.respond(fmt.Sprintf("%d units of '%s' added to cart.", cmd.Quantity, line.Name))
	case errors.Is(err, domain.ErrProductNotFound):
		s.respond(fmt.Sprintf("The product ID '%d' doesn't exist.", cmd.ProductID))
	case errors.Is(err, domain.ErrInsufficientStock):
		s.respond("There isn't enough stock.")
	default:
		s.respond("Could not add to cart.")
	}
}

func (s *Session) handleRemove(cmd Command) {
	removed, line, err := s.cart.Remove(cmd.ProductID, cmd.Quantity, s.deps.Inventory)
	switch {
	case err == nil:
		s.respond(fmt.Sprintf("Removed %d units of '%s' from cart.", removed, line.Name))
	case errors.Is(err, domain.ErrNotInCart):
		s.respond(fmt.Sprintf("Product %d is not in your cart.", cmd.ProductID))
	default:
		s.respond("Could not remove from cart.")
	}
}

func (s *Session) handleReceipt() {
	if s.cart.Empty() {
		s.respond("Empty")
		return
	}
	s.respond(s.renderReceipt())
}

// handleCheckout settles the cart against the durable store. Settlement
// is all-or-nothing: any failed line rolls back every already-applied
// delta before the failure is reported, and the cart stays intact so the
// client can retry.
func (s *Session) handleCheckout(ctx context.Context) {
	if s.cart.Empty() {
		s.respond("The cart is empty.")
		return
	}

	// Lines() is sorted by product id, which gives all sessions the same
	// settlement order for overlapping carts.
	lines := s.cart.Lines()

	var applied []domain.CartLine
	for _, line := range lines {
		if err := s.deps.Store.ApplyStockDelta(ctx, line.ProductID, -line.Quantity); err != nil {
			s.rollback(ctx, applied)
			switch {
			case errors.Is(err, domain.ErrInsufficientStock):
				s.respond(fmt.Sprintf("Checkout failed: not enough stock for '%s'.", line.Name))
			case errors.Is(err, domain.ErrProductNotFound):
				s.respond(fmt.Sprintf("Checkout failed: '%s' is no longer available.", line.Name))
			default:
				log.Printf("[!] checkout settlement error for %s: %v", s.username, err)
				s.respond("Checkout failed: store unavailable, please try again.")
			}
			return
		}
		applied = append(applied, line)
	}

	now := time.Now().UTC()
	txIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		rec := domain.TransactionRecord{
			ID:          uuid.New().String(),
			ProductID:   line.ProductID,
			ProductName: line.Name,
			Quantity:    line.Quantity,
			Total:       line.Total,
			Username:    s.username,
			CreatedAt:   now,
		}
		if err := s.deps.Store.AppendTransaction(ctx, rec); err != nil {
			log.Printf("[!] failed to record transaction for %s: %v", s.username, err)
			continue
		}
		txIDs = append(txIDs, rec.ID)
	}

	event := domain.PurchaseEvent{
		TransactionIDs: txIDs,
		Username:       s.username,
		TotalAmount:    s.cart.Total(),
		Currency:       "USD",
		CreatedAt:      now,
	}
	if err := s.deps.Publisher.Publish(ctx, event); err != nil {
		log.Printf("[!] failed to publish purchase event for %s: %v", s.username, err)
	}

	receipt := s.renderReceipt()

	// The quantities are settled durably now; drop the matching
	// reservations before clearing so availability is not double-counted.
	for _, line := range lines {
		s.deps.Inventory.Release(line.ProductID, line.Quantity)
	}
	s.cart.Clear()

	if err := s.deps.Inventory.Refresh(ctx); err != nil {
		log.Printf("[!] post-checkout refresh failed: %v", err)
	}

	s.respond(receipt)
}

func (s *Session) rollback(ctx context.Context, applied []domain.CartLine) {
	for _, line := range applied {
		if err := s.deps.Store.ApplyStockDelta(ctx, line.ProductID, line.Quantity); err != nil {
			log.Printf("[!] rollback failed for product %d x%d: %v", line.ProductID, line.Quantity, err)
		}
	}
}

func (s *Session) handleHistory(ctx context.Context) {
	records, err := s.deps.Store.RecentTransactions(ctx, historyLimit)
	if err != nil {
		log.Printf("[!] history query failed: %v", err)
		s.respond("Transaction history is unavailable.")
		return
	}
	if len(records) == 0 {
		s.respond("No transactions yet.")
		return
	}

	var b strings.Builder
	b.WriteString("Recent Transactions:\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "%s  %s x%d  %s  %s\n",
			rec.CreatedAt.Format("2006-01-02 15:04"),
			rec.ProductName,
			rec.Quantity,
			currency.Format(rec.Total*s.rate, s.code),
			rec.Username)
	}
	s.respond(b.String())
}

func (s *Session) handleChangeStock(ctx context.Context, cmd Command) {
	if err := s.deps.Store.SetStock(ctx, cmd.ProductID, cmd.Quantity); err != nil {
		switch {
		case errors.Is(err, domain.ErrProductNotFound):
			s.respond(fmt.Sprintf("The product ID '%d' doesn't exist.", cmd.ProductID))
		default:
			log.Printf("[!] change stock failed: %v", err)
			s.respond("Could not update stock.")
		}
		return
	}

	s.deps.Inventory.SetStock(cmd.ProductID, cmd.Quantity)
	s.respond(fmt.Sprintf("Stock for product %d set to %d.", cmd.ProductID, cmd.Quantity))
}

func (s *Session) handleCurrency(ctx context.Context, cmd Command) {
	rate, err := s.deps.Rates.Rate(ctx, cmd.Code)
	if err != nil {
		s.respond(fmt.Sprintf("Unknown currency code '%s'.", cmd.Code))
		return
	}

	s.code = cmd.Code
	s.rate = rate
	s.respond(fmt.Sprintf("Currency set to %s.", cmd.Code))
}

func (s *Session) handleChart(ctx context.Context) {
	payload, err := s.deps.Charts.Render(ctx)
	if err != nil {
		log.Printf("[!] chart render failed: %v", err)
	}
	if len(payload) == 0 {
		if err := s.conn.WriteNoBlob(); err != nil {
			log.Printf("[!] chart response failed: %v", err)
		}
		return
	}
	if err := s.conn.WriteBlob(payload); err != nil {
		log.Printf("[!] chart transfer failed for %s: %v", s.username, err)
	}
}

func (s *Session) renderReceipt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Receipt for %s\n", s.username)
	b.WriteString("ID ITEM TOTAL QTY\n")
	for _, line := range s.cart.Lines() {
		fmt.Fprintf(&b, "%d %s %s %d\n",
			line.ProductID, line.Name, currency.Format(line.Total*s.rate, s.code), line.Quantity)
	}
	fmt.Fprintf(&b, "TOTAL %s", currency.Format(s.cart.Total()*s.rate, s.code))
	return b.String()
}

// respond sends exactly one reply per command. A response that would not
// fit a single frame is cut at the last full line that fits, so the
// client's read never blocks and never sees a torn line.
func (s *Session) respond(msg string) {
	if len(msg) > protocol.BufSize {
		cut := strings.LastIndexByte(msg[:protocol.BufSize], '\n')
		if cut <= 0 {
			cut = protocol.BufSize
		}
		msg = msg[:cut]
	}
	if err := s.conn.WriteMessage(msg); err != nil {
		log.Printf("[!] write failed for %s: %v", s.username, err)
	}
}
