package server

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kshitij406/VendingMachine/internal/auth"
	"github.com/kshitij406/VendingMachine/internal/currency"
	"github.com/kshitij406/VendingMachine/internal/domain"
	"github.com/kshitij406/VendingMachine/internal/inventory"
	"github.com/kshitij406/VendingMachine/internal/protocol"
	"github.com/kshitij406/VendingMachine/internal/publisher"
	"github.com/kshitij406/VendingMachine/internal/session"
)

type memStore struct {
	mu       sync.Mutex
	products map[int64]domain.Product
}

func (s *memStore) LoadAll(ctx context.Context) (map[int64]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]domain.Product, len(s.products))
	for id, p := range s.products {
		out[id] = p
	}
	return out, nil
}

func (s *memStore) ApplyStockDelta(ctx context.Context, productID int64, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if p.Stock+delta < 0 {
		return domain.ErrInsufficientStock
	}
	p.Stock += delta
	s.products[productID] = p
	return nil
}

func (s *memStore) SetStock(ctx context.Context, productID int64, stock int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Stock = stock
	s.products[productID] = p
	return nil
}

func (s *memStore) AppendTransaction(ctx context.Context, rec domain.TransactionRecord) error {
	return nil
}

func (s *memStore) RecentTransactions(ctx context.Context, limit int) ([]domain.TransactionRecord, error) {
	return nil, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) stock(productID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Stock
}

type noChart struct{}

func (noChart) Render(ctx context.Context) ([]byte, error) { return nil, nil }

func startServer(t *testing.T) (*Server, *memStore) {
	store := &memStore{products: map[int64]domain.Product{
		7: {ID: 7, Name: "Soda", Price: 1.50, Stock: 10},
	}}
	snap := inventory.NewSnapshot(store)

	srv := New("127.0.0.1:0", session.Deps{
		Store:     store,
		Inventory: snap,
		Auth:      auth.NewStatic(map[string]string{"alice": "pw", "bob": "pw"}),
		Rates:     currency.NewStatic(),
		Charts:    noChart{},
		Publisher: publisher.Nop{},
	})
	require.NoError(t, srv.Listen())

	go srv.Serve(context.Background())
	t.Cleanup(srv.Shutdown)
	return srv, store
}

type client struct {
	conn *protocol.Conn
	raw  net.Conn
}

func dial(t *testing.T, srv *Server) *client {
	raw, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return &client{conn: protocol.NewConn(raw), raw: raw}
}

func (c *client) login(t *testing.T, username, password string) {
	require.NoError(t, c.conn.WriteMessage(username))
	// The auth preamble is two sequential writes; give the reader a beat
	// so loopback delivery cannot coalesce them into one read.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.conn.WriteMessage(password))
	reply, err := c.conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "True", reply)
}

func (c *client) exchange(t *testing.T, cmd string) string {
	require.NoError(t, c.conn.WriteMessage(cmd))
	reply, err := c.conn.ReadMessage()
	require.NoError(t, err)
	return reply
}

func TestServe_SessionRoundTrip(t *testing.T) {
	srv, _ := startServer(t)

	c := dial(t, srv)
	c.login(t, "alice", "pw")

	require.Eventually(t, func() bool { return srv.ActiveSessions() == 1 },
		time.Second, 10*time.Millisecond)

	out := c.exchange(t, "VIEW")
	assert.Contains(t, out, "7 Soda $1.50 10")

	assert.Equal(t, "Goodbye!", c.exchange(t, "EXIT"))

	require.Eventually(t, func() bool { return srv.ActiveSessions() == 0 },
		time.Second, 10*time.Millisecond)
}

// Two sessions racing for the same product: with stock 10, the first
// ADD 7 6 wins and the second is rejected at reservation time.
func TestServe_ConcurrentReservation(t *testing.T) {
	srv, _ := startServer(t)

	c1 := dial(t, srv)
	c1.login(t, "alice", "pw")
	c2 := dial(t, srv)
	c2.login(t, "bob", "pw")

	assert.Equal(t, "6 units of 'Soda' added to cart.", c1.exchange(t, "ADD 7 6"))
	assert.Equal(t, "There isn't enough stock.", c2.exchange(t, "ADD 7 6"))

	// The loser can still take what is left.
	assert.Equal(t, "4 units of 'Soda' added to cart.", c2.exchange(t, "ADD 7 4"))

	c1.exchange(t, "EXIT")
	c2.exchange(t, "EXIT")
}

// Two carts over the same product jointly exceed durable stock after an
// admin edit. Of two simultaneous checkouts exactly one settles; the
// other fails whole and its delta is unwound.
func TestServe_ConcurrentCheckoutSettlement(t *testing.T) {
	srv, store := startServer(t)

	c1 := dial(t, srv)
	c1.login(t, "alice", "pw")
	c2 := dial(t, srv)
	c2.login(t, "bob", "pw")

	require.Equal(t, "6 units of 'Soda' added to cart.", c1.exchange(t, "ADD 7 6"))
	require.Equal(t, "4 units of 'Soda' added to cart.", c2.exchange(t, "ADD 7 4"))

	// Durable stock drops below the combined carts; only one can settle.
	require.Equal(t, "Stock for product 7 set to 6.", c1.exchange(t, "CHANGE_STOCK 7 6"))

	replies := make(chan string, 2)
	var wg sync.WaitGroup
	for _, c := range []*client{c1, c2} {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			if err := c.conn.WriteMessage("CHECKOUT"); err != nil {
				replies <- "write failed: " + err.Error()
				return
			}
			reply, err := c.conn.ReadMessage()
			if err != nil {
				replies <- "read failed: " + err.Error()
				return
			}
			replies <- reply
		}(c)
	}
	wg.Wait()
	close(replies)

	var receipts, failures int
	for reply := range replies {
		switch {
		case strings.HasPrefix(reply, "Receipt for"):
			receipts++
		case strings.HasPrefix(reply, "Checkout failed"):
			failures++
		default:
			t.Fatalf("unexpected checkout reply: %q", reply)
		}
	}
	assert.Equal(t, 1, receipts)
	assert.Equal(t, 1, failures)

	// Remaining stock is 6 minus exactly one winning cart, never both.
	assert.Contains(t, []int{0, 2}, store.stock(7))

	c1.exchange(t, "EXIT")
	c2.exchange(t, "EXIT")
}

// Shutdown must not wait on clients that never speak again.
func TestShutdown_TerminatesIdleSessions(t *testing.T) {
	srv, _ := startServer(t)

	c := dial(t, srv)
	c.login(t, "alice", "pw")
	require.Eventually(t, func() bool { return srv.ActiveSessions() == 1 },
		time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		srv.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown hung on an idle session")
	}
	assert.Equal(t, int64(0), srv.ActiveSessions())
}
