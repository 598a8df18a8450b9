package domain

// Product is one catalog entry. Stock is the durable count in the store;
// the inventory snapshot reports it net of in-memory reservations.
type Product struct {
	ID    int64
	Name  string
	Price float64
	Stock int
}

// CartLine is a single product held in a session's cart. UnitPrice is a
// snapshot of the price at reservation time.
type CartLine struct {
	ProductID int64
	Name      string
	Quantity  int
	UnitPrice float64
	Total     float64
}
