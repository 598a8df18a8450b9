package session

import (
	"strconv"
	"strings"
)

// Kind tags the closed set of protocol commands. Anything the parser
// cannot place lands on KindInvalid or KindMalformed, never on undefined
// behavior.
type Kind int

const (
	KindView Kind = iota
	KindAdd
	KindRemove
	KindCart
	KindReceipt
	KindCheckout
	KindHistory
	KindChangeStock
	KindCurrency
	KindChart
	KindExit
	KindInvalid
	KindMalformed
)

type Command struct {
	Kind      Kind
	ProductID int64
	Quantity  int
	Code      string
	Usage     string
}

// Parse tokenizes one command line. Verbs are case-insensitive; argument
// order is literal. Wrong arity or argument type yields KindMalformed
// with a usage string rather than terminating the session.
func Parse(raw string) Command {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Command{Kind: KindInvalid}
	}

	verb := strings.ToUpper(fields[0])
	args := fields[1:]

	switch verb {
	case "VIEW":
		return bare(KindView, args)
	case "CART":
		return bare(KindCart, args)
	case "RECEIPT":
		return bare(KindReceipt, args)
	case "CHECKOUT":
		return bare(KindCheckout, args)
	case "HISTORY":
		return bare(KindHistory, args)
	case "CHART":
		return bare(KindChart, args)
	case "EXIT":
		return bare(KindExit, args)
	case "ADD":
		return idQty(KindAdd, args, "Usage: ADD <product_id> <quantity>", true)
	case "REMOVE":
		return idQty(KindRemove, args, "Usage: REMOVE <product_id> <quantity>", true)
	case "CHANGE_STOCK":
		return idQty(KindChangeStock, args, "Usage: CHANGE_STOCK <product_id> <new_stock>", false)
	case "CURRENCY":
		if len(args) != 1 {
			return Command{Kind: KindMalformed, Usage: "Usage: CURRENCY <currency_code>"}
		}
		return Command{Kind: KindCurrency, Code: strings.ToUpper(args[0])}
	default:
		return Command{Kind: KindInvalid}
	}
}

func bare(kind Kind, args []string) Command {
	if len(args) != 0 {
		return Command{Kind: KindInvalid}
	}
	return Command{Kind: kind}
}

// idQty parses <product_id> <quantity> pairs. positive requires quantity
// > 0 (ADD/REMOVE); CHANGE_STOCK accepts zero to empty a slot.
func idQty(kind Kind, args []string, usage string, positive bool) Command {
	malformed := Command{Kind: KindMalformed, Usage: usage}
	if len(args) != 2 {
		return malformed
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return malformed
	}

	qty, err := strconv.Atoi(args[1])
	if err != nil || qty < 0 || (positive && qty == 0) {
		return malformed
	}

	return Command{Kind: kind, ProductID: id, Quantity: qty}
}
