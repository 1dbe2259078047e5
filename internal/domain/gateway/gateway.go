// Package gateway names the payment rails an entry can settle on and the
// fee calculator the ledger consults for them.
package gateway

import (
	"coop-ledger/pkg/money"

	"github.com/shopspring/decimal"
)

type Method string

const (
	Balance Method = "BALANCE"
	Pix     Method = "PIX"
	Card    Method = "CARD"
)

func (m Method) External() bool { return m == Pix || m == Card }

func (m Method) Valid() bool { return m == Balance || m.External() }

// Calculator is a pure function of amount and rail.
type Calculator interface {
	Cost(amount money.Cents, method Method) money.Cents
}

// CalculatorFunc adapts a plain function to Calculator.
type CalculatorFunc func(amount money.Cents, method Method) money.Cents

func (f CalculatorFunc) Cost(amount money.Cents, method Method) money.Cents { return f(amount, method) }

// Rate is the pricing of one external rail.
type Rate struct {
	Percent decimal.Decimal
	Fixed   money.Cents
}

// Table prices each external rail; the balance rail is free.
type Table map[Method]Rate

func (t Table) Cost(amount money.Cents, method Method) money.Cents {
	if !method.External() || amount <= 0 {
		return 0
	}
	r, ok := t[method]
	if !ok {
		return 0
	}
	return amount.Mul(r.Percent) + r.Fixed
}
