// Package reward computes the prize split for a game's survivors. The math
// is pure and deterministic: the same pool and winner list always produce
// the same shares, and the shares never sum to more than the pool.
package reward

import "github.com/shopspring/decimal"

var cent = decimal.New(1, -2)

// Share is one winner's cut.
type Share struct {
	Recipient string
	Amount    decimal.Decimal
}

// Distribution is a computed, not persisted, value object.
type Distribution struct {
	Pool        decimal.Decimal
	WinnerCount int
	Base        decimal.Decimal
	Shares      []Share
}

// Distribute splits pool across winners. With no winners the pool goes
// unclaimed. A sole winner takes the whole pool unrounded. Otherwise each
// winner gets the pool divided down to whole cents, and the leftover cents
// go one each to the earliest winners in the given order (callers pass
// winners in stable join order, so the allocation is reproducible across
// processes).
func Distribute(pool decimal.Decimal, winners []string) Distribution {
	d := Distribution{Pool: pool, WinnerCount: len(winners)}
	if len(winners) == 0 {
		return d
	}
	if len(winners) == 1 {
		d.Base = pool
		d.Shares = []Share{{Recipient: winners[0], Amount: pool}}
		return d
	}

	n := decimal.NewFromInt(int64(len(winners)))
	base := pool.Div(n).RoundDown(2)
	remainderCents := pool.Sub(base.Mul(n)).Div(cent).Round(0).IntPart()

	d.Base = base
	d.Shares = make([]Share, len(winners))
	for i, w := range winners {
		amount := base
		if int64(i) < remainderCents {
			amount = amount.Add(cent)
		}
		d.Shares[i] = Share{Recipient: w, Amount: amount}
	}
	return d
}

// Total sums the allocated shares.
func (d Distribution) Total() decimal.Decimal {
	total := decimal.Zero
	for _, s := range d.Shares {
		total = total.Add(s.Amount)
	}
	return total
}
