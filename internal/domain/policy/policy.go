// Package policy holds the tunable business rules: credit tiers, revenue
// splits, fee schedules and sweep windows. Values come from configuration;
// Default returns the production defaults.
package policy

import (
	"sort"
	"time"

	"coop-ledger/pkg/money"

	"github.com/shopspring/decimal"
)

// Tier applies Multiplier to members holding at least MinUnits ACTIVE units.
type Tier struct {
	MinUnits   int64
	Multiplier decimal.Decimal
}

type Credit struct {
	UnitPrice       money.Cents
	ReserveRatio    decimal.Decimal
	Tiers           []Tier
	Base            money.Cents
	ScoreFactor     money.Cents
	PaidLoanBonus   decimal.Decimal
	LowScore        int
	LowScoreCap     money.Cents
	MaxLimit        money.Cents
	TermDays        int
	InterestRate    decimal.Decimal
	PenaltyRate     decimal.Decimal
	MaxInstallments int
}

// Multiplier returns the tier multiplier for a holder of units.
func (c Credit) Multiplier(units int64) decimal.Decimal {
	tiers := append([]Tier(nil), c.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinUnits < tiers[j].MinUnits })
	m := decimal.Zero
	for _, t := range tiers {
		if units >= t.MinUnits {
			m = t.Multiplier
		}
	}
	return m
}

// RevenueSplit sends ProfitShare of a fee to the profit pool and the rest to
// operational cash.
type RevenueSplit struct {
	ProfitShare decimal.Decimal
}

// Apply returns the profit pool and operational cash portions of fee.
func (s RevenueSplit) Apply(fee money.Cents) (profit, operational money.Cents) {
	return money.Split(fee, s.ProfitShare)
}

type Fees struct {
	// FeeSplit covers interest and every fee except withdrawals.
	FeeSplit RevenueSplit
	// WithdrawalFeeSplit keeps 85% in operational cash and 15% in the pool.
	WithdrawalFeeSplit RevenueSplit

	WithdrawalFixedFee money.Cents
	WithdrawalRate     decimal.Decimal
	WithdrawalMinFee   money.Cents

	QuotaAdminFee money.Cents
	ReferralBonus money.Cents
	PayoffScore   int
	UpgradePrice  money.Cents
}

// WithdrawalFee is the fixed fee for members whose collateral covers the
// amount, otherwise max(rate × amount, minimum).
func (f Fees) WithdrawalFee(amount, collateral money.Cents) money.Cents {
	if collateral >= amount {
		return f.WithdrawalFixedFee
	}
	return money.Max(amount.Mul(f.WithdrawalRate), f.WithdrawalMinFee)
}

type Liquidation struct {
	Grace time.Duration
}

type Distribution struct {
	HolderShare decimal.Decimal
}

type Policy struct {
	Credit       Credit
	Fees         Fees
	Liquidation  Liquidation
	Distribution Distribution
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func Default() Policy {
	return Policy{
		Credit: Credit{
			UnitPrice:    money.FromUnits(50),
			ReserveRatio: d("0.30"),
			Tiers: []Tier{
				{MinUnits: 0, Multiplier: d("1.2")},
				{MinUnits: 10, Multiplier: d("1.5")},
				{MinUnits: 50, Multiplier: d("2.0")},
				{MinUnits: 100, Multiplier: d("3.0")},
			},
			Base:            money.FromUnits(50),
			ScoreFactor:     money.FromUnits(5),
			PaidLoanBonus:   d("0.20"),
			LowScore:        100,
			LowScoreCap:     money.FromUnits(300),
			MaxLimit:        money.FromUnits(50_000),
			TermDays:        30,
			InterestRate:    d("0.20"),
			PenaltyRate:     d("0.02"),
			MaxInstallments: 12,
		},
		Fees: Fees{
			FeeSplit:           RevenueSplit{ProfitShare: d("0.85")},
			WithdrawalFeeSplit: RevenueSplit{ProfitShare: d("0.15")},
			WithdrawalFixedFee: money.FromUnits(2),
			WithdrawalRate:     d("0.02"),
			WithdrawalMinFee:   money.FromUnits(5),
			QuotaAdminFee:      money.FromUnits(2),
			ReferralBonus:      money.FromUnits(5),
			PayoffScore:        10,
			UpgradePrice:       money.FromUnits(30),
		},
		Liquidation:  Liquidation{Grace: 5 * 24 * time.Hour},
		Distribution: Distribution{HolderShare: d("0.85")},
	}
}
