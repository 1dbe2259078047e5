package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"coop-ledger/internal/domain/gateway"
	"coop-ledger/internal/domain/loan"
	"coop-ledger/internal/domain/member"
	"coop-ledger/pkg/money"
)

var ErrUnknownMetadata = errors.New("unknown ledger metadata kind")

// Metadata is the type-specific side data of an entry. The set of
// implementations is closed; each variant carries only its own fields.
type Metadata interface {
	Kind() Type
	sealed()
}

type BuyQuota struct {
	Quantity  int            `json:"quantity"`
	UnitPrice money.Cents    `json:"unit_price"`
	AdminFee  money.Cents    `json:"admin_fee"`
	Method    gateway.Method `json:"method"`
}

// LoanPayment parks the loan in PAYMENT_PENDING; Resume is the status it
// goes back to if the payment does not settle it.
type LoanPayment struct {
	LoanID string         `json:"loan_id"`
	Method gateway.Method `json:"method"`
	Resume loan.Status    `json:"resume,omitempty"`
}

// ResumeStatus defaults to APPROVED for entries filed before Resume existed.
func (p LoanPayment) ResumeStatus() loan.Status {
	if p.Resume == "" {
		return loan.StatusApproved
	}
	return p.Resume
}

// Withdrawal pays Net out over Method; Fee stays in the cooperative.
type Withdrawal struct {
	Net         money.Cents    `json:"net"`
	Fee         money.Cents    `json:"fee"`
	Destination string         `json:"destination"`
	Method      gateway.Method `json:"method"`
}

type MembershipUpgrade struct {
	Plan   member.Membership `json:"plan"`
	Method gateway.Method    `json:"method"`
}

type MarketPurchase struct {
	OrderID  string         `json:"order_id"`
	SellerID uint64         `json:"seller_id"`
	Fee      money.Cents    `json:"fee"`
	Method   gateway.Method `json:"method"`
}

type MarketBoost struct {
	ListingID string         `json:"listing_id"`
	Days      int            `json:"days"`
	Method    gateway.Method `json:"method"`
}

type SystemLiquidation struct {
	LoanID string      `json:"loan_id"`
	Units  int         `json:"units"`
	Debt   money.Cents `json:"debt"`
}

type ReferralBonus struct {
	ReferredMemberID uint64 `json:"referred_member_id"`
	SourceEntryID    string `json:"source_entry_id"`
}

type ProfitShare struct {
	Units int64 `json:"units"`
}

type GameWager struct {
	Game string `json:"game"`
}

func (BuyQuota) Kind() Type          { return TypeBuyQuota }
func (LoanPayment) Kind() Type       { return TypeLoanPayment }
func (Withdrawal) Kind() Type        { return TypeWithdrawal }
func (MembershipUpgrade) Kind() Type { return TypeMembershipUpgrade }
func (MarketPurchase) Kind() Type    { return TypeMarketPurchase }
func (MarketBoost) Kind() Type       { return TypeMarketBoost }
func (SystemLiquidation) Kind() Type { return TypeSystemLiquidation }
func (ReferralBonus) Kind() Type     { return TypeReferralBonus }
func (ProfitShare) Kind() Type       { return TypeProfitShare }
func (GameWager) Kind() Type         { return TypeGameWager }

func (BuyQuota) sealed()          {}
func (LoanPayment) sealed()       {}
func (Withdrawal) sealed()        {}
func (MembershipUpgrade) sealed() {}
func (MarketPurchase) sealed()    {}
func (MarketBoost) sealed()       {}
func (SystemLiquidation) sealed() {}
func (ReferralBonus) sealed()     {}
func (ProfitShare) sealed()       {}
func (GameWager) sealed()         {}

// PaymentMethod returns the rail an entry was paid with, or gateway.Balance
// for variants that never leave the ledger.
func PaymentMethod(m Metadata) gateway.Method {
	switch v := m.(type) {
	case BuyQuota:
		return v.Method
	case LoanPayment:
		return v.Method
	case MembershipUpgrade:
		return v.Method
	case MarketPurchase:
		return v.Method
	case MarketBoost:
		return v.Method
	}
	return gateway.Balance
}

// Payload stores a Metadata variant as kind-tagged JSON.
type Payload struct {
	Data Metadata
}

func Wrap(m Metadata) Payload { return Payload{Data: m} }

type envelope struct {
	Kind Type            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Data == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(p.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: p.Data.Kind(), Data: data})
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		p.Data = nil
		return nil
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	m, err := decode(env.Kind, env.Data)
	if err != nil {
		return err
	}
	p.Data = m
	return nil
}

func decode(kind Type, data json.RawMessage) (Metadata, error) {
	switch kind {
	case TypeBuyQuota:
		return unmarshalAs[BuyQuota](data)
	case TypeLoanPayment:
		return unmarshalAs[LoanPayment](data)
	case TypeWithdrawal:
		return unmarshalAs[Withdrawal](data)
	case TypeMembershipUpgrade:
		return unmarshalAs[MembershipUpgrade](data)
	case TypeMarketPurchase:
		return unmarshalAs[MarketPurchase](data)
	case TypeMarketBoost:
		return unmarshalAs[MarketBoost](data)
	case TypeSystemLiquidation:
		return unmarshalAs[SystemLiquidation](data)
	case TypeReferralBonus:
		return unmarshalAs[ReferralBonus](data)
	case TypeProfitShare:
		return unmarshalAs[ProfitShare](data)
	case TypeGameWager:
		return unmarshalAs[GameWager](data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMetadata, kind)
}

func unmarshalAs[T Metadata](data json.RawMessage) (Metadata, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Value implements driver.Valuer.
func (p Payload) Value() (driver.Value, error) {
	b, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (p *Payload) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		p.Data = nil
		return nil
	case []byte:
		return p.UnmarshalJSON(v)
	case string:
		return p.UnmarshalJSON([]byte(v))
	}
	return fmt.Errorf("ledger: cannot scan %T into Payload", src)
}
