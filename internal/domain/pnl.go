package domain

import "time"

// PnLComponent names one attribution bucket. The set is closed; consumers
// switch over it exhaustively.
type PnLComponent string

const (
	PnLSupplyYield       PnLComponent = "supply_yield"
	PnLBorrowCost        PnLComponent = "borrow_cost"
	PnLPriceAppreciation PnLComponent = "price_appreciation"
	PnLFundingCost       PnLComponent = "funding_cost"
	PnLStakingYield      PnLComponent = "staking_yield"
	PnLTradingFlows      PnLComponent = "trading_flows"
)

// PnLComponents lists the attribution buckets in canonical order.
func PnLComponents() []PnLComponent {
	return []PnLComponent{
		PnLSupplyYield, PnLBorrowCost, PnLPriceAppreciation,
		PnLFundingCost, PnLStakingYield, PnLTradingFlows,
	}
}

// PnLReconciliation records the agreement check between the two
// independently derived P&L figures. A failed check is a data-quality
// signal, not a pipeline error: the record still ships.
type PnLReconciliation struct {
	Passed     bool
	Difference float64
	Tolerance  float64
}

// PnLRecord is the period P&L between two consecutive exposure snapshots,
// in share-class currency.
type PnLRecord struct {
	Timestamp     time.Time
	PrevTimestamp time.Time
	ShareClass    string

	// BalanceBased is current total value minus previous total value.
	BalanceBased float64
	// Attribution holds each named component, always fully keyed.
	Attribution map[PnLComponent]float64
	// AttributionTotal is the sum over Attribution.
	AttributionTotal float64

	Reconciliation PnLReconciliation

	Warnings []Warning
}

// NewAttribution returns an attribution map with every component zero-filled.
func NewAttribution() map[PnLComponent]float64 {
	m := make(map[PnLComponent]float64, 6)
	for _, c := range PnLComponents() {
		m[c] = 0
	}
	return m
}
