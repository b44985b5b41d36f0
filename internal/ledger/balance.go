package ledger

import "github.com/shopspring/decimal"

// Balance is a read-only aggregation of one agent's position, grouped by
// instrument kind. Building one never mutates state.
type Balance struct {
	Agent       AgentID
	Assets      map[InstrumentKind]decimal.Decimal
	Liabilities map[InstrumentKind]decimal.Decimal
}

// AssetTotal sums all asset amounts, financial and non-financial alike.
func (b Balance) AssetTotal() decimal.Decimal {
	return sumByKind(b.Assets, nil)
}

// LiabilityTotal sums all liability amounts.
func (b Balance) LiabilityTotal() decimal.Decimal {
	return sumByKind(b.Liabilities, nil)
}

// FinancialAssets sums asset amounts over financial kinds only.
func (b Balance) FinancialAssets() decimal.Decimal {
	fin := true
	return sumByKind(b.Assets, &fin)
}

// NonFinancialAssets sums asset amounts over non-financial kinds only.
func (b Balance) NonFinancialAssets() decimal.Decimal {
	fin := false
	return sumByKind(b.Assets, &fin)
}

func sumByKind(m map[InstrumentKind]decimal.Decimal, financial *bool) decimal.Decimal {
	total := decimal.Zero
	for kind, amt := range m {
		if financial != nil && kind.IsFinancial() != *financial {
			continue
		}
		total = total.Add(amt)
	}
	return total
}

// AgentBalance aggregates an agent's live instruments by kind.
func (l *Ledger) AgentBalance(id AgentID) (Balance, error) {
	a, err := l.agent("agent_balance", id)
	if err != nil {
		return Balance{}, err
	}
	b := Balance{
		Agent:       id,
		Assets:      make(map[InstrumentKind]decimal.Decimal),
		Liabilities: make(map[InstrumentKind]decimal.Decimal),
	}
	for _, iid := range a.Assets {
		if in, ok := l.state.instruments[iid]; ok {
			b.Assets[in.Kind] = b.Assets[in.Kind].Add(in.Amount)
		}
	}
	for _, iid := range a.Liabilities {
		if in, ok := l.state.instruments[iid]; ok {
			b.Liabilities[in.Kind] = b.Liabilities[in.Kind].Add(in.Amount)
		}
	}
	return b, nil
}

// TrialBalance holds system-wide totals. Under double entry, Assets and
// Liabilities are always equal; a divergence means corruption.
type TrialBalance struct {
	Assets      decimal.Decimal
	Liabilities decimal.Decimal
}

// Balanced reports whether the two sides agree.
func (t TrialBalance) Balanced() bool {
	return t.Assets.Equal(t.Liabilities)
}

// TrialBalance totals every live instrument once per side.
func (l *Ledger) TrialBalance() TrialBalance {
	t := TrialBalance{Assets: decimal.Zero, Liabilities: decimal.Zero}
	for _, in := range l.state.instruments {
		t.Assets = t.Assets.Add(in.Amount)
		t.Liabilities = t.Liabilities.Add(in.Amount)
	}
	return t
}

// CashOutstanding returns the running total of central-bank cash.
func (l *Ledger) CashOutstanding() decimal.Decimal {
	return l.state.cashOutstanding
}

// ReservesOutstanding returns the running total of central-bank reserves.
func (l *Ledger) ReservesOutstanding() decimal.Decimal {
	return l.state.reservesOutstanding
}
