package core_test

import (
	gomath "math"
	"testing"

	"SpotVault/internal/core"
	"SpotVault/internal/event"
	"SpotVault/internal/ledger"

	"github.com/google/uuid"
)

// --- Test helpers ---

// Fixed synthetic epoch. All event timestamps are offsets from this instant.
const baseSeconds = int64(1_000_000)

func tsMicros(offsetSeconds int64) int64 {
	return (baseSeconds + offsetSeconds) * 1_000_000
}

// newTestCore creates a VaultCore with buffered channels and no DB checker.
func newTestCore() (*core.VaultCore, chan core.CoreOutput, chan core.CoreOutput) {
	persistChan := make(chan core.CoreOutput, 1024)
	projChan := make(chan core.CoreOutput, 1024)
	c := core.NewVaultCore(0, persistChan, projChan, nil, nil)
	return c, persistChan, projChan
}

func mustMarketInitialized(market uint16, name, asset string, seq, offsetSeconds int64) *event.MarketInitialized {
	return &event.MarketInitialized{
		Market:                     market,
		Name:                       name,
		Asset:                      asset,
		OptimalUtilization:         700_000,   // 70%
		OptimalRate:                100_000,   // 10% annual at the kink
		MaxRate:                    1_000_000, // 100% annual at full utilization
		InsuranceWithdrawPeriod:    3_600,
		RevenueSettlePeriod:        3_600,
		IfFactorNumerator:          1,
		IfFactorDenominator:        2,
		LiquidatorFee:              10_000, // 1%
		IfLiquidationFee:           5_000,
		MaintenanceAssetWeight:     900_000,   // 90%
		MaintenanceLiabilityWeight: 1_100_000, // 110%
		OracleStalenessThreshold:   86_400,
		Sequence:                   seq,
		Timestamp:                  tsMicros(offsetSeconds),
	}
}

func mustDeposit(authority uuid.UUID, market uint16, amount, seq, offsetSeconds int64) *event.Deposit {
	return &event.Deposit{
		DepositID: uuid.New(),
		Authority: authority,
		Market:    market,
		Amount:    amount,
		Sequence:  seq,
		Timestamp: tsMicros(offsetSeconds),
	}
}

func mustWithdrawal(authority uuid.UUID, market uint16, amount, seq, offsetSeconds int64) *event.Withdrawal {
	return &event.Withdrawal{
		WithdrawalID: uuid.New(),
		Authority:    authority,
		Market:       market,
		Amount:       amount,
		Sequence:     seq,
		Timestamp:    tsMicros(offsetSeconds),
	}
}

func mustOraclePrice(market uint16, price, priceSeq, offsetSeconds int64) *event.OraclePriceUpdate {
	return &event.OraclePriceUpdate{
		Market:         market,
		Price:          price,
		Confidence:     price / 1000,
		PriceSequence:  priceSeq,
		PriceTimestamp: tsMicros(offsetSeconds),
	}
}

func mustInterestUpdate(market uint16, seq, offsetSeconds int64) *event.InterestUpdate {
	return &event.InterestUpdate{
		Market:    market,
		Sequence:  seq,
		Timestamp: tsMicros(offsetSeconds),
	}
}

func mustStakeInitialized(authority uuid.UUID, market uint16, seq, offsetSeconds int64) *event.StakeInitialized {
	return &event.StakeInitialized{
		Authority: authority,
		Market:    market,
		Sequence:  seq,
		Timestamp: tsMicros(offsetSeconds),
	}
}

func mustStakeAdded(authority uuid.UUID, market uint16, amount, seq, offsetSeconds int64) *event.StakeAdded {
	return &event.StakeAdded{
		StakeID:   uuid.New(),
		Authority: authority,
		Market:    market,
		Amount:    amount,
		Sequence:  seq,
		Timestamp: tsMicros(offsetSeconds),
	}
}

func mustStakeRemoveRequested(authority uuid.UUID, market uint16, amount, seq, offsetSeconds int64) *event.StakeRemoveRequested {
	return &event.StakeRemoveRequested{
		RequestID: uuid.New(),
		Authority: authority,
		Market:    market,
		Amount:    amount,
		Sequence:  seq,
		Timestamp: tsMicros(offsetSeconds),
	}
}

func mustStakeRemoved(requestID, authority uuid.UUID, market uint16, seq, offsetSeconds int64) *event.StakeRemoved {
	return &event.StakeRemoved{
		RequestID: requestID,
		Authority: authority,
		Market:    market,
		Sequence:  seq,
		Timestamp: tsMicros(offsetSeconds),
	}
}

func mustStakeRemoveCancelled(requestID, authority uuid.UUID, market uint16, seq, offsetSeconds int64) *event.StakeRemoveCancelled {
	return &event.StakeRemoveCancelled{
		RequestID: requestID,
		Authority: authority,
		Market:    market,
		Sequence:  seq,
		Timestamp: tsMicros(offsetSeconds),
	}
}

func mustRevenueSettled(market uint16, seq, offsetSeconds int64) *event.RevenueSettled {
	return &event.RevenueSettled{
		Market:    market,
		Sequence:  seq,
		Timestamp: tsMicros(offsetSeconds),
	}
}

func mustMarketParamsUpdated(market uint16, escrowPeriod *int64, seq, offsetSeconds int64) *event.MarketParamsUpdated {
	return &event.MarketParamsUpdated{
		Market:       market,
		EscrowPeriod: escrowPeriod,
		Sequence:     seq,
		Timestamp:    tsMicros(offsetSeconds),
	}
}

func drainOutputs(ch chan core.CoreOutput) []core.CoreOutput {
	var outputs []core.CoreOutput
	for {
		select {
		case o := <-ch:
			outputs = append(outputs, o)
		default:
			return outputs
		}
	}
}

func mustProcess(t *testing.T, c *core.VaultCore, evt event.Event) {
	t.Helper()
	if err := c.ProcessEvent(evt); err != nil {
		t.Fatalf("ProcessEvent(%T) failed: %v", evt, err)
	}
}

// ============================================================================
// Test: Market Initialization
// ============================================================================

func TestMarketInitialized_EmitsEnvelope(t *testing.T) {
	c, persistCh, _ := newTestCore()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	if outputs[0].Envelope.EventType != event.EventTypeMarketInitialized {
		t.Errorf("expected MarketInitialized event type, got %v", outputs[0].Envelope.EventType)
	}
	if len(outputs[0].Batch.Journals) != 0 {
		t.Errorf("market init should produce no journals, got %d", len(outputs[0].Batch.Journals))
	}
}

func TestMarketInitialized_DuplicateSlot_Fails(t *testing.T) {
	c, persistCh, _ := newTestCore()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	drainOutputs(persistCh)

	// Different idempotency keys collide only on the slot itself
	evt := mustMarketInitialized(0, "USDC-again", "USDC", 1, 1)
	if err := c.ProcessEvent(evt); err == nil {
		t.Fatal("expected error re-initializing market slot, got nil")
	}
}

// ============================================================================
// Test: Deposit Flow
// ============================================================================

func TestDeposit_MovesTokensIntoSpotVault(t *testing.T) {
	c, persistCh, _ := newTestCore()
	authority := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	drainOutputs(persistCh)

	mustProcess(t, c, mustDeposit(authority, 0, 1_000_000, 1, 10))

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}

	batch := outputs[0].Batch
	if len(batch.Journals) != 1 {
		t.Fatalf("expected 1 journal, got %d", len(batch.Journals))
	}

	j := batch.Journals[0]
	if j.JournalType != ledger.JournalTypeDeposit {
		t.Errorf("expected JournalTypeDeposit, got %v", j.JournalType)
	}
	if j.Amount != 1_000_000 {
		t.Errorf("expected amount 1_000_000, got %d", j.Amount)
	}
	if j.DebitAccount != ledger.NewSpotVaultKey(0, ledger.AssetUSDC) {
		t.Errorf("expected spot vault debit, got %s", j.DebitAccount.AccountPath())
	}
}

func TestDeposit_UnknownMarket_Fails(t *testing.T) {
	c, _, _ := newTestCore()
	authority := uuid.New()

	if err := c.ProcessEvent(mustDeposit(authority, 7, 1_000_000, 0, 0)); err == nil {
		t.Fatal("expected error for deposit into unknown market, got nil")
	}
}

func TestMultipleDeposits_SequencesAdvance(t *testing.T) {
	c, persistCh, _ := newTestCore()
	authority := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	for i := int64(1); i <= 5; i++ {
		mustProcess(t, c, mustDeposit(authority, 0, 100_000, i, 10+i))
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 6 {
		t.Fatalf("expected 6 outputs, got %d", len(outputs))
	}
	for i, o := range outputs {
		if o.Envelope.Sequence != int64(i) {
			t.Errorf("output %d: expected sequence %d, got %d", i, i, o.Envelope.Sequence)
		}
	}
}

// ============================================================================
// Test: Withdrawal Flow
// ============================================================================

func TestWithdrawal_ReleasesTokensFromSpotVault(t *testing.T) {
	c, persistCh, _ := newTestCore()
	authority := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustDeposit(authority, 0, 1_000_000, 1, 10))
	drainOutputs(persistCh)

	mustProcess(t, c, mustWithdrawal(authority, 0, 400_000, 2, 20))

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}

	j := outputs[0].Batch.Journals[0]
	if j.JournalType != ledger.JournalTypeWithdrawal {
		t.Errorf("expected JournalTypeWithdrawal, got %v", j.JournalType)
	}
	if j.Amount != 400_000 {
		t.Errorf("expected amount 400_000, got %d", j.Amount)
	}
	if j.CreditAccount != ledger.NewSpotVaultKey(0, ledger.AssetUSDC) {
		t.Errorf("expected spot vault credit, got %s", j.CreditAccount.AccountPath())
	}
}

func TestWithdrawal_FlippingToUncoveredBorrow_Fails(t *testing.T) {
	c, persistCh, _ := newTestCore()
	authority := uuid.New()
	lender := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustDeposit(lender, 0, 10_000_000, 1, 10))
	mustProcess(t, c, mustDeposit(authority, 0, 1_000_000, 2, 11))
	mustProcess(t, c, mustOraclePrice(0, 1_000_000, 1, 12))
	drainOutputs(persistCh)

	// Withdrawing beyond own deposits flips the position to a borrow with no
	// collateral anywhere else — must be rejected.
	err := c.ProcessEvent(mustWithdrawal(authority, 0, 2_000_000, 3, 20))
	if err == nil {
		t.Fatal("expected error for uncovered borrow, got nil")
	}
}

func TestWithdrawal_BorrowDrawAgainstCollateral(t *testing.T) {
	c, persistCh, _ := newTestCore()
	borrower := uuid.New()
	lender := uuid.New()

	// Market 0 = USDC collateral, market 1 = SOL liability
	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustMarketInitialized(1, "SOL", "SOL", 0, 0))
	mustProcess(t, c, mustDeposit(borrower, 0, 1_000_000, 1, 10))
	mustProcess(t, c, mustDeposit(lender, 1, 1_000_000, 1, 10))
	mustProcess(t, c, mustOraclePrice(0, 1_000_000, 1, 11))   // USDC at 1.00
	mustProcess(t, c, mustOraclePrice(1, 20_000_000, 1, 11)) // SOL at 20.00
	drainOutputs(persistCh)

	// Borrow 10k SOL tokens: liability 10k * 20 * 110% = 220k against
	// 1M * 1.00 * 90% = 900k collateral.
	mustProcess(t, c, mustWithdrawal(borrower, 1, 10_000, 2, 20))

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	j := outputs[0].Batch.Journals[0]
	if j.JournalType != ledger.JournalTypeWithdrawal {
		t.Errorf("expected JournalTypeWithdrawal, got %v", j.JournalType)
	}
	if j.AssetID != ledger.AssetSOL {
		t.Errorf("expected SOL journal, got asset %d", j.AssetID)
	}
}

// ============================================================================
// Test: Oracle Price Updates
// ============================================================================

func TestOraclePriceUpdate_Accepted(t *testing.T) {
	c, persistCh, _ := newTestCore()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	drainOutputs(persistCh)

	mustProcess(t, c, mustOraclePrice(0, 1_000_000, 1, 5))

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	if outputs[0].Envelope.EventType != event.EventTypeOraclePriceUpdate {
		t.Errorf("expected OraclePriceUpdate event type, got %v", outputs[0].Envelope.EventType)
	}
	if len(outputs[0].Batch.Journals) != 0 {
		t.Errorf("price update should produce no journals, got %d", len(outputs[0].Batch.Journals))
	}
}

func TestOraclePriceUpdate_StaleIgnored(t *testing.T) {
	c, persistCh, _ := newTestCore()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustOraclePrice(0, 1_000_000, 5, 5))
	drainOutputs(persistCh)

	// Stale price sequence 3 — silently accepted, state unchanged
	if err := c.ProcessEvent(mustOraclePrice(0, 900_000, 3, 6)); err != nil {
		t.Fatalf("stale oracle price should not error: %v", err)
	}
}

func TestOraclePriceUpdate_GapTolerated(t *testing.T) {
	c, persistCh, _ := newTestCore()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustOraclePrice(0, 1_000_000, 1, 5))
	drainOutputs(persistCh)

	// Jump from 1 to 100 — gaps are recorded but accepted
	if err := c.ProcessEvent(mustOraclePrice(0, 1_010_000, 100, 6)); err != nil {
		t.Fatalf("price gap should not error: %v", err)
	}
}

// ============================================================================
// Test: Interest Accrual
// ============================================================================

func TestInterestUpdate_NoJournals(t *testing.T) {
	c, persistCh, _ := newTestCore()
	authority := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustDeposit(authority, 0, 1_000_000, 1, 10))
	drainOutputs(persistCh)

	mustProcess(t, c, mustInterestUpdate(0, 2, 3_600))

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	if len(outputs[0].Batch.Journals) != 0 {
		t.Errorf("interest update should produce no journals, got %d", len(outputs[0].Batch.Journals))
	}
}

// ============================================================================
// Test: Insurance Fund Stake Lifecycle
// ============================================================================

func TestStakeLifecycle_AddRequestRemove(t *testing.T) {
	c, persistCh, _ := newTestCore()
	staker := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustStakeInitialized(staker, 0, 1, 10))
	drainOutputs(persistCh)

	// Stake 500k — first stake mints 1:1
	mustProcess(t, c, mustStakeAdded(staker, 0, 500_000, 2, 20))
	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output for stake add, got %d", len(outputs))
	}
	j := outputs[0].Batch.Journals[0]
	if j.JournalType != ledger.JournalTypeStakeDeposit {
		t.Errorf("expected JournalTypeStakeDeposit, got %v", j.JournalType)
	}
	if j.DebitAccount != ledger.NewInsuranceVaultKey(0, ledger.AssetUSDC) {
		t.Errorf("expected insurance vault debit, got %s", j.DebitAccount.AccountPath())
	}

	// Request 200k out — escrow starts, no tokens move
	req := mustStakeRemoveRequested(staker, 0, 200_000, 3, 30)
	mustProcess(t, c, req)
	outputs = drainOutputs(persistCh)
	if len(outputs[0].Batch.Journals) != 0 {
		t.Errorf("remove request should produce no journals, got %d", len(outputs[0].Batch.Journals))
	}

	// Finalize before escrow matures — rejected
	early := mustStakeRemoved(req.RequestID, staker, 0, 4, 40)
	if err := c.ProcessEvent(early); err == nil {
		t.Fatal("expected escrow error for early unstake, got nil")
	}

	// Finalize after the 3600s escrow — pays exactly the frozen value
	mustProcess(t, c, mustStakeRemoved(req.RequestID, staker, 0, 4, 30+3_601))
	outputs = drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output for unstake, got %d", len(outputs))
	}
	j = outputs[0].Batch.Journals[0]
	if j.JournalType != ledger.JournalTypeUnstakePayout {
		t.Errorf("expected JournalTypeUnstakePayout, got %v", j.JournalType)
	}
	if j.Amount != 200_000 {
		t.Errorf("expected payout 200_000, got %d", j.Amount)
	}
}

func TestStakeRemoveCancelled_NoTokensMove(t *testing.T) {
	c, persistCh, _ := newTestCore()
	staker := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustStakeInitialized(staker, 0, 1, 10))
	mustProcess(t, c, mustStakeAdded(staker, 0, 500_000, 2, 20))
	req := mustStakeRemoveRequested(staker, 0, 200_000, 3, 30)
	mustProcess(t, c, req)
	drainOutputs(persistCh)

	mustProcess(t, c, mustStakeRemoveCancelled(req.RequestID, staker, 0, 4, 40))

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	if len(outputs[0].Batch.Journals) != 0 {
		t.Errorf("cancel should produce no journals, got %d", len(outputs[0].Batch.Journals))
	}

	// After cancelling, a fresh request is allowed again
	mustProcess(t, c, mustStakeRemoveRequested(staker, 0, 100_000, 5, 50))
}

func TestStakeAdded_WithoutInitialize_Fails(t *testing.T) {
	c, persistCh, _ := newTestCore()
	staker := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	drainOutputs(persistCh)

	if err := c.ProcessEvent(mustStakeAdded(staker, 0, 500_000, 1, 10)); err == nil {
		t.Fatal("expected error staking without an initialized stake record, got nil")
	}
}

func TestStakeAdded_HugeStakes_RollupSaturates(t *testing.T) {
	c, persistCh, _ := newTestCore()
	staker := uuid.New()
	const huge = int64(5_000_000_000_000_000_000)

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustMarketInitialized(1, "SOL", "SOL", 0, 0))
	mustProcess(t, c, mustStakeInitialized(staker, 0, 1, 10))
	mustProcess(t, c, mustStakeInitialized(staker, 1, 1, 10))
	mustProcess(t, c, mustStakeAdded(staker, 0, huge, 2, 20))
	drainOutputs(persistCh)

	// The rollup across both markets exceeds int64. It must clamp and the
	// event must still produce an envelope — the journal batch has already
	// been applied by the time the rollup runs.
	mustProcess(t, c, mustStakeAdded(staker, 1, huge, 2, 20))
	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output for second stake, got %d", len(outputs))
	}

	snap := c.CreateSnapshotState()
	var found bool
	for _, s := range snap.Stats {
		if s.Authority == staker {
			found = true
			if s.QuoteAssetInsuranceFundStake != gomath.MaxInt64 {
				t.Errorf("stake rollup: got %d, want MaxInt64", s.QuoteAssetInsuranceFundStake)
			}
		}
	}
	if !found {
		t.Fatal("stats record missing from snapshot")
	}
}

func TestConcurrentRemoveRequests_Rejected(t *testing.T) {
	c, persistCh, _ := newTestCore()
	staker := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustStakeInitialized(staker, 0, 1, 10))
	mustProcess(t, c, mustStakeAdded(staker, 0, 500_000, 2, 20))
	mustProcess(t, c, mustStakeRemoveRequested(staker, 0, 100_000, 3, 30))
	drainOutputs(persistCh)

	if err := c.ProcessEvent(mustStakeRemoveRequested(staker, 0, 50_000, 4, 40)); err == nil {
		t.Fatal("expected error for second concurrent remove request, got nil")
	}
}

func TestCoreOutput_CarriesStateViews(t *testing.T) {
	c, persistCh, _ := newTestCore()
	staker := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	outputs := drainOutputs(persistCh)
	mv := outputs[0].MarketView
	if mv == nil {
		t.Fatal("market view missing on market init output")
	}
	if mv.MarketIndex != 0 || mv.Name != "USDC" || mv.TotalIfShares != 0 {
		t.Errorf("market view: got index=%d name=%q shares=%d", mv.MarketIndex, mv.Name, mv.TotalIfShares)
	}

	mustProcess(t, c, mustStakeInitialized(staker, 0, 1, 10))
	mustProcess(t, c, mustStakeAdded(staker, 0, 500_000, 2, 20))
	outputs = drainOutputs(persistCh)
	last := outputs[len(outputs)-1]

	if last.MarketView == nil || last.MarketView.TotalIfShares != 500_000 {
		t.Errorf("market view after stake: %+v", last.MarketView)
	}
	if last.MarketView.InsuranceVaultBalance != 500_000 {
		t.Errorf("insurance vault balance: got %d, want 500_000", last.MarketView.InsuranceVaultBalance)
	}
	sv := last.StakeView
	if sv == nil {
		t.Fatal("stake view missing on stake add output")
	}
	if sv.Authority != staker || sv.IfShares != 500_000 || sv.LastWithdrawRequestShares != 0 {
		t.Errorf("stake view: %+v", sv)
	}
	if last.StatsView == nil || last.StatsView.QuoteAssetInsuranceFundStake != 500_000 {
		t.Errorf("stats view: %+v", last.StatsView)
	}

	// An open escrow request shows up on the view
	req := mustStakeRemoveRequested(staker, 0, 200_000, 3, 30)
	mustProcess(t, c, req)
	outputs = drainOutputs(persistCh)
	sv = outputs[0].StakeView
	if sv == nil || sv.LastWithdrawRequestShares == 0 || sv.LastWithdrawRequestValue != 200_000 {
		t.Errorf("stake view after request: %+v", sv)
	}
}

// ============================================================================
// Test: Market Parameter Updates
// ============================================================================

func TestMarketParamsUpdated_ShortensEscrow(t *testing.T) {
	c, persistCh, _ := newTestCore()
	staker := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustStakeInitialized(staker, 0, 1, 10))
	mustProcess(t, c, mustStakeAdded(staker, 0, 500_000, 2, 20))
	req := mustStakeRemoveRequested(staker, 0, 200_000, 3, 30)
	mustProcess(t, c, req)
	drainOutputs(persistCh)

	// Shorten the escrow from 3600s to 10s
	escrow := int64(10)
	mustProcess(t, c, mustMarketParamsUpdated(0, &escrow, 4, 40))
	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output for param update, got %d", len(outputs))
	}
	if len(outputs[0].Batch.Journals) != 0 {
		t.Errorf("param update should produce no journals, got %d", len(outputs[0].Batch.Journals))
	}

	// The outstanding request now unlocks under the new 10s escrow
	mustProcess(t, c, mustStakeRemoved(req.RequestID, staker, 0, 5, 50))
	outputs = drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output for unstake, got %d", len(outputs))
	}
	j := outputs[0].Batch.Journals[0]
	if j.JournalType != ledger.JournalTypeUnstakePayout {
		t.Errorf("expected JournalTypeUnstakePayout, got %v", j.JournalType)
	}
	if j.Amount != 200_000 {
		t.Errorf("expected payout 200_000, got %d", j.Amount)
	}
}

func TestMarketParamsUpdated_UnknownMarket_Fails(t *testing.T) {
	c, _, _ := newTestCore()

	escrow := int64(60)
	if err := c.ProcessEvent(mustMarketParamsUpdated(9, &escrow, 0, 0)); err == nil {
		t.Fatal("expected error updating params on unknown market, got nil")
	}
}

func TestMarketParamsUpdated_ChangesStateHash(t *testing.T) {
	c, persistCh, _ := newTestCore()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	outputs := drainOutputs(persistCh)
	before := outputs[0].Envelope.StateHash

	escrow := int64(60)
	mustProcess(t, c, mustMarketParamsUpdated(0, &escrow, 1, 10))
	outputs = drainOutputs(persistCh)
	after := outputs[0].Envelope.StateHash

	if before == after {
		t.Error("state hash should change when market parameters change")
	}
}

// ============================================================================
// Test: Revenue Settlement
// ============================================================================

func TestRevenueSettle_SweepsIntoInsuranceVault(t *testing.T) {
	c, persistCh, _ := newTestCore()
	borrower := uuid.New()
	lender := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustMarketInitialized(1, "SOL", "SOL", 0, 0))
	mustProcess(t, c, mustDeposit(borrower, 0, 100_000_000, 1, 10))
	mustProcess(t, c, mustDeposit(lender, 1, 1_000_000, 1, 10))
	mustProcess(t, c, mustOraclePrice(0, 1_000_000, 1, 11))
	mustProcess(t, c, mustOraclePrice(1, 20_000_000, 1, 11))
	mustProcess(t, c, mustWithdrawal(borrower, 1, 500_000, 2, 20)) // 50% utilization
	drainOutputs(persistCh)

	// A year of accrual at 50% utilization produces meaningful interest;
	// half of it (if factor 1/2) lands in the revenue pool.
	year := int64(31_536_000)
	mustProcess(t, c, mustInterestUpdate(1, 3, 20+year))
	drainOutputs(persistCh)

	mustProcess(t, c, mustRevenueSettled(1, 4, 21+year))

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	batch := outputs[0].Batch
	if len(batch.Journals) != 1 {
		t.Fatalf("expected 1 settle journal, got %d", len(batch.Journals))
	}
	j := batch.Journals[0]
	if j.JournalType != ledger.JournalTypeRevenueSettle {
		t.Errorf("expected JournalTypeRevenueSettle, got %v", j.JournalType)
	}
	if j.Amount <= 0 {
		t.Errorf("expected positive sweep, got %d", j.Amount)
	}
	if j.DebitAccount != ledger.NewInsuranceVaultKey(1, ledger.AssetSOL) {
		t.Errorf("expected insurance vault debit, got %s", j.DebitAccount.AccountPath())
	}
}

func TestRevenueSettle_BeforePeriodElapsed_Fails(t *testing.T) {
	c, persistCh, _ := newTestCore()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	drainOutputs(persistCh)

	// Settle period is 3600s; try after 60s
	if err := c.ProcessEvent(mustRevenueSettled(0, 1, 60)); err == nil {
		t.Fatal("expected settle period error, got nil")
	}
}

// ============================================================================
// Test: Borrow Liquidation
// ============================================================================

func TestBorrowLiquidated_TransfersClaims(t *testing.T) {
	c, persistCh, _ := newTestCore()
	victim := uuid.New()
	liquidator := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustMarketInitialized(1, "SOL", "SOL", 0, 0))

	// Victim: 1M USDC collateral, borrows 30k SOL at 20.00
	mustProcess(t, c, mustDeposit(victim, 0, 1_000_000, 1, 10))
	mustProcess(t, c, mustDeposit(liquidator, 1, 200_000, 1, 10))
	mustProcess(t, c, mustOraclePrice(0, 1_000_000, 1, 11))
	mustProcess(t, c, mustOraclePrice(1, 20_000_000, 1, 11))
	mustProcess(t, c, mustWithdrawal(victim, 1, 30_000, 2, 20))
	drainOutputs(persistCh)

	// SOL doubles: liability 30k * 40 * 110% = 1.32M > 900k weighted collateral
	mustProcess(t, c, mustOraclePrice(1, 40_000_000, 2, 30))
	drainOutputs(persistCh)

	liq := &event.BorrowLiquidated{
		LiquidationID:    uuid.New(),
		Liquidatee:       victim,
		Liquidator:       liquidator,
		LiabilityMarket:  1,
		CollateralMarket: 0,
		MaxRepay:         10_000,
		Sequence:         3,
		Timestamp:        tsMicros(40),
	}
	mustProcess(t, c, liq)

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	if outputs[0].Envelope.EventType != event.EventTypeBorrowLiquidated {
		t.Errorf("expected BorrowLiquidated event type, got %v", outputs[0].Envelope.EventType)
	}
	// Claims reshuffle inside the spot vaults — no vault-level token movement
	if len(outputs[0].Batch.Journals) != 0 {
		t.Errorf("liquidation should produce no journals, got %d", len(outputs[0].Batch.Journals))
	}
}

func TestBorrowLiquidated_HealthyAccount_Fails(t *testing.T) {
	c, persistCh, _ := newTestCore()
	victim := uuid.New()
	liquidator := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustMarketInitialized(1, "SOL", "SOL", 0, 0))
	mustProcess(t, c, mustDeposit(victim, 0, 1_000_000, 1, 10))
	mustProcess(t, c, mustDeposit(liquidator, 1, 200_000, 1, 10))
	mustProcess(t, c, mustOraclePrice(0, 1_000_000, 1, 11))
	mustProcess(t, c, mustOraclePrice(1, 20_000_000, 1, 11))
	mustProcess(t, c, mustWithdrawal(victim, 1, 10_000, 2, 20))
	drainOutputs(persistCh)

	liq := &event.BorrowLiquidated{
		LiquidationID:    uuid.New(),
		Liquidatee:       victim,
		Liquidator:       liquidator,
		LiabilityMarket:  1,
		CollateralMarket: 0,
		MaxRepay:         10_000,
		Sequence:         3,
		Timestamp:        tsMicros(30),
	}
	if err := c.ProcessEvent(liq); err == nil {
		t.Fatal("expected error liquidating a healthy account, got nil")
	}
}

// ============================================================================
// Test: Idempotency
// ============================================================================

func TestIdempotency_DuplicateDeposit_Ignored(t *testing.T) {
	c, persistCh, _ := newTestCore()
	authority := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	drainOutputs(persistCh)

	deposit := mustDeposit(authority, 0, 1_000_000, 1, 10)

	mustProcess(t, c, deposit)
	outputs1 := drainOutputs(persistCh)
	if len(outputs1) != 1 {
		t.Fatalf("expected 1 output on first process, got %d", len(outputs1))
	}

	// Process same event again — silently ignored
	if err := c.ProcessEvent(deposit); err != nil {
		t.Fatalf("duplicate deposit should not error: %v", err)
	}
	outputs2 := drainOutputs(persistCh)
	if len(outputs2) != 0 {
		t.Errorf("expected 0 outputs for duplicate, got %d", len(outputs2))
	}
}

// ============================================================================
// Test: Sequence Validation
// ============================================================================

func TestSequenceValidation_GapDetected(t *testing.T) {
	c, persistCh, _ := newTestCore()
	authority := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustDeposit(authority, 0, 100_000, 1, 10))
	drainOutputs(persistCh)

	// Skip seq 2, send seq 3 — should detect gap
	if err := c.ProcessEvent(mustDeposit(authority, 0, 100_000, 3, 20)); err == nil {
		t.Fatal("expected sequence gap error, got nil")
	}
}

func TestSequenceValidation_PerMarketPartitions(t *testing.T) {
	c, persistCh, _ := newTestCore()
	authority := uuid.New()

	// Each market runs its own source sequence counter
	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustMarketInitialized(1, "SOL", "SOL", 0, 0))
	mustProcess(t, c, mustDeposit(authority, 0, 100_000, 1, 10))
	mustProcess(t, c, mustDeposit(authority, 1, 100_000, 1, 10))
	drainOutputs(persistCh)
}

// ============================================================================
// Test: State Hash Chain
// ============================================================================

func TestStateHashChain_Deterministic(t *testing.T) {
	authority := uuid.New()
	depositID := uuid.New()

	processEvents := func() [][32]byte {
		c, persistCh, _ := newTestCore()

		mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))

		deposit := &event.Deposit{
			DepositID: depositID,
			Authority: authority,
			Market:    0,
			Amount:    1_000_000,
			Sequence:  1,
			Timestamp: tsMicros(10),
		}
		mustProcess(t, c, deposit)

		outputs := drainOutputs(persistCh)
		hashes := make([][32]byte, len(outputs))
		for i, o := range outputs {
			copy(hashes[i][:], o.Envelope.StateHash[:])
		}
		return hashes
	}

	hashes1 := processEvents()
	hashes2 := processEvents()

	if len(hashes1) != len(hashes2) {
		t.Fatalf("different number of outputs: %d vs %d", len(hashes1), len(hashes2))
	}
	for i := range hashes1 {
		if hashes1[i] != hashes2[i] {
			t.Errorf("hash %d differs: %x vs %x", i, hashes1[i], hashes2[i])
		}
	}
}

func TestStateHashChain_PrevHashLinks(t *testing.T) {
	c, persistCh, _ := newTestCore()
	authority := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustDeposit(authority, 0, 100_000, 1, 10))
	mustProcess(t, c, mustDeposit(authority, 0, 100_000, 2, 20))

	outputs := drainOutputs(persistCh)
	if len(outputs) != 3 {
		t.Fatalf("expected 3 outputs, got %d", len(outputs))
	}
	for i := 1; i < len(outputs); i++ {
		if outputs[i].Envelope.PrevHash != outputs[i-1].Envelope.StateHash {
			t.Errorf("output %d: prev hash does not link to previous state hash", i)
		}
	}
}

// ============================================================================
// Test: Snapshot & Restore
// ============================================================================

func TestSnapshotRestore_ResumesProcessing(t *testing.T) {
	c, persistCh, _ := newTestCore()
	authority := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustDeposit(authority, 0, 1_000_000, 1, 10))
	drainOutputs(persistCh)

	snap := c.CreateSnapshotState()

	// Fresh core restored from the snapshot continues the chain
	persistCh2 := make(chan core.CoreOutput, 1024)
	projCh2 := make(chan core.CoreOutput, 1024)
	c2 := core.NewVaultCore(0, persistCh2, projCh2, nil, nil)
	c2.RestoreFromSnapshot(snap)

	if c2.GetSequence() != c.GetSequence() {
		t.Fatalf("restored sequence %d, want %d", c2.GetSequence(), c.GetSequence())
	}
	if c2.GetStateHash() != c.GetStateHash() {
		t.Fatalf("restored state hash does not match original")
	}

	// A withdrawal against the restored balances must succeed
	mustProcess(t, c2, mustWithdrawal(authority, 0, 400_000, 2, 20))
	outputs := drainOutputs(persistCh2)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output after restore, got %d", len(outputs))
	}
	if outputs[0].Batch.Journals[0].Amount != 400_000 {
		t.Errorf("expected withdrawal of 400_000 after restore, got %d", outputs[0].Batch.Journals[0].Amount)
	}
}

// ============================================================================
// Test: Envelope Integrity
// ============================================================================

func TestEnvelope_HasCorrectFields(t *testing.T) {
	c, persistCh, _ := newTestCore()
	authority := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	drainOutputs(persistCh)

	deposit := mustDeposit(authority, 0, 1_000_000, 1, 10)
	mustProcess(t, c, deposit)

	outputs := drainOutputs(persistCh)
	env := outputs[0].Envelope

	if env.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", env.Sequence)
	}
	if env.IdempotencyKey != deposit.IdempotencyKey() {
		t.Errorf("idempotency key mismatch: %s vs %s", env.IdempotencyKey, deposit.IdempotencyKey())
	}
	if env.EventType != event.EventTypeDeposit {
		t.Errorf("event type mismatch: %v vs %v", env.EventType, event.EventTypeDeposit)
	}
	if env.MarketIndex == nil || *env.MarketIndex != 0 {
		t.Errorf("expected market index 0, got %v", env.MarketIndex)
	}
	if env.Timestamp.UnixMicro() != deposit.Timestamp {
		t.Errorf("expected versioned timestamp %d, got %d", deposit.Timestamp, env.Timestamp.UnixMicro())
	}
}

// ============================================================================
// Test: Projection Channel (non-blocking drop)
// ============================================================================

func TestProjectionChannel_DropsOnFull(t *testing.T) {
	persistCh := make(chan core.CoreOutput, 1024)
	projCh := make(chan core.CoreOutput, 1) // Tiny buffer — will fill up
	c := core.NewVaultCore(0, persistCh, projCh, nil, nil)

	authority := uuid.New()

	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	for i := int64(1); i <= 5; i++ {
		mustProcess(t, c, mustDeposit(authority, 0, 100_000, i, 10+i))
	}

	// All should succeed even though the projection channel overflowed
	persistOutputs := drainOutputs(persistCh)
	if len(persistOutputs) != 6 {
		t.Errorf("expected 6 persist outputs, got %d", len(persistOutputs))
	}
}

// ============================================================================
// Test: Full Lifecycle
// ============================================================================

func TestFullLifecycle_DepositStakeSettleUnstake(t *testing.T) {
	c, persistCh, _ := newTestCore()
	borrower := uuid.New()
	lender := uuid.New()
	staker := uuid.New()

	// Two markets, funded lending pool, oracle prices
	mustProcess(t, c, mustMarketInitialized(0, "USDC", "USDC", 0, 0))
	mustProcess(t, c, mustMarketInitialized(1, "SOL", "SOL", 0, 0))
	mustProcess(t, c, mustDeposit(borrower, 0, 100_000_000, 1, 10))
	mustProcess(t, c, mustDeposit(lender, 1, 1_000_000, 1, 10))
	mustProcess(t, c, mustOraclePrice(0, 1_000_000, 1, 11))
	mustProcess(t, c, mustOraclePrice(1, 20_000_000, 1, 11))

	// Staker enters the SOL insurance fund
	mustProcess(t, c, mustStakeInitialized(staker, 1, 2, 12))
	mustProcess(t, c, mustStakeAdded(staker, 1, 100_000, 3, 13))

	// Borrow draws create utilization
	mustProcess(t, c, mustWithdrawal(borrower, 1, 500_000, 4, 20))

	// A year later: accrue, sweep revenue into the fund
	year := int64(31_536_000)
	mustProcess(t, c, mustInterestUpdate(1, 5, 20+year))
	mustProcess(t, c, mustRevenueSettled(1, 6, 21+year))
	drainOutputs(persistCh)

	// Staker exits: share price rose, so 100k of value costs < all shares
	req := mustStakeRemoveRequested(staker, 1, 100_000, 7, 22+year)
	mustProcess(t, c, req)
	mustProcess(t, c, mustStakeRemoved(req.RequestID, staker, 1, 8, 22+year+3_601))

	outputs := drainOutputs(persistCh)
	final := outputs[len(outputs)-1]
	if final.Envelope.EventType != event.EventTypeStakeRemoved {
		t.Fatalf("expected final StakeRemoved, got %v", final.Envelope.EventType)
	}
	if len(final.Batch.Journals) != 1 {
		t.Fatalf("expected 1 payout journal, got %d", len(final.Batch.Journals))
	}
	if final.Batch.Journals[0].Amount != 100_000 {
		t.Errorf("expected payout of frozen value 100_000, got %d", final.Batch.Journals[0].Amount)
	}
}
