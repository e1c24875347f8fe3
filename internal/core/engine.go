package core

import (
	"SpotVault/internal/event"
	"SpotVault/internal/ledger"
	"SpotVault/internal/observability"
	"SpotVault/internal/state"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// VaultCore is the single-threaded event processor
type VaultCore struct {
	sequence          int64
	hasher            *StateHasher
	balanceTracker    *ledger.BalanceTracker
	journalGen        *ledger.JournalGenerator
	validator         *ledger.InvariantValidator
	markets           *state.MarketManager
	users             *state.UserManager
	stakes            *state.StakeManager
	oracle            *state.OracleManager
	stats             *state.StatsManager
	liqEngine         *state.LiquidationEngine
	marketAssets      map[uint16]ledger.AssetID
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch
	StateDelta []byte

	// Source is the typed event that produced this output. The shell
	// serializes it to the wire format for the event log payload.
	Source event.Event

	// Read-model views of the state the event touched, for the state
	// projection tables. Nil when the event touched no such record.
	MarketView *MarketView
	StakeView  *StakeView
	StatsView  *StatsView
}

func NewVaultCore(
	startSequence int64,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *VaultCore {
	balanceTracker := ledger.NewBalanceTracker()
	validator := ledger.NewInvariantValidator(balanceTracker)
	journalGen := ledger.NewJournalGenerator(startSequence, balanceTracker)
	markets := state.NewMarketManager()
	stakes := state.NewStakeManager()
	oracle := state.NewOracleManager()

	// Initialize with capacity of 1M entries (configurable)
	idempotencyChecker := NewIdempotencyChecker(1_000_000, dbChecker)
	sequenceValidator := NewSequenceValidator()

	return &VaultCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		balanceTracker:    balanceTracker,
		journalGen:        journalGen,
		validator:         validator,
		markets:           markets,
		users:             state.NewUserManager(),
		stakes:            stakes,
		oracle:            oracle,
		stats:             state.NewStatsManager(markets, stakes),
		liqEngine:         state.NewLiquidationEngine(markets, oracle),
		marketAssets:      make(map[uint16]ledger.AssetID),
		idempotency:       idempotencyChecker,
		sequenceValidator: sequenceValidator,
		metrics:           metrics,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// ProcessEvent is the main processing pipeline
func (c *VaultCore) ProcessEvent(evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate := c.idempotency.IsDuplicate(eventType, idempotencyKey)

	// Step 2: Sequence validation
	partition := c.getPartition(evt)
	sourceSequence := evt.SourceSequence()

	// Special handling for price updates (gaps tolerated)
	if priceEvt, ok := evt.(*event.OraclePriceUpdate); ok {
		if err := c.sequenceValidator.ValidatePriceSequence(priceEvt.Market, priceEvt.PriceSequence); err != nil {
			return err
		}
	} else {
		// Regular sequence validation
		if err := c.sequenceValidator.ValidateSequence(partition, sourceSequence, idempotencyKey, isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	// If duplicate, skip processing
	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Event dispatch. Handlers mutate staged clones, generate the
	// journal batch, and commit the clones only when generation succeeds.
	c.journalGen.SetSequence(c.sequence)

	batch, err := c.dispatchEvent(evt)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "validation").Inc()
		}
		return fmt.Errorf("dispatch failed: %w", err)
	}

	// Step 4: Validate and apply the batch. State-only events (oracle
	// update, interest accrual, stake request/cancel, liquidation) produce
	// no journals but still need an envelope in the event log.
	if len(batch.Journals) > 0 {
		if err := c.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}

		if err := c.balanceTracker.ApplyBatch(batch); err != nil {
			return fmt.Errorf("apply batch failed: %w", err)
		}
	}

	// Step 5: Recompute derived stake-value rollups. Must run AFTER the
	// batch hits the vault balances — share value is read from the vault.
	// The handlers have already committed their clones, so an error here is
	// not recoverable: the rollup saturates instead of overflowing, and
	// anything left can only be inconsistent committed state.
	if authority := eventAuthority(evt); authority != nil && isStakeEvent(evt) {
		if err := c.stats.Recompute(*authority, c.insuranceVaultBalanceOf); err != nil {
			panic(fmt.Sprintf("FATAL: stats rollup on committed state: %v", err))
		}
	}

	// Step 6: Compute state digest and chain hash
	hashStart := time.Now()
	stateDigest := c.computeStateDigest(evt, batch)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)
	if c.metrics != nil {
		c.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		MarketIndex:    evt.MarketIndex(),
		Timestamp:      c.getEventTimestamp(evt),
		SourceSequence: sourceSequence,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	output := CoreOutput{
		Envelope:   envelope,
		Batch:      batch,
		StateDelta: stateDigest,
		Source:     evt,
	}
	c.attachStateViews(&output, evt)

	c.sequence++

	// Step 7: Post-checks
	if err := c.postCheckInvariants(evt); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 8: Emit outputs.
	// Persistence: blocking send — the core stalls until the persistence
	// worker drains. This guarantees no event is lost.
	c.persistChan <- output

	// Projections: non-blocking send — drop on full. Projection workers
	// can rebuild from the event log if they fall behind.
	select {
	case c.projectionChan <- output:
	default:
		// Silently dropped — projection will catch up via rebuild
	}

	// Step 9: Mark as processed (add to LRU)
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	// Record metrics
	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
		for _, j := range batch.Journals {
			c.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
		}
		if idx := evt.MarketIndex(); idx != nil {
			if assetID, ok := c.marketAssets[*idx]; ok {
				c.metrics.InsuranceVaultBalance.WithLabelValues(marketLabel(*idx)).
					Set(float64(c.balanceTracker.InsuranceVaultBalance(*idx, assetID)))
			}
		}
	}

	return nil
}

// getPartition determines partition key for sequence validation
func (c *VaultCore) getPartition(evt event.Event) string {
	if idx := evt.MarketIndex(); idx != nil {
		return fmt.Sprintf("market:%d", *idx)
	}
	return "global"
}

// getEventTimestamp extracts the versioned timestamp from an event. The core
// MUST NOT call time.Now() for event time — all timestamps are versioned inputs.
func (c *VaultCore) getEventTimestamp(evt event.Event) time.Time {
	switch e := evt.(type) {
	case *event.MarketInitialized:
		return time.UnixMicro(e.Timestamp)
	case *event.Deposit:
		return time.UnixMicro(e.Timestamp)
	case *event.Withdrawal:
		return time.UnixMicro(e.Timestamp)
	case *event.OraclePriceUpdate:
		return time.UnixMicro(e.PriceTimestamp)
	case *event.InterestUpdate:
		return time.UnixMicro(e.Timestamp)
	case *event.StakeInitialized:
		return time.UnixMicro(e.Timestamp)
	case *event.StakeAdded:
		return time.UnixMicro(e.Timestamp)
	case *event.StakeRemoveRequested:
		return time.UnixMicro(e.Timestamp)
	case *event.StakeRemoveCancelled:
		return time.UnixMicro(e.Timestamp)
	case *event.StakeRemoved:
		return time.UnixMicro(e.Timestamp)
	case *event.RevenueSettled:
		return time.UnixMicro(e.Timestamp)
	case *event.BorrowLiquidated:
		return time.UnixMicro(e.Timestamp)
	case *event.MarketParamsUpdated:
		return time.UnixMicro(e.Timestamp)
	default:
		panic(fmt.Sprintf("FATAL: getEventTimestamp called with unhandled event type %T — deterministic core cannot use wall-clock time", evt))
	}
}

// eventAuthority returns the user account an event acts on, if any.
func eventAuthority(evt event.Event) *uuid.UUID {
	switch e := evt.(type) {
	case *event.Deposit:
		return &e.Authority
	case *event.Withdrawal:
		return &e.Authority
	case *event.StakeInitialized:
		return &e.Authority
	case *event.StakeAdded:
		return &e.Authority
	case *event.StakeRemoveRequested:
		return &e.Authority
	case *event.StakeRemoveCancelled:
		return &e.Authority
	case *event.StakeRemoved:
		return &e.Authority
	case *event.BorrowLiquidated:
		return &e.Liquidatee
	default:
		return nil
	}
}

func isStakeEvent(evt event.Event) bool {
	switch evt.(type) {
	case *event.StakeInitialized, *event.StakeAdded, *event.StakeRemoveRequested,
		*event.StakeRemoveCancelled, *event.StakeRemoved:
		return true
	}
	return false
}

// insuranceVaultBalanceOf reads the insurance vault's token balance for a
// market. Denominator for every share <-> token conversion.
func (c *VaultCore) insuranceVaultBalanceOf(marketIndex uint16) int64 {
	assetID, ok := c.marketAssets[marketIndex]
	if !ok {
		return 0
	}
	return c.balanceTracker.InsuranceVaultBalance(marketIndex, assetID)
}

func (c *VaultCore) marketAsset(marketIndex uint16) (ledger.AssetID, error) {
	assetID, ok := c.marketAssets[marketIndex]
	if !ok {
		return 0, fmt.Errorf("no asset registered for market %d", marketIndex)
	}
	return assetID, nil
}

// computeStateDigest creates canonical bytes for the state hash: the
// post-apply balance of every account the batch touched, sorted by path,
// followed by the canonical serialization of the market, user account and
// stake record the event acted on.
func (c *VaultCore) computeStateDigest(evt event.Event, batch *ledger.Batch) []byte {
	affectedAccounts := make(map[ledger.AccountKey]bool)

	if batch != nil {
		for _, j := range batch.Journals {
			affectedAccounts[j.DebitAccount] = true
			affectedAccounts[j.CreditAccount] = true
		}
	}

	accounts := make([]ledger.AccountKey, 0, len(affectedAccounts))
	for key := range affectedAccounts {
		accounts = append(accounts, key)
	}

	// Sort by AccountPath (deterministic string ordering)
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*64)

	for _, key := range accounts {
		balance := c.balanceTracker.GetBalance(key)

		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendInt64LE(digest, balance)
	}

	idx := evt.MarketIndex()
	if idx != nil {
		if m, err := c.markets.Get(*idx); err == nil {
			digest = append(digest, m.CanonicalBytes()...)
		}
	}

	if authority := eventAuthority(evt); authority != nil {
		if u, err := c.users.Get(*authority); err == nil {
			digest = append(digest, u.CanonicalBytes()...)
		}
		if idx != nil {
			if s, err := c.stakes.Get(*idx, *authority); err == nil {
				digest = append(digest, s.CanonicalBytes()...)
			}
		}
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants validates invariants after batch application
func (c *VaultCore) postCheckInvariants(evt event.Event) error {
	// Both vault accounts for the touched market must stay non-negative
	if idx := evt.MarketIndex(); idx != nil {
		if assetID, ok := c.marketAssets[*idx]; ok {
			if err := c.validator.ValidateVaultNonNegative(*idx, assetID); err != nil {
				return fmt.Errorf("post-check vault balance: %w", err)
			}
		}
	}

	// Periodic global zero-sum check across every asset
	if c.sequence > 0 && c.sequence%1000 == 0 {
		totals := c.balanceTracker.ComputeGlobalBalance()
		for assetID, total := range totals {
			if total != 0 {
				return fmt.Errorf("post-check global balance non-zero for asset %d: %d (at seq %d)",
					assetID, total, c.sequence)
			}
		}
	}

	return nil
}

// emptyBatch builds a journal-free batch for state-only events.
func (c *VaultCore) emptyBatch(eventRef string, timestamp int64) *ledger.Batch {
	return &ledger.Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  c.sequence,
		Timestamp: timestamp,
		Journals:  []ledger.Journal{},
	}
}

// eventSeconds converts an event's microsecond timestamp to the seconds
// resolution the accrual and escrow clocks run on.
func eventSeconds(timestampMicros int64) int64 {
	return timestampMicros / 1_000_000
}

func marketLabel(marketIndex uint16) string {
	return strconv.FormatUint(uint64(marketIndex), 10)
}

func (c *VaultCore) recordAccrual(accrual state.InterestAccrual) {
	if c.metrics == nil || accrual.Elapsed == 0 {
		return
	}
	label := marketLabel(accrual.MarketIndex)
	c.metrics.InterestAccruals.WithLabelValues(label).Inc()
	c.metrics.InterestTokensAccrued.WithLabelValues(label).Add(float64(accrual.BorrowInterestTokens))
	c.metrics.InterestRevenueTokens.WithLabelValues(label).Add(float64(accrual.RevenueTokens))
	c.metrics.MarketUtilization.WithLabelValues(label).Set(float64(accrual.Utilization))
	c.metrics.MarketBorrowRate.WithLabelValues(label).Set(float64(accrual.BorrowRate))
}

func (c *VaultCore) recordStakeOp(marketIndex uint16, operation string) {
	if c.metrics == nil {
		return
	}
	c.metrics.StakeOperations.WithLabelValues(marketLabel(marketIndex), operation).Inc()
}

// --- Event Handlers ---

func (c *VaultCore) handleMarketInitialized(evt *event.MarketInitialized) (*ledger.Batch, error) {
	assetID, ok := ledger.GetAssetID(evt.Asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset: %s", evt.Asset)
	}

	cfg := state.MarketConfig{
		MarketIndex:                   evt.Market,
		Name:                          evt.Name,
		InsuranceWithdrawEscrowPeriod: evt.InsuranceWithdrawPeriod,
		RevenueSettlePeriod:           evt.RevenueSettlePeriod,
		IfFactorNumerator:             evt.IfFactorNumerator,
		IfFactorDenominator:           evt.IfFactorDenominator,
		OptimalUtilization:            evt.OptimalUtilization,
		OptimalRate:                   evt.OptimalRate,
		MaxRate:                       evt.MaxRate,
		LiquidatorFee:                 evt.LiquidatorFee,
		IfLiquidationFee:              evt.IfLiquidationFee,
		MaintenanceAssetWeight:        evt.MaintenanceAssetWeight,
		MaintenanceLiabilityWeight:    evt.MaintenanceLiabilityWeight,
		OracleStalenessThreshold:      evt.OracleStalenessThreshold,
	}

	if _, err := c.markets.InitializeMarket(cfg, eventSeconds(evt.Timestamp)); err != nil {
		return nil, err
	}

	c.marketAssets[evt.Market] = assetID

	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

// handleDeposit credits the user's spot position at the prevailing deposit
// index and moves tokens from the external boundary into the spot vault.
func (c *VaultCore) handleDeposit(evt *event.Deposit) (*ledger.Batch, error) {
	assetID, err := c.marketAsset(evt.Market)
	if err != nil {
		return nil, err
	}

	now := eventSeconds(evt.Timestamp)

	market, err := c.markets.Clone(evt.Market)
	if err != nil {
		return nil, err
	}
	accrual, err := state.AccrueInterest(&market, now)
	if err != nil {
		return nil, fmt.Errorf("interest accrual: %w", err)
	}

	user := c.users.CloneOrCreate(evt.Authority)
	if err := state.CreditTokens(&market, user.Position(evt.Market), evt.Amount); err != nil {
		return nil, fmt.Errorf("credit tokens: %w", err)
	}

	batch, err := c.journalGen.GenerateDeposit(evt.IdempotencyKey(), evt.Market, assetID, evt.Amount, evt.Timestamp)
	if err != nil {
		return nil, err
	}

	c.markets.Commit(market)
	c.users.Commit(user)
	c.recordAccrual(accrual)

	return batch, nil
}

// handleWithdrawal debits the user's spot position and releases tokens from
// the spot vault. If the debit flips or grows a borrow, the account must
// remain collateralized against the staged market state.
func (c *VaultCore) handleWithdrawal(evt *event.Withdrawal) (*ledger.Batch, error) {
	assetID, err := c.marketAsset(evt.Market)
	if err != nil {
		return nil, err
	}

	now := eventSeconds(evt.Timestamp)

	market, err := c.markets.Clone(evt.Market)
	if err != nil {
		return nil, err
	}
	accrual, err := state.AccrueInterest(&market, now)
	if err != nil {
		return nil, fmt.Errorf("interest accrual: %w", err)
	}

	user, err := c.users.Clone(evt.Authority)
	if err != nil {
		return nil, err
	}
	if err := state.DebitTokens(&market, user.Position(evt.Market), evt.Amount); err != nil {
		return nil, fmt.Errorf("debit tokens: %w", err)
	}

	if user.HasBorrows() {
		health, err := c.liqEngine.CollateralValueStaged(&user, []*state.SpotMarket{&market}, now)
		if err != nil {
			return nil, fmt.Errorf("collateral check: %w", err)
		}
		if health < 0 {
			return nil, fmt.Errorf("%w: health %d after withdrawal", state.ErrUndercollateralized, health)
		}
	}

	batch, err := c.journalGen.GenerateWithdrawal(evt.IdempotencyKey(), evt.Market, assetID, evt.Amount, evt.Timestamp)
	if err != nil {
		return nil, err
	}

	c.markets.Commit(market)
	c.users.Commit(user)
	c.recordAccrual(accrual)

	return batch, nil
}

// handleOraclePriceUpdate stores the observation. No journals, no index
// movement — prices only matter at the next collateral evaluation.
func (c *VaultCore) handleOraclePriceUpdate(evt *event.OraclePriceUpdate) (*ledger.Batch, error) {
	err := c.oracle.UpdatePrice(evt.Market, evt.Price, evt.Confidence, evt.PriceSequence, eventSeconds(evt.PriceTimestamp))
	if err != nil {
		return nil, err
	}

	return c.emptyBatch(evt.IdempotencyKey(), evt.PriceTimestamp), nil
}

// handleInterestUpdate advances the market's cumulative indices. Token
// movement between vaults happens later, at revenue settlement.
func (c *VaultCore) handleInterestUpdate(evt *event.InterestUpdate) (*ledger.Batch, error) {
	market, err := c.markets.Clone(evt.Market)
	if err != nil {
		return nil, err
	}

	accrual, err := state.AccrueInterest(&market, eventSeconds(evt.Timestamp))
	if err != nil {
		return nil, fmt.Errorf("interest accrual: %w", err)
	}

	c.markets.Commit(market)
	c.recordAccrual(accrual)

	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

// handleMarketParamsUpdated changes escrow/settlement/ifFactor parameters on
// a live market. Accrues interest first so the old ifFactor applies to the
// elapsed window.
func (c *VaultCore) handleMarketParamsUpdated(evt *event.MarketParamsUpdated) (*ledger.Batch, error) {
	market, err := c.markets.Clone(evt.Market)
	if err != nil {
		return nil, err
	}

	accrual, err := state.AccrueInterest(&market, eventSeconds(evt.Timestamp))
	if err != nil {
		return nil, fmt.Errorf("interest accrual: %w", err)
	}

	upd := state.MarketParamUpdate{
		EscrowPeriod:        evt.EscrowPeriod,
		RevenueSettlePeriod: evt.RevenueSettlePeriod,
		IfFactorNumerator:   evt.IfFactorNumerator,
		IfFactorDenominator: evt.IfFactorDenominator,
	}
	if err := state.ApplyParamUpdate(&market, upd); err != nil {
		return nil, err
	}

	c.markets.Commit(market)
	c.recordAccrual(accrual)

	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

func (c *VaultCore) handleStakeInitialized(evt *event.StakeInitialized) (*ledger.Batch, error) {
	if _, err := c.markets.Get(evt.Market); err != nil {
		return nil, err
	}

	if _, err := c.stakes.Initialize(evt.Market, evt.Authority); err != nil {
		return nil, err
	}
	c.stats.RecordStakeInitialized(evt.Authority)
	c.recordStakeOp(evt.Market, "initialize")

	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

// handleStakeAdded mints shares at the pre-deposit share price and moves the
// staked tokens into the insurance vault.
func (c *VaultCore) handleStakeAdded(evt *event.StakeAdded) (*ledger.Batch, error) {
	assetID, err := c.marketAsset(evt.Market)
	if err != nil {
		return nil, err
	}

	market, err := c.markets.Clone(evt.Market)
	if err != nil {
		return nil, err
	}
	stake, err := c.stakes.Clone(evt.Market, evt.Authority)
	if err != nil {
		return nil, err
	}

	vaultBalance := c.balanceTracker.InsuranceVaultBalance(evt.Market, assetID)
	if _, err := state.AddStake(&market, &stake, vaultBalance, evt.Amount); err != nil {
		return nil, err
	}

	batch, err := c.journalGen.GenerateStakeDeposit(evt.IdempotencyKey(), evt.Market, assetID, evt.Amount, evt.Timestamp)
	if err != nil {
		return nil, err
	}

	c.markets.Commit(market)
	c.stakes.Commit(stake)
	c.recordStakeOp(evt.Market, "add")

	return batch, nil
}

// handleStakeRemoveRequested freezes the claim value of the requested shares
// and starts the escrow clock. Tokens stay in the vault until maturity.
func (c *VaultCore) handleStakeRemoveRequested(evt *event.StakeRemoveRequested) (*ledger.Batch, error) {
	assetID, err := c.marketAsset(evt.Market)
	if err != nil {
		return nil, err
	}

	market, err := c.markets.Clone(evt.Market)
	if err != nil {
		return nil, err
	}
	stake, err := c.stakes.Clone(evt.Market, evt.Authority)
	if err != nil {
		return nil, err
	}

	vaultBalance := c.balanceTracker.InsuranceVaultBalance(evt.Market, assetID)
	if _, err := state.RequestRemoveStake(&market, &stake, vaultBalance, evt.Amount, eventSeconds(evt.Timestamp)); err != nil {
		return nil, err
	}

	c.markets.Commit(market)
	c.stakes.Commit(stake)
	c.recordStakeOp(evt.Market, "remove_request")

	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

// handleStakeRemoveCancelled abandons the pending request. Share-price
// growth accrued on the requested portion since the request is forfeited to
// the remaining stakers.
func (c *VaultCore) handleStakeRemoveCancelled(evt *event.StakeRemoveCancelled) (*ledger.Batch, error) {
	assetID, err := c.marketAsset(evt.Market)
	if err != nil {
		return nil, err
	}

	market, err := c.markets.Clone(evt.Market)
	if err != nil {
		return nil, err
	}
	stake, err := c.stakes.Clone(evt.Market, evt.Authority)
	if err != nil {
		return nil, err
	}

	vaultBalance := c.balanceTracker.InsuranceVaultBalance(evt.Market, assetID)
	result, err := state.CancelRequestRemoveStake(&market, &stake, vaultBalance)
	if err != nil {
		return nil, err
	}

	c.markets.Commit(market)
	c.stakes.Commit(stake)
	c.recordStakeOp(evt.Market, "remove_cancel")
	if c.metrics != nil && result.SharesForfeited > 0 {
		c.metrics.SharesForfeited.WithLabelValues(marketLabel(evt.Market)).Add(float64(result.SharesForfeited))
	}

	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

// handleStakeRemoved completes a matured request: burns the frozen shares
// and pays out exactly the frozen claim value from the insurance vault.
func (c *VaultCore) handleStakeRemoved(evt *event.StakeRemoved) (*ledger.Batch, error) {
	assetID, err := c.marketAsset(evt.Market)
	if err != nil {
		return nil, err
	}

	market, err := c.markets.Clone(evt.Market)
	if err != nil {
		return nil, err
	}
	stake, err := c.stakes.Clone(evt.Market, evt.Authority)
	if err != nil {
		return nil, err
	}

	result, err := state.RemoveStake(&market, &stake, eventSeconds(evt.Timestamp))
	if err != nil {
		return nil, err
	}

	batch := c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp)
	if result.TokensPaid > 0 {
		batch, err = c.journalGen.GenerateUnstakePayout(evt.IdempotencyKey(), evt.Market, assetID, result.TokensPaid, evt.Timestamp)
		if err != nil {
			// Vault cannot fund the payout — leave escrow intact for retry
			return nil, err
		}
	}

	c.markets.Commit(market)
	c.stakes.Commit(stake)
	c.recordStakeOp(evt.Market, "remove")

	return batch, nil
}

// handleRevenueSettled sweeps the accrued revenue pool into the insurance
// vault. Revenue is a claim on future borrower repayments, so the spot vault
// may not hold the tokens yet — in that case nothing is committed and the
// settle clock does not advance, leaving the sweep to a later cycle.
func (c *VaultCore) handleRevenueSettled(evt *event.RevenueSettled) (*ledger.Batch, error) {
	assetID, err := c.marketAsset(evt.Market)
	if err != nil {
		return nil, err
	}

	now := eventSeconds(evt.Timestamp)

	market, err := c.markets.Clone(evt.Market)
	if err != nil {
		return nil, err
	}
	accrual, err := state.AccrueInterest(&market, now)
	if err != nil {
		return nil, fmt.Errorf("interest accrual: %w", err)
	}

	result, err := state.SettleRevenue(&market, now)
	if err != nil {
		return nil, err
	}

	batch := c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp)
	if result.TokensSwept > 0 {
		batch, err = c.journalGen.GenerateRevenueSettle(evt.IdempotencyKey(), evt.Market, assetID, result.TokensSwept, evt.Timestamp)
		if err != nil {
			return nil, err
		}
	}

	c.markets.Commit(market)
	c.recordAccrual(accrual)
	if c.metrics != nil && result.TokensSwept > 0 {
		c.metrics.RevenueSettledTokens.WithLabelValues(marketLabel(evt.Market)).Add(float64(result.TokensSwept))
	}

	return batch, nil
}

// handleBorrowLiquidated executes a forced partial closeout. Claims move
// between the liquidatee and liquidator inside the spot vaults, so no
// vault-level tokens move and the batch is empty.
func (c *VaultCore) handleBorrowLiquidated(evt *event.BorrowLiquidated) (*ledger.Batch, error) {
	now := eventSeconds(evt.Timestamp)

	liabilityMarket, err := c.markets.Clone(evt.LiabilityMarket)
	if err != nil {
		return nil, err
	}
	collateralMarket, err := c.markets.Clone(evt.CollateralMarket)
	if err != nil {
		return nil, err
	}

	if _, err := state.AccrueInterest(&liabilityMarket, now); err != nil {
		return nil, fmt.Errorf("liability market accrual: %w", err)
	}
	if _, err := state.AccrueInterest(&collateralMarket, now); err != nil {
		return nil, fmt.Errorf("collateral market accrual: %w", err)
	}

	liquidatee, err := c.users.Clone(evt.Liquidatee)
	if err != nil {
		return nil, err
	}
	liquidator, err := c.users.Clone(evt.Liquidator)
	if err != nil {
		return nil, err
	}

	result, err := c.liqEngine.LiquidateBorrow(&liquidatee, &liquidator, &liabilityMarket, &collateralMarket, evt.MaxRepay, now)
	if err != nil {
		return nil, err
	}

	c.markets.Commit(liabilityMarket)
	c.markets.Commit(collateralMarket)
	c.users.Commit(liquidatee)
	c.users.Commit(liquidator)

	if c.metrics != nil {
		label := marketLabel(evt.LiabilityMarket)
		c.metrics.LiquidationsExecuted.WithLabelValues(label).Inc()
		c.metrics.LiquidationRepayTokens.WithLabelValues(label).Add(float64(result.LiabilityTransfer))
		c.metrics.LiquidationIfFeeTokens.WithLabelValues(label).Add(float64(result.IfFeeTokens))
		if result.Bankrupt {
			c.metrics.LiquidationBankruptcies.WithLabelValues(label).Inc()
		}
	}

	return c.emptyBatch(evt.IdempotencyKey(), evt.Timestamp), nil
}

func (c *VaultCore) dispatchEvent(evt event.Event) (*ledger.Batch, error) {
	switch e := evt.(type) {
	case *event.MarketInitialized:
		return c.handleMarketInitialized(e)
	case *event.Deposit:
		return c.handleDeposit(e)
	case *event.Withdrawal:
		return c.handleWithdrawal(e)
	case *event.OraclePriceUpdate:
		return c.handleOraclePriceUpdate(e)
	case *event.InterestUpdate:
		return c.handleInterestUpdate(e)
	case *event.StakeInitialized:
		return c.handleStakeInitialized(e)
	case *event.StakeAdded:
		return c.handleStakeAdded(e)
	case *event.StakeRemoveRequested:
		return c.handleStakeRemoveRequested(e)
	case *event.StakeRemoveCancelled:
		return c.handleStakeRemoveCancelled(e)
	case *event.StakeRemoved:
		return c.handleStakeRemoved(e)
	case *event.RevenueSettled:
		return c.handleRevenueSettled(e)
	case *event.BorrowLiquidated:
		return c.handleBorrowLiquidated(e)
	case *event.MarketParamsUpdated:
		return c.handleMarketParamsUpdated(e)
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
// This mirrors persistence.SnapshotData but uses typed fields.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Balances        map[ledger.AccountKey]int64
	Markets         []state.SpotMarket
	Users           []state.UserAccount
	Stakes          []state.InsuranceFundStake
	OraclePrices    []state.OraclePrice
	Stats           []state.UserStats
	MarketAssets    map[uint16]ledger.AssetID
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot restores the core's in-memory state from a snapshot.
// On warm restart: load latest snapshot, then replay events past it.
func (c *VaultCore) RestoreFromSnapshot(snap *SnapshotState) {
	c.sequence = snap.Sequence + 1 // Next sequence to assign
	c.hasher.SetPrevHash(snap.StateHash)
	c.balanceTracker.Restore(snap.Balances)

	for _, m := range snap.Markets {
		c.markets.Restore(m)
	}
	for _, u := range snap.Users {
		c.users.Restore(u)
	}
	for _, s := range snap.Stakes {
		c.stakes.Restore(s)
	}
	for i := range snap.OraclePrices {
		p := snap.OraclePrices[i]
		c.oracle.Restore(&p)
	}
	for _, s := range snap.Stats {
		c.stats.Restore(s)
	}

	c.marketAssets = make(map[uint16]ledger.AssetID, len(snap.MarketAssets))
	for idx, assetID := range snap.MarketAssets {
		c.marketAssets[idx] = assetID
	}

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.RestorePartition(partition, nextSeq)
	}

	c.journalGen.SetSequence(c.sequence)
}

// WarmLRU loads recent idempotency keys into the LRU cache, avoiding
// cold-path DB lookups for recently processed events.
func (c *VaultCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (c *VaultCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *VaultCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *VaultCore) CreateSnapshotState() *SnapshotState {
	snap := &SnapshotState{
		Sequence:        c.sequence - 1, // Last processed sequence
		StateHash:       c.hasher.GetPrevHash(),
		Balances:        c.balanceTracker.Snapshot(),
		MarketAssets:    make(map[uint16]ledger.AssetID, len(c.marketAssets)),
		SequenceState:   c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys: c.idempotency.lru.GetAllKeys(),
	}

	for _, idx := range c.markets.ActiveMarkets() {
		m, err := c.markets.Get(idx)
		if err != nil {
			continue
		}
		snap.Markets = append(snap.Markets, *m)
	}
	for _, u := range c.users.All() {
		snap.Users = append(snap.Users, *u)
	}
	for _, s := range c.stakes.All() {
		snap.Stakes = append(snap.Stakes, *s)
	}
	for _, p := range c.oracle.All() {
		snap.OraclePrices = append(snap.OraclePrices, *p)
	}
	for _, s := range c.stats.All() {
		snap.Stats = append(snap.Stats, *s)
	}

	for idx, assetID := range c.marketAssets {
		snap.MarketAssets[idx] = assetID
	}

	return snap
}
