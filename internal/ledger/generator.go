package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches from events
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // Reference for pre-checks
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// Sequence returns the next sequence the generator will stamp
func (jg *JournalGenerator) Sequence() int64 {
	return jg.sequence
}

// SetSequence resets the generator's sequence (used on state restore)
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

// GenerateDeposit creates journals for a user deposit.
// Moves funds: external:deposits → system:spot_vault:market
func (jg *JournalGenerator) GenerateDeposit(
	eventRef string,
	marketIndex uint16,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewSpotVaultKey(marketIndex, assetID),
		CreditAccount: NewExternalAccountKey(SubTypeExternalDeposits, assetID),
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   JournalTypeDeposit,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateWithdrawal creates journals for a user withdrawal or borrow draw.
// Pre-check: the operating vault must hold enough tokens.
// Moves funds: system:spot_vault:market → external:withdrawals
func (jg *JournalGenerator) GenerateWithdrawal(
	eventRef string,
	marketIndex uint16,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	vaultKey := NewSpotVaultKey(marketIndex, assetID)
	if err := jg.balanceTracker.ValidateSufficient(vaultKey, amount); err != nil {
		return nil, fmt.Errorf("withdrawal pre-check failed: %w", err)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewExternalAccountKey(SubTypeExternalWithdrawals, assetID),
		CreditAccount: vaultKey,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   JournalTypeWithdrawal,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateStakeDeposit creates journals for an insurance fund stake.
// Moves funds: external:deposits → system:insurance_vault:market
func (jg *JournalGenerator) GenerateStakeDeposit(
	eventRef string,
	marketIndex uint16,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewInsuranceVaultKey(marketIndex, assetID),
		CreditAccount: NewExternalAccountKey(SubTypeExternalDeposits, assetID),
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   JournalTypeStakeDeposit,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateUnstakePayout creates journals paying out a matured unstake.
// Pre-check: the insurance vault must hold the frozen claim value.
// Moves funds: system:insurance_vault:market → external:withdrawals
func (jg *JournalGenerator) GenerateUnstakePayout(
	eventRef string,
	marketIndex uint16,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	vaultKey := NewInsuranceVaultKey(marketIndex, assetID)
	if err := jg.balanceTracker.ValidateSufficient(vaultKey, amount); err != nil {
		return nil, fmt.Errorf("unstake payout pre-check failed: %w", err)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewExternalAccountKey(SubTypeExternalWithdrawals, assetID),
		CreditAccount: vaultKey,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   JournalTypeUnstakePayout,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateRevenueSettle creates journals sweeping accrued revenue into the
// insurance vault. Pre-check: the operating vault must hold the swept tokens
// (revenue accrues as a claim; tokens only exist once borrowers repay).
// Moves funds: system:spot_vault:market → system:insurance_vault:market
func (jg *JournalGenerator) GenerateRevenueSettle(
	eventRef string,
	marketIndex uint16,
	assetID AssetID,
	amount int64,
	timestamp int64,
) (*Batch, error) {
	spotKey := NewSpotVaultKey(marketIndex, assetID)
	if err := jg.balanceTracker.ValidateSufficient(spotKey, amount); err != nil {
		return nil, fmt.Errorf("revenue settle pre-check failed: %w", err)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      eventRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewInsuranceVaultKey(marketIndex, assetID),
		CreditAccount: spotKey,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   JournalTypeRevenueSettle,
		Timestamp:     timestamp,
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}
