package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"SpotVault/internal/ledger"
)

// ProjectionOutput mirrors the data needed by projection workers.
// The orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence       int64
	EventType      string
	MarketIndex    *uint16
	JournalEntries []JournalEntry
	Timestamp      int64

	// State views for the event, nil when the event touched no such record.
	MarketState *MarketStateRow
	StakeState  *StakeStateRow
	UserStats   *UserStatsRow
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	JournalID     string
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalType   int32
	Timestamp     int64
}

// ProjectionWorker updates projection tables from processed events.
// The projection channel is non-blocking with drop: if projections fall
// behind, they can be rebuilt from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Sequence, err)
				// Continue — projections are eventually consistent
				// and can be rebuilt from the event log
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, j := range output.JournalEntries {
		if err := pw.updateBalanceProjection(ctx, tx, j); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
		if isInsuranceFlow(j.JournalType) {
			if err := pw.insertInsuranceHistory(ctx, tx, output, j); err != nil {
				return fmt.Errorf("insurance history projection: %w", err)
			}
		}
	}

	if output.MarketState != nil {
		if err := upsertMarketState(ctx, tx, *output.MarketState); err != nil {
			return fmt.Errorf("market summary projection: %w", err)
		}
	}
	if output.StakeState != nil {
		if err := upsertStakeState(ctx, tx, *output.StakeState); err != nil {
			return fmt.Errorf("stake projection: %w", err)
		}
	}
	if output.UserStats != nil {
		if err := upsertUserStats(ctx, tx, *output.UserStats); err != nil {
			return fmt.Errorf("user stats projection: %w", err)
		}
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// isInsuranceFlow reports whether a journal type moves insurance fund tokens.
func isInsuranceFlow(journalType int32) bool {
	switch ledger.JournalType(journalType) {
	case ledger.JournalTypeStakeDeposit, ledger.JournalTypeUnstakePayout, ledger.JournalTypeRevenueSettle:
		return true
	}
	return false
}

func (pw *ProjectionWorker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, j JournalEntry) error {
	// Debit account: decrease balance
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, -$3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance - $3, last_sequence = $4
	`, j.DebitAccount, j.AssetID, j.Amount, pw.lastSeq); err != nil {
		return err
	}

	// Credit account: increase balance
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, j.CreditAccount, j.AssetID, j.Amount, pw.lastSeq); err != nil {
		return err
	}

	return nil
}

func (pw *ProjectionWorker) insertInsuranceHistory(ctx context.Context, tx *sql.Tx, output ProjectionOutput, j JournalEntry) error {
	var marketIndex interface{}
	if output.MarketIndex != nil {
		marketIndex = int32(*output.MarketIndex)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.insurance_history
			(journal_id, sequence, market_index, journal_type, debit_account, credit_account, asset_id, amount, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (journal_id) DO NOTHING
	`, j.JournalID, output.Sequence, marketIndex, j.JournalType,
		j.DebitAccount, j.CreditAccount, j.AssetID, j.Amount, j.Timestamp)
	return err
}

// RebuildProjections rebuilds the journal-derived tables (balances,
// insurance history) from the event log. The state mirror tables are not
// touched here: they are last-write-wins rows keyed by market/authority and
// are reseeded from the replayed core on startup via SyncStateTables.
func RebuildProjections(ctx context.Context, db *sql.DB) error {
	// Truncate all projection tables
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`TRUNCATE projections.insurance_history`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Rebuild from journal entries
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			asset_id,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	// Subtract debits
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			asset_id,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY debit_account, asset_id
		ON CONFLICT (account_path, asset_id) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	// Rebuild insurance fund flow history from the journal, pulling the
	// market index from the originating event row.
	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO projections.insurance_history
			(journal_id, sequence, market_index, journal_type, debit_account, credit_account, asset_id, amount, timestamp)
		SELECT
			j.journal_id, j.sequence, e.market_index, j.journal_type,
			j.debit_account, j.credit_account, j.asset_id, j.amount, j.timestamp
		FROM event_log.journal j
		JOIN event_log.events e ON e.sequence = j.sequence
		WHERE j.journal_type IN (%d, %d, %d)
		ON CONFLICT (journal_id) DO NOTHING
	`, ledger.JournalTypeStakeDeposit, ledger.JournalTypeUnstakePayout, ledger.JournalTypeRevenueSettle))
	if err != nil {
		return fmt.Errorf("rebuild insurance history: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
