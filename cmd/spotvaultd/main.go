package main

import (
	"SpotVault/internal/config"
	"SpotVault/internal/core"
	"SpotVault/internal/event"
	"SpotVault/internal/ingestion"
	"SpotVault/internal/ledger"
	"SpotVault/internal/observability"
	"SpotVault/internal/persistence"
	"SpotVault/internal/projection"
	"SpotVault/internal/query"
	"SpotVault/internal/server"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional, env vars override)")
	flag.Parse()

	logger := observability.NewLogger("spotvaultd")
	logger.Info().Msg("SpotVault starting")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("postgres ping")
	}
	logger.Info().Msg("postgres connected")

	// --- Run SQL migrations ---
	migrator := persistence.NewMigrator(db, cfg.Postgres.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
	logger.Info().Msg("migrations applied")

	snapMgr := persistence.NewSnapshotManager(db)

	// --- Recovery: load snapshot + replay ---
	startSequence := int64(0)

	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("load snapshot failed")
	}
	if snap != nil {
		startSequence = snap.Sequence + 1
		logger.Info().Int64("sequence", snap.Sequence).Msg("loaded snapshot")
	} else {
		logger.Info().Msg("no snapshot found, cold start from sequence 0")
	}

	// --- Channels ---
	// The persist channel blocks (backpressure), the projection channel drops.
	persistCoreChan := make(chan core.CoreOutput, cfg.Core.PersistChannelSize)
	projectionCoreChan := make(chan core.CoreOutput, cfg.Core.ProjectionChannelSize)

	// Bridge channels for the workers (avoids import cycle)
	persistWorkerChan := make(chan persistence.CoreOutput, cfg.Core.PersistChannelSize)
	projectionWorkerChan := make(chan projection.ProjectionOutput, cfg.Core.ProjectionChannelSize)

	// --- Postgres idempotency checker ---
	dbChecker := persistence.NewPostgresIdempotencyChecker(db)

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Deterministic core ---
	vaultCore := core.NewVaultCore(
		startSequence,
		persistCoreChan,
		projectionCoreChan,
		dbChecker,
		metrics,
	)

	// --- Snapshot restore ---
	if snap != nil {
		if err := restoreStateFromSnapshot(vaultCore, snap, logger); err != nil {
			logger.Fatal().Err(err).Msg("snapshot restore")
		}
	}

	// --- LRU warming ---
	if snap != nil && len(snap.IdempotencyKeys) > 0 {
		logger.Info().Int("keys", len(snap.IdempotencyKeys)).Msg("warming idempotency LRU from snapshot")
		vaultCore.WarmLRU(snap.IdempotencyKeys)
	}

	// --- Event replay ---
	replayCount, err := replayEventsFromLog(ctx, snapMgr, vaultCore, startSequence, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("event replay")
	}
	if replayCount > 0 {
		logger.Info().
			Int64("replayed", replayCount).
			Int64("sequence", vaultCore.GetSequence()).
			Msg("event replay complete")
	}

	// --- State hash verification ---
	// Only meaningful when nothing was replayed on top of the snapshot.
	if snap != nil && replayCount == 0 {
		var expectedHash [32]byte
		copy(expectedHash[:], snap.StateHash)
		actualHash := vaultCore.GetStateHash()
		if expectedHash != actualHash {
			logger.Fatal().
				Hex("expected", expectedHash[:]).
				Hex("actual", actualHash[:]).
				Msg("state hash mismatch after restore")
		}
		logger.Info().Msg("state hash verified after snapshot restore")
	}

	// --- State projection seeding ---
	// The state mirror tables only receive rows the event stream touches,
	// so after replay the current core state is pushed in full. Safe here:
	// ingestion has not started, the core is quiescent.
	if err := seedStateProjections(ctx, db, vaultCore); err != nil {
		logger.Error().Err(err).Msg("state projection seed failed, read API may serve stale state")
	}

	// --- NATS ---
	var natsSubscriber *ingestion.NATSSubscriber
	var outboundPublisher *ingestion.OutboundPublisher
	rawEventChan := make(chan ingestion.RawEvent, cfg.Core.EventChannelSize)
	publishChan := make(chan ingestion.PublishableEvent, cfg.Core.PublishChannelSize)

	if cfg.NATS.Enabled {
		nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("nats connect")
		}
		defer nc.Close()
		logger.Info().Str("url", cfg.NATS.URL).Msg("nats connected")

		if err := ingestion.EnsureStreams(ctx, js); err != nil {
			logger.Fatal().Err(err).Msg("ensure nats streams")
		}
		if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
			logger.Fatal().Err(err).Msg("ensure outbound stream")
		}

		natsSubscriber = ingestion.NewNATSSubscriber(js, rawEventChan)
		if err := natsSubscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
			logger.Fatal().Err(err).Msg("nats subscribe")
		}

		outboundPublisher = ingestion.NewOutboundPublisher(js, publishChan)
	} else {
		logger.Warn().Msg("nats disabled, events only via admin API")
	}

	// --- Services ---
	queryService := query.NewQueryService(db)
	eventChan := make(chan event.Event, cfg.Core.EventChannelSize)
	ingestService := ingestion.NewAdminIngestService(eventChan)

	grpcServer := server.NewGRPCServer(cfg.Server.GRPCAddr)
	httpServer := server.NewHTTPServer(cfg.Server.HTTPAddr, &server.HTTPDeps{
		QueryService:  queryService,
		IngestService: ingestService,
		HealthChecker: healthChecker,
		Metrics:       metrics,
		RebuildFunc: func(ctx context.Context) error {
			return projection.RebuildProjections(ctx, db)
		},
	})

	// --- Start goroutines ---
	errChan := make(chan error, 10)

	// 1. Persistence worker
	persistWorker := persistence.NewPersistenceWorker(db, persistWorkerChan, cfg.Persist.BatchSize, cfg.Persist.FlushTimeout, metrics)
	go func() {
		errChan <- persistWorker.Run(ctx)
	}()

	// 2. Projection worker
	projWorker := projection.NewProjectionWorker(db, projectionWorkerChan)
	go func() {
		errChan <- projWorker.Run(ctx)
	}()

	// 3. Outbound publisher
	if outboundPublisher != nil {
		go func() {
			errChan <- outboundPublisher.Run(ctx)
		}()
	}

	// 4. Core output bridge: core.CoreOutput → persistence/projection/publish formats
	go func() {
		bridgeCoreOutputs(ctx, persistCoreChan, projectionCoreChan, persistWorkerChan, projectionWorkerChan, publishChan, logger)
	}()

	// 5. NATS → core ingestion loop
	go func() {
		runIngestionLoop(ctx, rawEventChan, vaultCore, logger)
	}()

	// 5b. Admin API → core ingestion loop
	go func() {
		runAdminIngestionLoop(ctx, eventChan, vaultCore, logger)
	}()

	// 6. gRPC health endpoint
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	// 7. HTTP API (read endpoints, admin, /metrics, probes)
	go func() {
		errChan <- httpServer.Start(ctx)
	}()

	// 8. Periodic snapshot creation
	go func() {
		runPeriodicSnapshots(ctx, vaultCore, snapMgr, cfg.Snapshot.Interval, metrics, logger)
	}()

	// Mark ready after all goroutines started
	healthChecker.SetReady(true)
	grpcServer.SetServing(true)

	logger.Info().
		Int64("sequence", startSequence).
		Str("grpc", cfg.Server.GRPCAddr).
		Str("http", cfg.Server.HTTPAddr).
		Msg("SpotVault ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	// --- Graceful shutdown ---
	cancel()

	if natsSubscriber != nil {
		natsSubscriber.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	close(persistWorkerChan)
	close(projectionWorkerChan)
	close(publishChan)

	// Final snapshot before exit
	if err := takeSnapshot(shutdownCtx, vaultCore, snapMgr, metrics); err != nil {
		logger.Error().Err(err).Msg("final snapshot failed")
	} else {
		logger.Info().Msg("final snapshot saved")
	}

	logger.Info().Msg("SpotVault shutdown complete")
}

// bridgeCoreOutputs converts core.CoreOutput to persistence and projection
// formats. This avoids import cycles between core and the worker packages.
func bridgeCoreOutputs(
	ctx context.Context,
	persistIn <-chan core.CoreOutput,
	projectionIn <-chan core.CoreOutput,
	persistOut chan<- persistence.CoreOutput,
	projectionOut chan<- projection.ProjectionOutput,
	publishOut chan<- ingestion.PublishableEvent,
	logger zerolog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case output, ok := <-persistIn:
			if !ok {
				return
			}

			// The stored payload is the wire-format event so replay can
			// re-parse it with ParseRawEvent.
			payload, err := ingestion.MarshalRawEvent(output.Source)
			if err != nil {
				logger.Error().Err(err).
					Int64("sequence", output.Envelope.Sequence).
					Msg("marshal event payload")
			}

			var marketIndex *uint16
			if output.Envelope.MarketIndex != nil {
				idx := *output.Envelope.MarketIndex
				marketIndex = &idx
			}

			stateHash := output.Envelope.StateHash[:]
			prevHash := output.Envelope.PrevHash[:]

			pOutput := persistence.CoreOutput{
				EventRow: persistence.EventRow{
					Sequence:       output.Envelope.Sequence,
					EventType:      output.Envelope.EventType.String(),
					IdempotencyKey: output.Envelope.IdempotencyKey,
					MarketIndex:    marketIndex,
					Payload:        payload,
					StateHash:      stateHash,
					PrevHash:       prevHash,
					Timestamp:      output.Envelope.Timestamp,
					SourceSequence: output.Envelope.SourceSequence,
				},
			}

			if output.Batch != nil {
				for _, j := range output.Batch.Journals {
					pOutput.JournalRows = append(pOutput.JournalRows, persistence.JournalRow{
						JournalID:     j.JournalID.String(),
						BatchID:       j.BatchID.String(),
						EventRef:      j.EventRef,
						Sequence:      j.Sequence,
						DebitAccount:  j.DebitAccount.AccountPath(),
						CreditAccount: j.CreditAccount.AccountPath(),
						AssetID:       uint16(j.AssetID),
						Amount:        j.Amount,
						JournalType:   int32(j.JournalType),
						Timestamp:     j.Timestamp,
					})
				}
			}

			persistOut <- pOutput

			// Outbound publish is best-effort
			select {
			case publishOut <- ingestion.PublishableEvent{
				Sequence:       output.Envelope.Sequence,
				EventType:      output.Envelope.EventType.String(),
				IdempotencyKey: output.Envelope.IdempotencyKey,
				MarketIndex:    marketIndex,
				Payload:        output.Batch,
				StateHash:      stateHash,
				Timestamp:      output.Envelope.Timestamp,
			}:
			default:
				// Drop if publish channel is full
			}

		case output, ok := <-projectionIn:
			if !ok {
				return
			}

			var marketIndex *uint16
			if output.Envelope.MarketIndex != nil {
				idx := *output.Envelope.MarketIndex
				marketIndex = &idx
			}

			pOutput := projection.ProjectionOutput{
				Sequence:    output.Envelope.Sequence,
				EventType:   output.Envelope.EventType.String(),
				MarketIndex: marketIndex,
				Timestamp:   output.Envelope.Timestamp.UnixMicro(),
			}

			if output.Batch != nil {
				for _, j := range output.Batch.Journals {
					pOutput.JournalEntries = append(pOutput.JournalEntries, projection.JournalEntry{
						JournalID:     j.JournalID.String(),
						DebitAccount:  j.DebitAccount.AccountPath(),
						CreditAccount: j.CreditAccount.AccountPath(),
						AssetID:       uint16(j.AssetID),
						Amount:        j.Amount,
						JournalType:   int32(j.JournalType),
						Timestamp:     j.Timestamp,
					})
				}
			}

			seq := output.Envelope.Sequence
			if output.MarketView != nil {
				pOutput.MarketState = marketStateRow(*output.MarketView, seq)
			}
			if output.StakeView != nil {
				pOutput.StakeState = stakeStateRow(*output.StakeView, seq)
			}
			if output.StatsView != nil {
				pOutput.UserStats = userStatsRow(*output.StatsView, seq)
			}

			select {
			case projectionOut <- pOutput:
			default:
				// Drop if projection channel is full; rebuild catches up
			}
		}
	}
}

// runIngestionLoop reads raw events from NATS and feeds them to the core.
// The shell validates, parses, and converts raw events before sending to
// the deterministic core.
func runIngestionLoop(ctx context.Context, rawChan <-chan ingestion.RawEvent, vaultCore *core.VaultCore, logger zerolog.Logger) {
	// Build subject-prefix → event-type lookup from DefaultSubjects.
	// Subjects use ">" wildcard, so we match by prefix (strip trailing ".>").
	subjectToType := make(map[string]string)
	for _, sc := range ingestion.DefaultSubjects() {
		prefix := sc.Subject
		if len(prefix) > 2 && prefix[len(prefix)-2:] == ".>" {
			prefix = prefix[:len(prefix)-2]
		}
		subjectToType[prefix] = sc.EventType
	}

	// Messages are acked after the parsed event is handed to the typed
	// channel, NOT after core processing. This prevents AckWait expiry
	// during slow core processing and propagates backpressure via the
	// channel blocking.
	typedEventChan := make(chan event.Event, cap(rawChan))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-rawChan:
				if !ok {
					close(typedEventChan)
					return
				}

				eventType := resolveEventType(raw.Subject, subjectToType)
				if eventType == "" {
					logger.Warn().Str("subject", raw.Subject).Msg("unknown nats subject")
					raw.AckFunc() // Ack to avoid a redelivery loop
					continue
				}

				evt, err := ingestion.ParseRawEvent(raw, eventType)
				if err != nil {
					logger.Warn().Err(err).Str("subject", raw.Subject).Msg("parse event failed")
					raw.AckFunc() // Unparseable events are acked but not forwarded
					continue
				}

				select {
				case typedEventChan <- evt:
					raw.AckFunc() // Ack AFTER successful channel send
				case <-ctx.Done():
					raw.NakFunc()
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-typedEventChan:
			if !ok {
				return
			}

			if err := vaultCore.ProcessEvent(evt); err != nil {
				// Already acked: validation errors (dedup, gap) are final
				logger.Error().Err(err).
					Str("type", evt.EventType().String()).
					Str("key", evt.IdempotencyKey()).
					Msg("process event failed")
			}
		}
	}
}

// resolveEventType finds the event type for a NATS subject by matching the
// longest registered prefix.
func resolveEventType(subject string, prefixMap map[string]string) string {
	bestMatch := ""
	bestType := ""
	for prefix, evtType := range prefixMap {
		if len(subject) >= len(prefix) && subject[:len(prefix)] == prefix {
			if len(prefix) > len(bestMatch) {
				bestMatch = prefix
				bestType = evtType
			}
		}
	}
	return bestType
}

// runAdminIngestionLoop feeds manually injected events to the core.
func runAdminIngestionLoop(ctx context.Context, eventChan <-chan event.Event, vaultCore *core.VaultCore, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-eventChan:
			if !ok {
				return
			}

			if err := vaultCore.ProcessEvent(evt); err != nil {
				logger.Error().Err(err).
					Str("type", evt.EventType().String()).
					Str("key", evt.IdempotencyKey()).
					Msg("process admin event failed")
			}
		}
	}
}

// --- Snapshot restore & replay ---

// restoreStateFromSnapshot converts a persistence.SnapshotData into
// core.SnapshotState and restores the core's in-memory state.
func restoreStateFromSnapshot(vaultCore *core.VaultCore, snap *persistence.SnapshotData, logger zerolog.Logger) error {
	coreSnap := &core.SnapshotState{
		Sequence:        snap.Sequence,
		Balances:        make(map[ledger.AccountKey]int64, len(snap.Balances)),
		Markets:         snap.Markets,
		Users:           snap.Users,
		Stakes:          snap.Stakes,
		OraclePrices:    snap.OraclePrices,
		Stats:           snap.Stats,
		MarketAssets:    make(map[uint16]ledger.AssetID, len(snap.MarketAssets)),
		SequenceState:   snap.SequenceState,
		IdempotencyKeys: snap.IdempotencyKeys,
	}

	copy(coreSnap.StateHash[:], snap.StateHash)

	for path, balance := range snap.Balances {
		key, err := ledger.ParseAccountPath(path)
		if err != nil {
			return fmt.Errorf("parse account path %q: %w", path, err)
		}
		coreSnap.Balances[key] = balance
	}

	for idx, assetID := range snap.MarketAssets {
		coreSnap.MarketAssets[idx] = ledger.AssetID(assetID)
	}

	vaultCore.RestoreFromSnapshot(coreSnap)
	logger.Info().Int64("sequence", snap.Sequence).Msg("restored in-memory state from snapshot")
	return nil
}

// replayEventsFromLog replays events from the event log starting at
// fromSequence. Used for warm restart (replay from snapshot) and cold
// restart (replay all).
func replayEventsFromLog(
	ctx context.Context,
	snapMgr *persistence.SnapshotManager,
	vaultCore *core.VaultCore,
	fromSequence int64,
	logger zerolog.Logger,
) (int64, error) {
	const batchSize = 1000
	var totalReplayed int64

	for {
		events, err := snapMgr.LoadEventsFrom(ctx, fromSequence, batchSize)
		if err != nil {
			return totalReplayed, fmt.Errorf("load events from seq %d: %w", fromSequence, err)
		}

		if len(events) == 0 {
			break
		}

		for _, evtRow := range events {
			raw := ingestion.RawEvent{
				Subject: evtRow.EventType,
				Data:    evtRow.Payload,
			}

			typedEvt, err := ingestion.ParseRawEvent(raw, evtRow.EventType)
			if err != nil {
				logger.Warn().Err(err).
					Int64("sequence", evtRow.Sequence).
					Str("type", evtRow.EventType).
					Msg("skip unparseable event during replay")
				continue
			}

			if err := vaultCore.ProcessEvent(typedEvt); err != nil {
				// Duplicates and sequence errors are expected during replay
				logger.Debug().Err(err).Int64("sequence", evtRow.Sequence).Msg("replay skip")
			}

			totalReplayed++
		}

		fromSequence = events[len(events)-1].Sequence + 1
	}

	return totalReplayed, nil
}

// --- Snapshot helpers ---

// runPeriodicSnapshots takes a snapshot every interval events, checked on a
// coarse timer.
func runPeriodicSnapshots(
	ctx context.Context,
	vaultCore *core.VaultCore,
	snapMgr *persistence.SnapshotManager,
	interval int64,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) {
	if interval <= 0 {
		interval = 100_000
	}

	lastSnapshotSeq := vaultCore.GetSequence()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			currentSeq := vaultCore.GetSequence()
			if currentSeq-lastSnapshotSeq >= interval {
				if err := takeSnapshot(ctx, vaultCore, snapMgr, metrics); err != nil {
					logger.Warn().Err(err).Msg("periodic snapshot failed")
				} else {
					lastSnapshotSeq = currentSeq
					logger.Info().Int64("sequence", currentSeq).Msg("periodic snapshot")
				}
			}
		}
	}
}

// takeSnapshot captures the core's in-memory state and persists it.
func takeSnapshot(
	ctx context.Context,
	vaultCore *core.VaultCore,
	snapMgr *persistence.SnapshotManager,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	coreSnap := vaultCore.CreateSnapshotState()

	snapData := &persistence.SnapshotData{
		Sequence:        coreSnap.Sequence,
		StateHash:       coreSnap.StateHash[:],
		Balances:        make(map[string]int64, len(coreSnap.Balances)),
		Markets:         coreSnap.Markets,
		Users:           coreSnap.Users,
		Stakes:          coreSnap.Stakes,
		OraclePrices:    coreSnap.OraclePrices,
		Stats:           coreSnap.Stats,
		MarketAssets:    make(map[uint16]uint16, len(coreSnap.MarketAssets)),
		SequenceState:   coreSnap.SequenceState,
		IdempotencyKeys: coreSnap.IdempotencyKeys,
		CreatedAt:       time.Now(),
	}

	for key, balance := range coreSnap.Balances {
		snapData.Balances[key.AccountPath()] = balance
	}
	for idx, assetID := range coreSnap.MarketAssets {
		snapData.MarketAssets[idx] = uint16(assetID)
	}

	if err := snapMgr.SaveSnapshot(ctx, snapData); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	// Verified immediately: the data came from live state, not a restore
	if err := snapMgr.MarkVerified(ctx, snapData.Sequence); err != nil {
		return fmt.Errorf("mark snapshot verified: %w", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotLastSeq.Set(float64(snapData.Sequence))
	}

	return nil
}

// --- State projection conversion ---

func marketStateRow(v core.MarketView, seq int64) *projection.MarketStateRow {
	return &projection.MarketStateRow{
		MarketIndex:               v.MarketIndex,
		Name:                      v.Name,
		DepositBalance:            v.DepositBalance,
		BorrowBalance:             v.BorrowBalance,
		CumulativeDepositInterest: v.CumulativeDepositInterest,
		CumulativeBorrowInterest:  v.CumulativeBorrowInterest,
		RevenuePool:               v.RevenuePoolBalance,
		TotalIfShares:             v.TotalIfShares,
		UserIfShares:              v.UserIfShares,
		InsuranceVaultBalance:     v.InsuranceVaultBalance,
		LastSequence:              seq,
	}
}

func stakeStateRow(v core.StakeView, seq int64) *projection.StakeStateRow {
	return &projection.StakeStateRow{
		MarketIndex:               v.MarketIndex,
		Authority:                 v.Authority.String(),
		IfShares:                  v.IfShares,
		LastWithdrawRequestShares: v.LastWithdrawRequestShares,
		LastWithdrawRequestValue:  v.LastWithdrawRequestValue,
		LastWithdrawRequestTs:     v.LastWithdrawRequestTs,
		LastSequence:              seq,
	}
}

func userStatsRow(v core.StatsView, seq int64) *projection.UserStatsRow {
	return &projection.UserStatsRow{
		Authority:                    v.Authority.String(),
		NumberOfUsers:                v.NumberOfUsers,
		QuoteAssetInsuranceFundStake: v.QuoteAssetInsuranceFundStake,
		LastSequence:                 seq,
	}
}

// seedStateProjections pushes the core's full current state into the state
// mirror tables. Runs before ingestion starts, while the core is quiescent.
func seedStateProjections(ctx context.Context, db *sql.DB, vaultCore *core.VaultCore) error {
	marketViews, stakeViews, statsViews := vaultCore.ExportStateViews()
	seq := vaultCore.GetSequence() - 1

	markets := make([]projection.MarketStateRow, 0, len(marketViews))
	for _, v := range marketViews {
		markets = append(markets, *marketStateRow(v, seq))
	}
	stakes := make([]projection.StakeStateRow, 0, len(stakeViews))
	for _, v := range stakeViews {
		stakes = append(stakes, *stakeStateRow(v, seq))
	}
	stats := make([]projection.UserStatsRow, 0, len(statsViews))
	for _, v := range statsViews {
		stats = append(stats, *userStatsRow(v, seq))
	}

	return projection.SyncStateTables(ctx, db, markets, stakes, stats)
}
