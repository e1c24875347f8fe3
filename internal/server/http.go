package server

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"SpotVault/internal/ingestion"
	"SpotVault/internal/observability"
	"SpotVault/internal/query"
)

// HTTPServer serves the read API, admin endpoints, health probes, and the
// Prometheus metrics endpoint over a single gin router.
type HTTPServer struct {
	httpServer    *http.Server
	queryService  *query.QueryService
	ingestService *ingestion.AdminIngestService
	healthChecker *observability.HealthChecker
	metrics       *observability.Metrics
	rebuildFunc   func(ctx context.Context) error
}

// HTTPDeps holds the dependencies for the HTTP API.
type HTTPDeps struct {
	QueryService  *query.QueryService
	IngestService *ingestion.AdminIngestService
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	RebuildFunc   func(ctx context.Context) error
}

// NewHTTPServer builds the router and wraps it in an http.Server.
func NewHTTPServer(httpAddr string, deps *HTTPDeps) *HTTPServer {
	s := &HTTPServer{
		queryService:  deps.QueryService,
		ingestService: deps.IngestService,
		healthChecker: deps.HealthChecker,
		metrics:       deps.Metrics,
		rebuildFunc:   deps.RebuildFunc,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if deps.Metrics != nil {
		router.Use(s.instrument())
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if deps.HealthChecker != nil {
		router.GET("/healthz", gin.WrapF(deps.HealthChecker.LivenessHandler))
		router.GET("/readyz", gin.WrapF(deps.HealthChecker.ReadinessHandler))
	}

	v1 := router.Group("/v1")
	{
		v1.GET("/markets/:index/vaults", s.getVaultBalances)
		v1.GET("/markets/:index/summary", s.getMarketSummary)
		v1.GET("/markets/:index/stakes/:authority", s.getStake)
		v1.GET("/markets/:index/insurance/history", s.getInsuranceHistory)
		v1.GET("/stats/:authority", s.getUserStats)
		v1.GET("/journals", s.getJournalHistory)
		v1.GET("/events/:sequence", s.getEvent)
	}

	admin := router.Group("/v1/admin")
	{
		admin.GET("/integrity", s.verifyIntegrity)
		admin.POST("/projections/rebuild", s.rebuildProjections)
		admin.POST("/inject/deposit", s.injectDeposit)
		admin.POST("/inject/withdrawal", s.injectWithdrawal)
		admin.POST("/inject/price", s.injectOraclePrice)
		admin.POST("/inject/interest", s.injectInterestUpdate)
		admin.POST("/inject/settle", s.injectRevenueSettle)
		admin.POST("/inject/params", s.injectParamUpdate)
	}

	s.httpServer = &http.Server{
		Addr:    httpAddr,
		Handler: router,
	}
	return s
}

// Start starts the HTTP server (blocking).
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		s.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
		s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if c.Writer.Status() >= 400 {
			s.metrics.QueryErrors.WithLabelValues(endpoint, status).Inc()
		}
	}
}

// ============================================================================
// Read API
// ============================================================================

func (s *HTTPServer) getVaultBalances(c *gin.Context) {
	marketIndex, ok := parseMarketIndex(c)
	if !ok {
		return
	}

	asset := c.Query("asset")
	if asset == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset query parameter is required"})
		return
	}

	resp, err := s.queryService.GetVaultBalances(c.Request.Context(), marketIndex, asset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) getMarketSummary(c *gin.Context) {
	marketIndex, ok := parseMarketIndex(c)
	if !ok {
		return
	}

	resp, err := s.queryService.GetMarketSummary(c.Request.Context(), marketIndex)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if resp == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "market not found"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) getStake(c *gin.Context) {
	marketIndex, ok := parseMarketIndex(c)
	if !ok {
		return
	}
	authority, ok := parseAuthority(c)
	if !ok {
		return
	}

	resp, err := s.queryService.GetStake(c.Request.Context(), marketIndex, authority)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if resp == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "stake not found"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) getUserStats(c *gin.Context) {
	authority, ok := parseAuthority(c)
	if !ok {
		return
	}

	resp, err := s.queryService.GetUserStats(c.Request.Context(), authority)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if resp == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no stats for authority"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) getInsuranceHistory(c *gin.Context) {
	marketIndex, ok := parseMarketIndex(c)
	if !ok {
		return
	}

	limit := parseLimit(c, 50, 500)
	afterSequence := parseAfterSequence(c)

	history, err := s.queryService.GetInsuranceHistory(c.Request.Context(), marketIndex, limit, afterSequence)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (s *HTTPServer) getJournalHistory(c *gin.Context) {
	accountPath := c.Query("account")
	if accountPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account query parameter is required"})
		return
	}

	limit := parseLimit(c, 100, 500)
	afterSequence := parseAfterSequence(c)

	entries, err := s.queryService.GetJournalHistory(c.Request.Context(), accountPath, limit, afterSequence)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"journals": entries})
}

func (s *HTTPServer) getEvent(c *gin.Context) {
	sequence, err := strconv.ParseInt(c.Param("sequence"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sequence"})
		return
	}

	entry, err := s.queryService.GetEvent(c.Request.Context(), sequence)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ============================================================================
// Admin API
// ============================================================================

func (s *HTTPServer) verifyIntegrity(c *gin.Context) {
	report, err := s.queryService.VerifyIntegrity(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *HTTPServer) rebuildProjections(c *gin.Context) {
	if s.rebuildFunc == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "rebuild not configured"})
		return
	}
	if err := s.rebuildFunc(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rebuilt": true})
}

type injectTransferRequest struct {
	Authority string `json:"authority" binding:"required"`
	Market    uint16 `json:"market"`
	Amount    int64  `json:"amount" binding:"required"`
}

func (s *HTTPServer) injectDeposit(c *gin.Context) {
	var req injectTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	authority, err := uuid.Parse(req.Authority)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid authority"})
		return
	}
	if err := s.ingestService.InjectDeposit(c.Request.Context(), authority, req.Market, req.Amount); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func (s *HTTPServer) injectWithdrawal(c *gin.Context) {
	var req injectTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	authority, err := uuid.Parse(req.Authority)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid authority"})
		return
	}
	if err := s.ingestService.InjectWithdrawal(c.Request.Context(), authority, req.Market, req.Amount); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

type injectPriceRequest struct {
	Market        uint16 `json:"market"`
	Price         int64  `json:"price" binding:"required"`
	PriceSequence int64  `json:"price_sequence" binding:"required"`
}

func (s *HTTPServer) injectOraclePrice(c *gin.Context) {
	var req injectPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.ingestService.InjectOraclePrice(c.Request.Context(), req.Market, req.Price, req.PriceSequence); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

type injectMarketRequest struct {
	Market uint16 `json:"market"`
}

func (s *HTTPServer) injectInterestUpdate(c *gin.Context) {
	var req injectMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.ingestService.InjectInterestUpdate(c.Request.Context(), req.Market); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func (s *HTTPServer) injectRevenueSettle(c *gin.Context) {
	var req injectMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.ingestService.InjectRevenueSettle(c.Request.Context(), req.Market); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

type injectParamsRequest struct {
	Market              uint16 `json:"market"`
	EscrowPeriod        *int64 `json:"escrow_period_s"`
	RevenueSettlePeriod *int64 `json:"revenue_settle_period_s"`
	IfFactorNumerator   *int64 `json:"if_factor_numerator"`
	IfFactorDenominator *int64 `json:"if_factor_denominator"`
}

func (s *HTTPServer) injectParamUpdate(c *gin.Context) {
	var req injectParamsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := s.ingestService.InjectParamUpdate(
		c.Request.Context(),
		req.Market,
		req.EscrowPeriod, req.RevenueSettlePeriod,
		req.IfFactorNumerator, req.IfFactorDenominator,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// ============================================================================
// Helpers
// ============================================================================

func parseMarketIndex(c *gin.Context) (uint16, bool) {
	idx, err := strconv.ParseUint(c.Param("index"), 10, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid market index"})
		return 0, false
	}
	return uint16(idx), true
}

func parseAuthority(c *gin.Context) (uuid.UUID, bool) {
	authority, err := uuid.Parse(c.Param("authority"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid authority"})
		return uuid.Nil, false
	}
	return authority, true
}

func parseLimit(c *gin.Context, def, max int) int {
	limit := def
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

func parseAfterSequence(c *gin.Context) *int64 {
	if raw := c.Query("after"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			return &v
		}
	}
	return nil
}
