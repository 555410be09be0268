// Package server is the thin HTTP adapter over the facilitator engine. It
// owns JSON (de)serialization and status-code mapping, nothing else: business
// rejections are HTTP 200 with a structured invalid response, infrastructure
// faults are HTTP 400.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ultravioletadao/x402-facilitator/internal/chain"
	"github.com/ultravioletadao/x402-facilitator/internal/facilitator"
	"github.com/ultravioletadao/x402-facilitator/internal/payment"
)

// Facilitator is the engine surface the adapter needs. Decoupled here so
// handler tests can use a stub.
type Facilitator interface {
	Verify(ctx context.Context, req *payment.VerifyRequest) (*payment.VerifyResponse, error)
	Settle(ctx context.Context, req *payment.SettleRequest) (*payment.SettleResponse, error)
	Kinds() []payment.SupportedKind
	Health() map[payment.Network]chain.Health
}

// History exposes recent settlement outcomes for the ops endpoint.
// Implemented by journal.Journal; nil disables the route.
type History interface {
	Recent(ctx context.Context, n int64) ([]facilitator.SettlementRecord, error)
}

// Handler wires the facilitator routes onto a Gin engine.
type Handler struct {
	fac      Facilitator
	hist     History
	validate *validator.Validate
	log      *zap.Logger
}

func NewHandler(fac Facilitator, hist History, log *zap.Logger) *Handler {
	return &Handler{
		fac:      fac,
		hist:     hist,
		validate: validator.New(),
		log:      log,
	}
}

// Register mounts all routes on the group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/", h.handleIndex)
	rg.GET("/verify", h.handleVerifyInfo)
	rg.POST("/verify", h.handleVerify)
	rg.GET("/settle", h.handleSettleInfo)
	rg.POST("/settle", h.handleSettle)
	rg.GET("/supported", h.handleSupported)
	rg.GET("/healthz", h.handleHealth)
	if h.hist != nil {
		rg.GET("/settlements", h.handleSettlements)
	}
}

func (h *Handler) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name": "x402 facilitator",
		"endpoints": gin.H{
			"verify":    "POST /verify",
			"settle":    "POST /settle",
			"supported": "GET /supported",
			"health":    "GET /healthz",
		},
	})
}

// handleVerifyInfo describes how to construct a verify request, for
// discoverability and debugging tools.
func (h *Handler) handleVerifyInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"endpoint":    "/verify",
		"description": "POST to verify x402 payments",
		"body": gin.H{
			"paymentPayload":      "PaymentPayload",
			"paymentRequirements": "PaymentRequirements",
		},
	})
}

func (h *Handler) handleSettleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"endpoint":    "/settle",
		"description": "POST to settle x402 payments",
		"body": gin.H{
			"paymentPayload":      "PaymentPayload",
			"paymentRequirements": "PaymentRequirements",
		},
	})
}

func (h *Handler) handleSupported(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"kinds": h.fac.Kinds()})
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.fac.Health()})
}

func (h *Handler) handleSettlements(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	recs, err := h.hist.Recent(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("read settlement history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settlements": recs})
}

func (h *Handler) handleVerify(c *gin.Context) {
	var req payment.VerifyRequest
	if reason, ok := h.bind(c, &req); !ok {
		// Undecodable input is a structured rejection, not a transport error.
		c.JSON(http.StatusOK, payment.VerifyResponse{IsValid: false, InvalidReason: reason})
		return
	}

	resp, err := h.fac.Verify(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "verification failed", &req, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleSettle(c *gin.Context) {
	var req payment.SettleRequest
	if reason, ok := h.bind(c, &req); !ok {
		c.JSON(http.StatusOK, payment.SettleResponse{Success: false, ErrorReason: reason})
		return
	}

	resp, err := h.fac.Settle(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "settlement failed", &req, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// bind decodes and structurally validates the request body. On failure it
// returns the rejection reason and false.
func (h *Handler) bind(c *gin.Context, req *payment.VerifyRequest) (string, bool) {
	if err := c.ShouldBindJSON(req); err != nil {
		return "decoding error: " + err.Error(), false
	}
	if err := h.validate.Struct(req); err != nil {
		return "decoding error: " + err.Error(), false
	}
	return "", true
}

// fail maps infrastructure faults to 400, logging the offending body the way
// a facilitator operator will want to see it.
func (h *Handler) fail(c *gin.Context, msg string, req *payment.VerifyRequest, err error) {
	body, merr := json.Marshal(req)
	if merr != nil {
		body = []byte("<can-not-serialize>")
	}
	h.log.Warn(msg,
		zap.Error(err),
		zap.ByteString("body", body),
	)

	var ferr *facilitator.Error
	if errors.As(err, &ferr) && !ferr.Business() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
}
