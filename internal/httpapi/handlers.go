package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/algoease/backend/internal/core/domain"
	"github.com/algoease/backend/internal/health"
	"github.com/algoease/backend/internal/infra/storage"
)

// Reconciler is the slice of the reconcile service the API calls into.
type Reconciler interface {
	ReconcileNow(ctx context.Context, bountyRowID string) (*domain.Bounty, error)
	EnqueueRefund(ctx context.Context, bountyRowID string) error
}

// HealthChecker reports aggregate system health.
type HealthChecker interface {
	Check(ctx context.Context) *health.Report
}

// Handler serves the bounty REST API.
type Handler struct {
	bounties   storage.BountyRepository
	reconciler Reconciler
	checker    HealthChecker
	log        *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(bounties storage.BountyRepository, reconciler Reconciler, checker HealthChecker) *Handler {
	return &Handler{
		bounties:   bounties,
		reconciler: reconciler,
		checker:    checker,
		log:        slog.Default().With("component", "httpapi"),
	}
}

type createBountyRequest struct {
	Title         string `json:"title" binding:"required"`
	Description   string `json:"description"`
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	ClientAddress string `json:"client_address" binding:"required"`
	CreateTxID    string `json:"create_txid" binding:"required"`
}

type actionRequest struct {
	TxID string `json:"txid" binding:"required"`
}

type acceptRequest struct {
	TxID              string `json:"txid" binding:"required"`
	FreelancerAddress string `json:"freelancer_address" binding:"required"`
}

func (h *Handler) createBounty(c *gin.Context) {
	var req createBountyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := domain.ValidateAddress(req.ClientAddress); err != nil {
		badRequest(c, "invalid client_address: "+err.Error())
		return
	}
	if err := domain.ValidateTxID(req.CreateTxID); err != nil {
		badRequest(c, "invalid create_txid: "+err.Error())
		return
	}

	b := &domain.Bounty{
		ID:            uuid.New().String(),
		Title:         req.Title,
		Description:   req.Description,
		Amount:        req.Amount,
		Status:        domain.StatusOpen,
		ClientAddress: req.ClientAddress,
		CreateTxID:    req.CreateTxID,
	}
	if err := h.bounties.Create(c.Request.Context(), b); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *Handler) listBounties(c *gin.Context) {
	filter := storage.BountyFilter{
		Client:     c.Query("client"),
		Freelancer: c.Query("freelancer"),
	}
	if status := c.Query("status"); status != "" {
		s := domain.Status(status)
		if !domain.ValidStatus(s) {
			badRequest(c, "unknown status "+status)
			return
		}
		filter.Status = s
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	if offset := c.Query("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			badRequest(c, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	bounties, err := h.bounties.List(c.Request.Context(), filter)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bounties": bounties, "count": len(bounties)})
}

func (h *Handler) getBounty(c *gin.Context) {
	b, err := h.lookup(c)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// lookup resolves the :id path parameter. A numeric id is the on-chain
// bounty id; anything else is treated as a row UUID.
func (h *Handler) lookup(c *gin.Context) (*domain.Bounty, error) {
	id := c.Param("id")
	if onChain, err := strconv.ParseInt(id, 10, 64); err == nil {
		return h.bounties.GetByBountyID(c.Request.Context(), onChain)
	}
	return h.bounties.GetByRowID(c.Request.Context(), id)
}

func (h *Handler) transition(next domain.Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req actionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := domain.ValidateTxID(req.TxID); err != nil {
			badRequest(c, "invalid txid: "+err.Error())
			return
		}
		h.applyTransition(c, storage.StatusUpdate{NextStatus: next, TxID: req.TxID})
	}
}

func (h *Handler) acceptBounty(c *gin.Context) {
	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := domain.ValidateTxID(req.TxID); err != nil {
		badRequest(c, "invalid txid: "+err.Error())
		return
	}
	if err := domain.ValidateAddress(req.FreelancerAddress); err != nil {
		badRequest(c, "invalid freelancer_address: "+err.Error())
		return
	}
	h.applyTransition(c, storage.StatusUpdate{
		NextStatus: domain.StatusAccepted,
		TxID:       req.TxID,
		Freelancer: req.FreelancerAddress,
	})
}

func (h *Handler) applyTransition(c *gin.Context, update storage.StatusUpdate) {
	b, err := h.lookup(c)
	if err != nil {
		h.renderError(c, err)
		return
	}
	update.RowID = b.ID

	updated, err := h.bounties.UpdateStatus(c.Request.Context(), update)
	if err != nil {
		h.renderError(c, err)
		return
	}

	if update.NextStatus == domain.StatusRejected {
		if err := h.reconciler.EnqueueRefund(c.Request.Context(), b.ID); err != nil {
			// The periodic pass re-queues refunds for rejected bounties,
			// so the action itself still succeeded.
			h.log.Warn("failed to enqueue refund confirmation",
				"bounty", b.ID, "error", err)
		}
	}

	c.JSON(http.StatusOK, updated)
}

func (h *Handler) reconcileBounty(c *gin.Context) {
	b, err := h.lookup(c)
	if err != nil {
		h.renderError(c, err)
		return
	}

	reconciled, err := h.reconciler.ReconcileNow(c.Request.Context(), b.ID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, reconciled)
}

func (h *Handler) healthz(c *gin.Context) {
	report := h.checker.Check(c.Request.Context())
	code := http.StatusOK
	if report.Status == health.StatusCritical {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": report.Status, "checked_at": report.CheckedAt.Format(time.RFC3339)})
}

func (h *Handler) healthzDetailed(c *gin.Context) {
	report := h.checker.Check(c.Request.Context())
	code := http.StatusOK
	if report.Status == health.StatusCritical {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrBountyNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "bounty not found"})
	case errors.Is(err, storage.ErrInvalidTransition),
		errors.Is(err, storage.ErrDuplicateBountyID):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
