package controllers

import (
	"errors"
	"net/http"

	"pln-staging-api/config"
	"pln-staging-api/models"
	"pln-staging-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// DepositAdminController serves the operator API used by the downstream
// processing pipeline to report progress on deposits.
type DepositAdminController struct {
	db       *gorm.DB
	deposits *services.DepositLifecycle
	journals *services.JournalRegistry
	health   *services.JournalHealthService
}

func NewDepositAdminController(db *gorm.DB, cfg config.SwordConfig, health *services.JournalHealthService) *DepositAdminController {
	if db == nil {
		db = config.DB
	}
	if health == nil {
		health = services.NewJournalHealthService(db, nil, nil, config.OperatorEmails())
	}
	return &DepositAdminController{
		db:       db,
		deposits: services.NewDepositLifecycle(db, cfg),
		journals: services.NewJournalRegistry(db),
		health:   health,
	}
}

type depositResponse struct {
	JournalUUID string          `json:"journal_uuid"`
	Deposit     *models.Deposit `json:"deposit"`
}

type stateRequest struct {
	State string `json:"state" binding:"required"`
	Note  string `json:"note"`
}

type packageRequest struct {
	Size          int64  `json:"size" binding:"required,min=1"`
	ChecksumType  string `json:"checksum_type" binding:"required"`
	ChecksumValue string `json:"checksum_value" binding:"required"`
}

type sentRequest struct {
	Receipt string `json:"receipt"`
}

type plnStateRequest struct {
	PlnState string `json:"pln_state" binding:"required"`
}

type errorRequest struct {
	Message string `json:"message" binding:"required"`
}

// GetDeposit returns a deposit with its processing history.
func (a *DepositAdminController) GetDeposit(c *gin.Context) {
	deposit, err := a.deposits.Find(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		respondError(c, err)
		return
	}
	a.respondDeposit(c, a.db, deposit)
}

// UpdateState moves a deposit to another lifecycle state.
func (a *DepositAdminController) UpdateState(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.mutate(c, func(l *services.DepositLifecycle, d *models.Deposit) error {
		return l.Transition(c.Request.Context(), d, req.State, req.Note)
	})
}

// RecordHarvestAttempt increments the deposit's harvest counter.
func (a *DepositAdminController) RecordHarvestAttempt(c *gin.Context) {
	a.mutate(c, func(l *services.DepositLifecycle, d *models.Deposit) error {
		return l.RecordHarvestAttempt(c.Request.Context(), d)
	})
}

// RecordPackage stores the processed package size and checksum.
func (a *DepositAdminController) RecordPackage(c *gin.Context) {
	var req packageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.mutate(c, func(l *services.DepositLifecycle, d *models.Deposit) error {
		return l.RecordPackage(c.Request.Context(), d, req.Size, req.ChecksumType, req.ChecksumValue)
	})
}

// RecordSent stores the network's deposit receipt.
func (a *DepositAdminController) RecordSent(c *gin.Context) {
	var req sentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.mutate(c, func(l *services.DepositLifecycle, d *models.Deposit) error {
		return l.RecordSent(c.Request.Context(), d, req.Receipt)
	})
}

// SetPlnState records the state reported by the preservation network.
func (a *DepositAdminController) SetPlnState(c *gin.Context) {
	var req plnStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.mutate(c, func(l *services.DepositLifecycle, d *models.Deposit) error {
		return l.SetPlnState(c.Request.Context(), d, req.PlnState)
	})
}

// RecordError logs a processing failure against the deposit.
func (a *DepositAdminController) RecordError(c *gin.Context) {
	var req errorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a.mutate(c, func(l *services.DepositLifecycle, d *models.Deposit) error {
		return l.RecordError(c.Request.Context(), d, req.Message)
	})
}

// GetJournal returns a journal record.
func (a *DepositAdminController) GetJournal(c *gin.Context) {
	journal, err := a.journals.Find(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"journal": journal})
}

// ListJournalDeposits returns every deposit made by a journal.
func (a *DepositAdminController) ListJournalDeposits(c *gin.Context) {
	ctx := c.Request.Context()
	journal, err := a.journals.Find(ctx, c.Param("uuid"))
	if err != nil {
		respondError(c, err)
		return
	}
	deposits, err := a.journals.DepositsForJournal(ctx, journal.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"journal_uuid": journal.UUID,
		"deposits":     deposits,
		"count":        len(deposits),
	})
}

// PingJournal contacts the journal's gateway and reports the result.
func (a *DepositAdminController) PingJournal(c *gin.Context) {
	ctx := c.Request.Context()
	journal, err := a.journals.Find(ctx, c.Param("uuid"))
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := a.health.Ping(ctx, journal)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   services.ErrorMessage(err),
			"journal": journal,
			"result":  result,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"journal": journal, "result": result})
}

func (a *DepositAdminController) mutate(c *gin.Context, fn func(*services.DepositLifecycle, *models.Deposit) error) {
	ctx := c.Request.Context()
	var deposit *models.Deposit
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lifecycle := a.deposits.WithDB(tx)
		var err error
		if deposit, err = lifecycle.Find(ctx, c.Param("uuid")); err != nil {
			return err
		}
		return fn(lifecycle, deposit)
	})
	if err != nil {
		respondError(c, err)
		return
	}
	a.respondDeposit(c, a.db, deposit)
}

func (a *DepositAdminController) respondDeposit(c *gin.Context, db *gorm.DB, deposit *models.Deposit) {
	var journal models.Journal
	if err := db.WithContext(c.Request.Context()).Select("uuid").Take(&journal, deposit.JournalID).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, depositResponse{JournalUUID: journal.UUID, Deposit: deposit})
}

// respondError maps service errors onto the JSON API's status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": services.ErrorMessage(err)})
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrDuplicateDeposit):
		c.JSON(http.StatusConflict, gin.H{"error": services.ErrorMessage(err)})
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrMalformedRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": services.ErrorMessage(err)})
	default:
		config.Logger.Errorw("operator request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
