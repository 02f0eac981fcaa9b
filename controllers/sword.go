package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pln-staging-api/config"
	"pln-staging-api/middleware"
	"pln-staging-api/models"
	"pln-staging-api/services"
	"pln-staging-api/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SwordBasePath is where the SWORD v2 endpoint is mounted.
const SwordBasePath = "/api/sword/2.0"

// maxDepositDocument bounds the size of an ATOM deposit entry. The package
// itself is harvested separately.
const maxDepositDocument = 10 << 20

// SwordController implements the SWORD v2 deposit protocol.
type SwordController struct {
	db         *gorm.DB
	cfg        config.SwordConfig
	policy     *services.AccessPolicy
	journals   *services.JournalRegistry
	deposits   *services.DepositLifecycle
	statements *services.StatementService
	terms      *services.TermsService
	originals  services.OriginalStore
	log        *zap.SugaredLogger
}

// NewSwordController wires the protocol services around db.
func NewSwordController(db *gorm.DB, cfg config.SwordConfig, terms *services.TermsService, originals services.OriginalStore) *SwordController {
	if db == nil {
		db = config.DB
	}
	if terms == nil {
		terms = services.NewTermsService(db)
	}
	if originals == nil {
		originals = services.NewFileOriginalStore(cfg.OriginalsPath)
	}
	return &SwordController{
		db:         db,
		cfg:        cfg,
		policy:     services.NewAccessPolicy(db, cfg.DefaultAccept),
		journals:   services.NewJournalRegistry(db),
		deposits:   services.NewDepositLifecycle(db, cfg),
		statements: services.NewStatementService(db),
		terms:      terms,
		originals:  originals,
		log:        config.Logger,
	}
}

// ServiceDocument returns the SWORD service document for the journal named in
// the On-Behalf-Of header.
func (s *SwordController) ServiceDocument(c *gin.Context) {
	allowQuery := !s.cfg.Production()
	obh := fetchHeader(c, "On-Behalf-Of", allowQuery)
	journalURL := fetchHeader(c, "Journal-Url", allowQuery)
	if obh == "" {
		s.fail(c, newBadRequest("Missing On-Behalf-Of header."))
		return
	}
	if journalURL == "" {
		s.fail(c, newBadRequest("Missing Journal-Url header."))
		return
	}
	if !utils.ValidateUUID(obh) {
		s.fail(c, newBadRequest(fmt.Sprintf("On-Behalf-Of %q is not a valid UUID.", obh)))
		return
	}
	obh = models.NormalizeUUID(obh)
	ctx := c.Request.Context()

	var (
		journal   *models.Journal
		accepting bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if journal, err = s.journals.WithDB(tx).UpsertFromRequest(ctx, obh, journalURL); err != nil {
			return err
		}
		accepting, err = s.policy.WithDB(tx).IsAccepting(ctx, obh)
		return err
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	doc, err := services.BuildServiceDocument(ctx, s.cfg, s.terms, journal, accepting)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.log.Infow("service document", "journal_uuid", obh, "accepting", doc.Accepting)
	body, err := renderServiceDocument(doc, absoluteURL(c, SwordBasePath+"/col-iri/"+obh))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", body)
}

// CreateDeposit accepts a new deposit from a journal.
func (s *SwordController) CreateDeposit(c *gin.Context) {
	ctx := c.Request.Context()
	journalUUID := c.Param("uuid")

	var (
		journal   *models.Journal
		statement *services.Statement
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		journals := s.journals.WithDB(tx)
		if journal, err = journals.Find(ctx, journalUUID); err != nil {
			return err
		}
		if err := s.requireDepositAccess(c, tx, journal); err != nil {
			return err
		}
		doc, err := readDocument(c)
		if err != nil {
			return err
		}
		if journal, err = journals.UpsertFromXml(ctx, doc, journal.UUID); err != nil {
			return err
		}
		deposit, err := s.deposits.WithDB(tx).CreateFromXml(ctx, journal, doc, models.ActionAdd)
		if err != nil {
			return err
		}
		statement, err = s.statements.WithDB(tx).Render(ctx, journal, deposit)
		return err
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondStatement(c, http.StatusCreated, statement, true)
}

// Statement returns the current state of a deposit.
func (s *SwordController) Statement(c *gin.Context) {
	ctx := c.Request.Context()

	var statement *services.Statement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		journal, deposit, err := s.loadPair(c, tx)
		if err != nil {
			return err
		}
		accepting, err := s.policy.WithDB(tx).IsAccepting(ctx, journal.UUID)
		if err != nil {
			return err
		}
		if !accepting && !middleware.HasRole(c, models.RoleOperator, models.RoleAdmin) {
			return forbidden("Not authorized to request statements.")
		}
		statement, err = s.statements.WithDB(tx).Render(ctx, journal, deposit)
		return err
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondStatement(c, http.StatusOK, statement, false)
}

// EditDeposit replaces the content of an existing deposit. The response
// mirrors CreateDeposit, including the 201 status.
func (s *SwordController) EditDeposit(c *gin.Context) {
	ctx := c.Request.Context()

	var statement *services.Statement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		journal, deposit, err := s.loadPair(c, tx)
		if err != nil {
			return err
		}
		if err := s.requireDepositAccess(c, tx, journal); err != nil {
			return err
		}
		if deposit.JournalID != journal.ID {
			return &services.SwordError{Kind: services.ErrForbiddenCrossReference, Message: "Deposit does not belong to journal."}
		}
		doc, err := readDocument(c)
		if err != nil {
			return err
		}
		if deposit, err = s.deposits.WithDB(tx).UpdateFromXml(ctx, journal, deposit, doc); err != nil {
			return err
		}
		statement, err = s.statements.WithDB(tx).Render(ctx, journal, deposit)
		return err
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondStatement(c, http.StatusCreated, statement, true)
}

// OriginalDeposit streams the package the journal originally submitted.
func (s *SwordController) OriginalDeposit(c *gin.Context) {
	ctx := c.Request.Context()
	journal, deposit, err := s.loadPair(c, s.db.WithContext(ctx))
	if err != nil {
		s.fail(c, err)
		return
	}
	accepting, err := s.policy.IsAccepting(ctx, journal.UUID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !accepting && !middleware.HasRole(c, models.RoleOperator, models.RoleAdmin) {
		s.fail(c, forbidden("Not authorized to fetch deposits."))
		return
	}
	if deposit.JournalID != journal.ID {
		s.fail(c, &services.SwordError{Kind: services.ErrForbiddenCrossReference, Message: "Deposit does not belong to journal."})
		return
	}

	f, err := s.originals.Open(journal, deposit)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), "application/zip", f, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s.zip"`, deposit.DepositUUID),
	})
}

func (s *SwordController) loadPair(c *gin.Context, tx *gorm.DB) (*models.Journal, *models.Deposit, error) {
	ctx := c.Request.Context()
	journal, err := s.journals.WithDB(tx).Find(ctx, c.Param("journal_uuid"))
	if err != nil {
		return nil, nil, err
	}
	deposit, err := s.deposits.WithDB(tx).Find(ctx, c.Param("deposit_uuid"))
	if err != nil {
		return nil, nil, err
	}
	return journal, deposit, nil
}

// requireDepositAccess applies the access policy and the terms of use check
// that gate deposit creation and edits.
func (s *SwordController) requireDepositAccess(c *gin.Context, tx *gorm.DB, journal *models.Journal) error {
	accepting, err := s.policy.WithDB(tx).IsAccepting(c.Request.Context(), journal.UUID)
	if err != nil {
		return err
	}
	if !accepting || !journal.TermsAccepted {
		s.log.Infow("deposit refused",
			"journal_uuid", journal.UUID,
			"accepting", accepting,
			"terms_accepted", journal.TermsAccepted,
		)
		return forbidden("Not authorized to create deposits.")
	}
	return nil
}

func (s *SwordController) respondStatement(c *gin.Context, status int, st *services.Statement, withLocation bool) {
	statePath := fmt.Sprintf("%s/cont-iri/%s/%s/state", SwordBasePath, st.JournalUUID, st.DepositUUID)
	originalPath := fmt.Sprintf("%s/original/%s/%s", SwordBasePath, st.JournalUUID, st.DepositUUID)

	body, err := renderStatement(st, absoluteURL(c, originalPath))
	if err != nil {
		s.fail(c, err)
		return
	}
	if withLocation {
		c.Header("Location", absoluteURL(c, statePath))
	}
	c.Data(status, "text/xml; charset=utf-8", body)
}

// fail writes a SWORD error document. Authorization and ownership failures
// are reported as 400 like every other protocol error; only unknown resources
// (404) and duplicates or invalid transitions (409) differ.
func (s *SwordController) fail(c *gin.Context, err error) {
	status, errorType := swordStatus(err)
	message := services.ErrorMessage(err)
	if status == http.StatusInternalServerError {
		s.log.Errorw("sword request failed", "path", c.FullPath(), "error", err)
		message = "Internal server error."
	}
	body, renderErr := renderSwordError(errorType, message)
	if renderErr != nil {
		c.String(status, message)
		return
	}
	c.Data(status, "text/xml; charset=utf-8", body)
}

func swordStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "ErrorNotFound"
	case errors.Is(err, services.ErrDuplicateDeposit), errors.Is(err, services.ErrInvalidTransition):
		return http.StatusConflict, "ErrorConflict"
	case errors.Is(err, services.ErrMalformedRequest),
		errors.Is(err, services.ErrMissingRequiredField),
		errors.Is(err, services.ErrAmbiguousField),
		errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, "ErrorBadRequest"
	case errors.Is(err, services.ErrForbidden), errors.Is(err, services.ErrForbiddenCrossReference):
		return http.StatusBadRequest, "TargetOwnerUnknown"
	default:
		return http.StatusInternalServerError, "ErrorInternal"
	}
}

func forbidden(message string) error {
	return &services.SwordError{Kind: services.ErrForbidden, Message: message}
}

func newBadRequest(message string) error {
	return &services.SwordError{Kind: services.ErrMissingRequiredField, Message: message}
}

func readDocument(c *gin.Context) (*services.ParsedDocument, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDepositDocument))
	if err != nil {
		return nil, &services.SwordError{Kind: services.ErrMalformedRequest, Message: "Cannot read request body."}
	}
	return services.ParseXML(body)
}

// fetchHeader looks a value up by header name, then by its X- variant, then,
// when allowQuery is set, by query parameter.
func fetchHeader(c *gin.Context, key string, allowQuery bool) string {
	if v := strings.TrimSpace(c.GetHeader(key)); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.GetHeader("X-" + key)); v != "" {
		return v
	}
	if allowQuery {
		return strings.TrimSpace(c.Query(key))
	}
	return ""
}

func absoluteURL(c *gin.Context, path string) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	proto, _, _ := strings.Cut(c.GetHeader("X-Forwarded-Proto"), ",")
	switch proto = strings.ToLower(strings.TrimSpace(proto)); proto {
	case "http", "https":
		scheme = proto
	}
	return scheme + "://" + c.Request.Host + path
}
