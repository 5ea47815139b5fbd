package api

import (
	"bytes"
	"errors"
	"mime"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/insightdelivered/statement-ledger/internal/alerts"
	"github.com/insightdelivered/statement-ledger/internal/extractor"
	"github.com/insightdelivered/statement-ledger/internal/ledger"
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/parser"
	"github.com/insightdelivered/statement-ledger/internal/store"
	"github.com/insightdelivered/statement-ledger/internal/writer"
	"github.com/shopspring/decimal"
)

// Version is reported by the health endpoint.
const Version = "2.0.0"

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// StatementResponse is returned by the upload and draft endpoints.
type StatementResponse struct {
	Success            bool                          `json:"success"`
	DraftID            string                        `json:"draftId"`
	Template           string                        `json:"template"`
	Transactions       []models.CandidateTransaction `json:"transactions"`
	StatementStartDate string                        `json:"statementStartDate,omitempty"`
	StatementEndDate   string                        `json:"statementEndDate,omitempty"`
	Count              int                           `json:"count"`
	RawText            string                        `json:"rawText,omitempty"`
	DebugLines         []models.DebugLine            `json:"debugLines,omitempty"`
}

// FinalizeRequest is the body of POST /api/transactions/finalize. The
// statement dates default to the referenced draft's period.
type FinalizeRequest struct {
	DraftID            string                        `json:"draftId"`
	Transactions       []models.CandidateTransaction `json:"transactions"`
	StatementStartDate string                        `json:"statementStartDate"`
	StatementEndDate   string                        `json:"statementEndDate"`
}

// TransactionRequest is the body of transaction create and update. Dates use
// YYYY-MM-DD. On update, omitted fields keep their stored values.
type TransactionRequest struct {
	Date        *string          `json:"date"`
	Description *string          `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	Category    *string          `json:"category"`
	Status      *string          `json:"status"`
}

// BudgetRequest is the body of POST and PUT /api/budgets. Dates use YYYY-MM-DD.
type BudgetRequest struct {
	Name       string          `json:"name"`
	Frequency  string          `json:"frequency"`
	Amount     decimal.Decimal `json:"amount"`
	Categories []string        `json:"categories"`
	StartDate  string          `json:"startDate"`
	EndDate    string          `json:"endDate"`
}

// Deps wires a Handler to its collaborators.
type Deps struct {
	Store     store.Store
	Finalizer *ledger.Finalizer
	Engine    *alerts.Engine
	Drafts    *DraftCache
	Parser    parser.Config
	// Template is used when an upload names none; empty means auto-detect.
	Template      models.Template
	MaxUploadSize int64
}

// Handler holds the HTTP handlers for the API.
type Handler struct {
	Deps
}

func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

// HandleHealth reports liveness.
func HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"engine":  "fiber",
		"version": Version,
	})
}

// HandleUpload parses an uploaded statement into a reviewable draft. Text
// already extracted on the client may be sent in the extractedText field;
// otherwise the PDF's text layer is read on the server.
func (h *Handler) HandleUpload(c *fiber.Ctx) error {
	log := requestLogger(c)
	userID := currentUser(c)

	// form values alias the request buffer, which fiber reuses
	text := strings.TrimSpace(utils.CopyString(c.FormValue("extractedText")))
	fileHeader, fileErr := c.FormFile("file")

	if fileErr == nil {
		if !isPDF(fileHeader) {
			return writeError(c, fiber.StatusBadRequest, "invalid file type")
		}
		if h.MaxUploadSize > 0 && fileHeader.Size > h.MaxUploadSize {
			return writeError(c, fiber.StatusRequestEntityTooLarge, "file too large")
		}
	}

	if text == "" {
		if fileErr != nil {
			return writeError(c, fiber.StatusBadRequest, "no file uploaded; use form field 'file'")
		}
		extracted, err := extractFormFile(fileHeader)
		if err != nil {
			log.Warn().Err(err).Str("filename", fileHeader.Filename).Msg("PDF extraction failed")
			return writeError(c, fiber.StatusUnprocessableEntity, "failed to parse PDF statement")
		}
		text = extracted
	}

	template, err := h.resolveTemplate(utils.CopyString(c.FormValue("template")), text)
	if err != nil {
		return writeError(c, fiber.StatusUnprocessableEntity, err.Error())
	}
	p, err := parser.New(template, h.Parser)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}

	result := p.Parse(c.UserContext(), text)
	draft := h.Drafts.Put(userID, result)

	log.Info().
		Str("draft_id", draft.ID).
		Str("template", string(template)).
		Int("count", len(result.Transactions)).
		Msg("statement parsed")

	resp := statementResponse(draft, c.QueryBool("debug"))
	if c.QueryBool("debug") {
		resp.RawText = text
	}
	return c.JSON(resp)
}

// HandleGetDraft returns a previously uploaded draft owned by the caller.
func (h *Handler) HandleGetDraft(c *fiber.Ctx) error {
	draft, ok := h.Drafts.Get(currentUser(c), c.Params("id"))
	if !ok {
		return writeError(c, fiber.StatusNotFound, "draft not found or expired")
	}
	return c.JSON(statementResponse(draft, c.QueryBool("debug")))
}

// HandleFinalize persists reviewed candidates as approved transactions.
func (h *Handler) HandleFinalize(c *fiber.Ctx) error {
	log := requestLogger(c)
	userID := currentUser(c)

	var req FinalizeRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, ledger.ErrNoCandidates.Error())
	}

	period := &models.StatementPeriod{StartDate: req.StatementStartDate, EndDate: req.StatementEndDate}
	if !period.Complete() {
		period = nil
		if draft, ok := h.Drafts.Get(userID, req.DraftID); ok && draft.Result.Period.Complete() {
			period = draft.Result.Period
		}
	}

	inserted, err := h.Finalizer.Finalize(c.UserContext(), userID, req.Transactions, period)
	if err != nil {
		var verr *ledger.ValidationError
		switch {
		case errors.Is(err, ledger.ErrMissingUser):
			return writeError(c, fiber.StatusUnauthorized, err.Error())
		case errors.Is(err, ledger.ErrNoCandidates):
			return writeError(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrUnknownPeriod):
			return writeError(c, fiber.StatusBadRequest, "statement period unknown; supply statementStartDate and statementEndDate")
		case errors.As(err, &verr):
			return writeError(c, fiber.StatusBadRequest, verr.Error())
		default:
			log.Error().Err(err).Msg("finalize failed")
			return writeError(c, fiber.StatusInternalServerError, "could not finalize transactions")
		}
	}

	if _, ok := h.Drafts.Get(userID, req.DraftID); ok {
		h.Drafts.Delete(req.DraftID)
	}
	return c.JSON(fiber.Map{"success": true, "insertedCount": inserted})
}

func (h *Handler) HandleListTransactions(c *fiber.Ctx) error {
	txns, err := h.Store.ListTransactions(c.UserContext(), currentUser(c))
	if err != nil {
		return h.internalError(c, err, "could not load transactions")
	}
	if txns == nil {
		txns = []*models.Transaction{}
	}
	return c.JSON(txns)
}

// HandleExportTransactions streams the caller's transactions as CSV.
func (h *Handler) HandleExportTransactions(c *fiber.Ctx) error {
	txns, err := h.Store.ListTransactions(c.UserContext(), currentUser(c))
	if err != nil {
		return h.internalError(c, err, "could not load transactions")
	}

	var buf bytes.Buffer
	if err := (&writer.CSVWriter{}).WriteTransactions(&buf, txns); err != nil {
		return h.internalError(c, err, "CSV generation failed")
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="transactions.csv"`)
	return c.Send(buf.Bytes())
}

// HandleCreateTransaction records a single manual transaction.
func (h *Handler) HandleCreateTransaction(c *fiber.Ctx) error {
	userID := currentUser(c)

	var req TransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid transaction body")
	}
	if req.Date == nil || strings.TrimSpace(*req.Date) == "" || req.Amount == nil {
		return writeError(c, fiber.StatusBadRequest, "date and amount are required")
	}

	txn := &models.Transaction{
		UserID:   userID,
		Category: models.Uncategorized,
		Status:   models.StatusPending,
	}
	if err := req.apply(txn); err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}
	if err := h.Store.InsertTransactions(c.UserContext(), []*models.Transaction{txn}); err != nil {
		return h.internalError(c, err, "could not create transaction")
	}

	h.reevaluateAlerts(c, userID)
	return c.Status(fiber.StatusCreated).JSON(txn)
}

// HandleUpdateTransaction edits one of the caller's transactions.
func (h *Handler) HandleUpdateTransaction(c *fiber.Ctx) error {
	userID := currentUser(c)

	var req TransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid transaction body")
	}

	txn, err := h.Store.GetTransaction(c.UserContext(), userID, c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return writeError(c, fiber.StatusNotFound, "transaction not found")
	}
	if err != nil {
		return h.internalError(c, err, "could not load transaction")
	}

	if err := req.apply(txn); err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}
	err = h.Store.UpdateTransaction(c.UserContext(), txn)
	if errors.Is(err, store.ErrNotFound) {
		return writeError(c, fiber.StatusNotFound, "transaction not found")
	}
	if err != nil {
		return h.internalError(c, err, "could not update transaction")
	}

	h.reevaluateAlerts(c, userID)
	return c.JSON(txn)
}

func (h *Handler) HandleDeleteTransaction(c *fiber.Ctx) error {
	userID := currentUser(c)

	err := h.Store.DeleteTransaction(c.UserContext(), userID, c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return writeError(c, fiber.StatusNotFound, "transaction not found")
	}
	if err != nil {
		return h.internalError(c, err, "could not delete transaction")
	}

	h.reevaluateAlerts(c, userID)
	return c.JSON(fiber.Map{"success": true})
}

// reevaluateAlerts runs the alert engine after a transaction change. The
// change is already stored, so a failure is only logged.
func (h *Handler) reevaluateAlerts(c *fiber.Ctx, userID string) {
	if err := h.Engine.Evaluate(c.UserContext(), userID); err != nil {
		log := requestLogger(c)
		log.Error().Err(err).Str("user_id", userID).Msg("budget alert evaluation failed")
	}
}

func (h *Handler) HandleCreateBudget(c *fiber.Ctx) error {
	var req BudgetRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid budget body")
	}

	budget, err := req.toBudget(currentUser(c))
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}
	if err := h.Store.CreateBudget(c.UserContext(), budget); err != nil {
		return h.internalError(c, err, "could not create budget")
	}
	return c.Status(fiber.StatusCreated).JSON(budget)
}

func (h *Handler) HandleListBudgets(c *fiber.Ctx) error {
	budgets, err := h.Store.ListBudgets(c.UserContext(), currentUser(c))
	if err != nil {
		return h.internalError(c, err, "could not load budgets")
	}
	if budgets == nil {
		budgets = []*models.Budget{}
	}
	return c.JSON(budgets)
}

// HandleUpdateBudget replaces a budget's definition. Its spent total is kept.
func (h *Handler) HandleUpdateBudget(c *fiber.Ctx) error {
	var req BudgetRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid budget body")
	}

	budget, err := req.toBudget(currentUser(c))
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}
	budget.ID = c.Params("id")

	err = h.Store.UpdateBudget(c.UserContext(), budget)
	if errors.Is(err, store.ErrNotFound) {
		return writeError(c, fiber.StatusNotFound, "budget not found")
	}
	if err != nil {
		return h.internalError(c, err, "could not update budget")
	}
	return c.JSON(budget)
}

func (h *Handler) HandleDeleteBudget(c *fiber.Ctx) error {
	err := h.Store.DeleteBudget(c.UserContext(), currentUser(c), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return writeError(c, fiber.StatusNotFound, "budget not found")
	}
	if err != nil {
		return h.internalError(c, err, "could not delete budget")
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *Handler) HandleBudgetUsage(c *fiber.Ctx) error {
	usage, err := h.Engine.Usage(c.UserContext(), currentUser(c))
	if err != nil {
		return h.internalError(c, err, "could not compute budget usage")
	}
	return c.JSON(usage)
}

func (h *Handler) HandleRecalculateSpent(c *fiber.Ctx) error {
	usage, err := h.Engine.RecalculateSpent(c.UserContext(), currentUser(c))
	if err != nil {
		return h.internalError(c, err, "could not recalculate budgets")
	}
	return c.JSON(usage)
}

func (h *Handler) HandleEvaluateAlerts(c *fiber.Ctx) error {
	userID := currentUser(c)
	if err := h.Engine.Evaluate(c.UserContext(), userID); err != nil {
		return h.internalError(c, err, "could not evaluate budget alerts")
	}
	list, err := h.Engine.ListAlerts(c.UserContext(), userID)
	if err != nil {
		return h.internalError(c, err, "could not load alerts")
	}
	return c.JSON(list)
}

func (h *Handler) HandleListAlerts(c *fiber.Ctx) error {
	list, err := h.Engine.ListAlerts(c.UserContext(), currentUser(c))
	if err != nil {
		return h.internalError(c, err, "could not load alerts")
	}
	return c.JSON(list)
}

func (h *Handler) HandleDismissAlert(c *fiber.Ctx) error {
	err := h.Engine.DismissAlert(c.UserContext(), currentUser(c), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return writeError(c, fiber.StatusNotFound, "alert not found")
	}
	if err != nil {
		return h.internalError(c, err, "could not dismiss alert")
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *Handler) resolveTemplate(requested, text string) (models.Template, error) {
	if requested != "" {
		return models.Template(strings.ToLower(requested)), nil
	}
	if h.Template != "" {
		return h.Template, nil
	}
	return parser.AutoDetect(text)
}

func (h *Handler) internalError(c *fiber.Ctx, err error, msg string) error {
	requestLogger(c).Error().Err(err).Str("path", c.Path()).Msg(msg)
	return writeError(c, fiber.StatusInternalServerError, msg)
}

// apply copies the supplied fields onto txn.
func (r TransactionRequest) apply(txn *models.Transaction) error {
	if r.Date != nil {
		date, err := time.Parse("2006-01-02", strings.TrimSpace(*r.Date))
		if err != nil {
			return errors.New("date must be YYYY-MM-DD")
		}
		txn.Date = date
	}
	if r.Description != nil {
		txn.Description = strings.TrimSpace(*r.Description)
	}
	if r.Amount != nil {
		txn.Amount = *r.Amount
	}
	if r.Category != nil {
		txn.Category = strings.TrimSpace(*r.Category)
		if txn.Category == "" {
			txn.Category = models.Uncategorized
		}
	}
	if r.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*r.Status))
		switch status {
		case models.StatusPending, models.StatusApproved, models.StatusDeleted:
			txn.Status = status
		default:
			return errors.New("status must be pending, approved or deleted")
		}
	}
	return nil
}

func (r BudgetRequest) toBudget(userID string) (*models.Budget, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, errors.New("budget name is required")
	}
	if r.Amount.IsNegative() {
		return nil, errors.New("budget amount must not be negative")
	}

	frequency := strings.ToLower(strings.TrimSpace(r.Frequency))
	switch frequency {
	case "":
		frequency = models.FrequencyMonthly
	case models.FrequencyWeekly, models.FrequencyMonthly, models.FrequencyYearly, models.FrequencyCustom:
	default:
		return nil, errors.New("frequency must be weekly, monthly, yearly or custom")
	}

	start, err := parseOptionalDate(r.StartDate)
	if err != nil {
		return nil, errors.New("startDate must be YYYY-MM-DD")
	}
	end, err := parseOptionalDate(r.EndDate)
	if err != nil {
		return nil, errors.New("endDate must be YYYY-MM-DD")
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, errors.New("endDate is before startDate")
	}

	categories := make([]string, 0, len(r.Categories))
	for _, cat := range r.Categories {
		if cat = strings.TrimSpace(cat); cat != "" {
			categories = append(categories, cat)
		}
	}

	return &models.Budget{
		UserID:     userID,
		Name:       name,
		Frequency:  frequency,
		Amount:     r.Amount,
		Categories: categories,
		StartDate:  start,
		EndDate:    end,
	}, nil
}

func parseOptionalDate(s string) (*time.Time, error) {
	if s = strings.TrimSpace(s); s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func statementResponse(draft *Draft, debug bool) StatementResponse {
	resp := StatementResponse{
		Success:      true,
		DraftID:      draft.ID,
		Template:     string(draft.Result.Template),
		Transactions: draft.Result.Transactions,
		Count:        len(draft.Result.Transactions),
	}
	if p := draft.Result.Period; p != nil {
		resp.StatementStartDate = p.StartDate
		resp.StatementEndDate = p.EndDate
	}
	if debug {
		resp.DebugLines = draft.Result.DebugLines
	}
	return resp
}

func isPDF(fh *multipart.FileHeader) bool {
	mediaType, _, err := mime.ParseMediaType(fh.Header.Get(fiber.HeaderContentType))
	return err == nil && mediaType == "application/pdf"
}

func extractFormFile(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return extractor.Extract(f, fh.Size)
}

func writeError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ErrorResponse{Success: false, Error: msg})
}
