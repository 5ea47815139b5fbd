package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/insightdelivered/statement-ledger/internal/alerts"
	"github.com/insightdelivered/statement-ledger/internal/ledger"
	"github.com/insightdelivered/statement-ledger/internal/logger"
	"github.com/insightdelivered/statement-ledger/internal/models"
	"github.com/insightdelivered/statement-ledger/internal/parser"
	"github.com/insightdelivered/statement-ledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-for-handler-tests-0123456789"

const statementText = `Simplii Financial Cash Back Visa
Statement period: December 4, 2024 to January 3, 2025
Trans date Post date Description Spend Categories Amount($)
Dec 05Dec 06TIM HORTONS #1234 TORONTOONRestaurants4.25
Dec 31Jan 03UBER CANADA/UBERTRIPONTransportation-25.00
Jan 02 Jan 03 LOBLAWS #88 VERY LONG MERCHANT
NAME TORONTO ON Retail and Grocery 132.10
Jan 02 Jan 03 PAYMENT - THANK YOU -500.00
Page 1 of 2
`

type testEnv struct {
	app   *fiber.App
	auth  *AuthService
	store *store.MemoryStore
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()
	s := store.NewMemoryStore()
	engine := alerts.NewEngine(s, 80)
	h := NewHandler(Deps{
		Store:         s,
		Finalizer:     ledger.NewFinalizer(s, engine, ledger.Options{}),
		Engine:        engine,
		Drafts:        NewDraftCache(time.Minute),
		Parser:        parser.DefaultConfig(),
		MaxUploadSize: 1024 * 1024,
	})
	auth := NewAuthService(testSecret)
	return &testEnv{
		app:   NewApp(h, auth, logger.NewWithWriter(io.Discard)),
		auth:  auth,
		store: s,
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request, userID string) (*http.Response, []byte) {
	t.Helper()
	if userID != "" {
		token, err := e.auth.GenerateToken(userID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func jsonRequest(method, path string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, fields map[string]string, fileContentType string, fileData []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileContentType != "" {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="file"; filename="statement.pdf"`)
		header.Set("Content-Type", fileContentType)
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(fileData)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/statements/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e), "body: %s", body)
	assert.False(t, e.Success)
	return e.Error
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestApp(t)

	resp, body := env.do(t, httptest.NewRequest("GET", "/api/health", nil), "")

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	var result map[string]string
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if result["status"] != "ok" {
		t.Errorf("expected status=ok, got %q", result["status"])
	}

	if result["engine"] != "fiber" {
		t.Errorf("expected engine=fiber, got %q", result["engine"])
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := setupTestApp(t)

	resp, _ := env.do(t, httptest.NewRequest("GET", "/api/transactions", nil), "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest("GET", "/api/transactions", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, _ = env.do(t, req, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	forged, err := NewAuthService("some-other-secret-value-0123456789").GenerateToken("u1", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/api/transactions", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	resp, _ = env.do(t, req, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestUploadEndpointRequiresFile(t *testing.T) {
	env := setupTestApp(t)

	req := httptest.NewRequest("POST", "/api/statements/upload", nil)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=----test")
	resp, _ := env.do(t, req, "u1")

	// Should fail because no file in the body
	if resp.StatusCode == fiber.StatusOK {
		t.Error("expected non-200 for missing file")
	}
}

func TestUploadRejectsWrongMIME(t *testing.T) {
	env := setupTestApp(t)

	resp, body := env.do(t, uploadRequest(t, nil, "text/plain", []byte("hello")), "u1")

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid file type", errorMessage(t, body))
}

func TestUploadUnreadablePDF(t *testing.T) {
	env := setupTestApp(t)

	resp, body := env.do(t, uploadRequest(t, nil, "application/pdf", []byte("%PDF-1.4 truncated")), "u1")

	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "failed to parse PDF statement", errorMessage(t, body))
}

func TestUploadExtractedText(t *testing.T) {
	env := setupTestApp(t)

	resp, body := env.do(t, uploadRequest(t, map[string]string{"extractedText": statementText}, "", nil), "u1")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, "body: %s", body)

	var result StatementResponse
	require.NoError(t, json.Unmarshal(body, &result))

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.DraftID)
	assert.Equal(t, "simplii", result.Template)
	assert.Equal(t, 4, result.Count)
	assert.Equal(t, "December 4, 2024", result.StatementStartDate)
	assert.Equal(t, "January 3, 2025", result.StatementEndDate)
	assert.Empty(t, result.DebugLines)

	uber := result.Transactions[1]
	assert.Equal(t, "Dec 31", uber.TransDate)
	assert.Equal(t, "UBER CANADA/UBERTRIP", uber.Description)
	assert.Equal(t, "Transportation", uber.Category)
	assert.Equal(t, "-25", uber.Amount.String())
	assert.Contains(t, string(body), `"amount":-25,`, "amounts are JSON numbers")

	// drafts are private to their owner
	resp, _ = env.do(t, httptest.NewRequest("GET", "/api/statements/drafts/"+result.DraftID, nil), "u2")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, httptest.NewRequest("GET", "/api/statements/drafts/"+result.DraftID+"?debug=true", nil), "u1")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var draft StatementResponse
	require.NoError(t, json.Unmarshal(body, &draft))
	assert.Equal(t, result.DraftID, draft.DraftID)
	assert.NotEmpty(t, draft.DebugLines)
}

func formRequest(path string, fields url.Values) *http.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(fields.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestDraftSurvivesLaterRequests(t *testing.T) {
	env := setupTestApp(t)

	resp, body := env.do(t, formRequest("/api/statements/upload", url.Values{"extractedText": {statementText}}), "u1")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, "body: %s", body)
	var uploaded StatementResponse
	require.NoError(t, json.Unmarshal(body, &uploaded))

	filler := strings.Repeat("Z", len(statementText))
	for i := 0; i < 50; i++ {
		env.do(t, formRequest("/api/statements/upload", url.Values{"extractedText": {filler}, "template": {"zzzzzzz"}}), "u1")
	}

	resp, body = env.do(t, httptest.NewRequest("GET", "/api/statements/drafts/"+uploaded.DraftID, nil), "u1")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var draft StatementResponse
	require.NoError(t, json.Unmarshal(body, &draft))

	assert.Equal(t, "December 4, 2024", draft.StatementStartDate)
	assert.Equal(t, "January 3, 2025", draft.StatementEndDate)
	assert.Equal(t, "simplii", draft.Template)
	require.Len(t, draft.Transactions, 4)
	assert.Equal(t, "UBER CANADA/UBERTRIP", draft.Transactions[1].Description)

	resp, body = env.do(t, jsonRequest("POST", "/api/transactions/finalize", FinalizeRequest{
		DraftID:      draft.DraftID,
		Transactions: draft.Transactions,
	}), "u1")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "body: %s", body)
}

func TestFinalizeFlow(t *testing.T) {
	env := setupTestApp(t)

	resp, body := env.do(t, jsonRequest("POST", "/api/budgets", map[string]any{
		"name":       "Coffee",
		"amount":     "5.00",
		"categories": []string{"Restaurants"},
	}), "u1")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, "body: %s", body)
	var budget models.Budget
	require.NoError(t, json.Unmarshal(body, &budget))
	assert.Equal(t, models.FrequencyMonthly, budget.Frequency)

	_, body = env.do(t, uploadRequest(t, map[string]string{"extractedText": statementText}, "", nil), "u1")
	var draft StatementResponse
	require.NoError(t, json.Unmarshal(body, &draft))

	resp, body = env.do(t, jsonRequest("POST", "/api/transactions/finalize", FinalizeRequest{
		DraftID:      draft.DraftID,
		Transactions: draft.Transactions,
	}), "u1")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, "body: %s", body)

	var finalized struct {
		Success       bool `json:"success"`
		InsertedCount int  `json:"insertedCount"`
	}
	require.NoError(t, json.Unmarshal(body, &finalized))
	assert.True(t, finalized.Success)
	assert.Equal(t, 4, finalized.InsertedCount)

	// the draft is consumed
	resp, _ = env.do(t, httptest.NewRequest("GET", "/api/statements/drafts/"+draft.DraftID, nil), "u1")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	_, body = env.do(t, httptest.NewRequest("GET", "/api/alerts", nil), "u1")
	var open []models.Alert
	require.NoError(t, json.Unmarshal(body, &open))
	require.Len(t, open, 1)
	assert.Equal(t, budget.ID, open[0].BudgetID)
	assert.Contains(t, open[0].Message, "Coffee")

	_, body = env.do(t, httptest.NewRequest("GET", "/api/budgets", nil), "u1")
	var budgets []models.Budget
	require.NoError(t, json.Unmarshal(body, &budgets))
	require.Len(t, budgets, 1)
	assert.Equal(t, "4.25", budgets[0].Spent.String())

	resp, body = env.do(t, httptest.NewRequest("GET", "/api/transactions/export", nil), "u1")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv"))
	assert.Contains(t, string(body), "2024-12-05,TIM HORTONS #1234 TORONTO,Restaurants,4.25,approved")
	assert.Contains(t, string(body), "2025-01-02,PAYMENT - THANK YOU,Uncategorized,-500.00,approved")

	// other users see nothing
	_, body = env.do(t, httptest.NewRequest("GET", "/api/transactions", nil), "u2")
	assert.JSONEq(t, "[]", string(body))

	resp, _ = env.do(t, httptest.NewRequest("PATCH", "/api/alerts/"+open[0].ID+"/dismiss", nil), "u2")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, httptest.NewRequest("PATCH", "/api/alerts/"+open[0].ID+"/dismiss", nil), "u1")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	_, body = env.do(t, httptest.NewRequest("GET", "/api/alerts", nil), "u1")
	assert.JSONEq(t, "[]", string(body))
}

func TestFinalizeErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing transactions",
			body:       `{"statementStartDate":"December 4, 2024","statementEndDate":"January 3, 2025"}`,
			wantStatus: fiber.StatusBadRequest,
			wantError:  "no transactions provided or invalid format",
		},
		{
			name:       "transactions not a list",
			body:       `{"transactions":"nope"}`,
			wantStatus: fiber.StatusBadRequest,
			wantError:  "no transactions provided or invalid format",
		},
		{
			name:       "no period",
			body:       `{"transactions":[{"transDate":"Dec 05","amount":"4.25"}]}`,
			wantStatus: fiber.StatusBadRequest,
			wantError:  "statement period unknown; supply statementStartDate and statementEndDate",
		},
		{
			name:       "half period",
			body:       `{"transactions":[{"transDate":"Dec 05","amount":"4.25"}],"statementStartDate":"December 4, 2024"}`,
			wantStatus: fiber.StatusBadRequest,
			wantError:  "statement period unknown; supply statementStartDate and statementEndDate",
		},
		{
			name:       "bad date rejects batch",
			body:       `{"transactions":[{"transDate":"Dec 05","amount":"4.25"},{"transDate":"Feb 30","amount":"1"}],"statementStartDate":"December 4, 2024","statementEndDate":"January 3, 2025"}`,
			wantStatus: fiber.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestApp(t)

			req := httptest.NewRequest("POST", "/api/transactions/finalize", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp, body := env.do(t, req, "u1")

			assert.Equal(t, tt.wantStatus, resp.StatusCode, "body: %s", body)
			msg := errorMessage(t, body)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, msg)
			}

			_, body = env.do(t, httptest.NewRequest("GET", "/api/transactions", nil), "u1")
			assert.JSONEq(t, "[]", string(body), "nothing may be committed")
		})
	}
}

func TestCreateBudgetValidation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"amount": "10"}},
		{"negative amount", map[string]any{"name": "X", "amount": "-1"}},
		{"bad frequency", map[string]any{"name": "X", "amount": "1", "frequency": "hourly"}},
		{"bad date", map[string]any{"name": "X", "amount": "1", "startDate": "01/02/2025"}},
		{"inverted range", map[string]any{"name": "X", "amount": "1", "startDate": "2025-02-01", "endDate": "2025-01-01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestApp(t)
			resp, body := env.do(t, jsonRequest("POST", "/api/budgets", tt.body), "u1")
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "body: %s", body)
		})
	}
}

func TestBudgetUsageAndRecalculate(t *testing.T) {
	env := setupTestApp(t)

	_, body := env.do(t, jsonRequest("POST", "/api/budgets", map[string]any{
		"name": "Everything", "amount": "1000", "frequency": "yearly",
	}), "u1")
	var budget models.Budget
	require.NoError(t, json.Unmarshal(body, &budget))

	_, _ = env.do(t, jsonRequest("POST", "/api/transactions/finalize", map[string]any{
		"transactions":       []map[string]string{{"transDate": "Jan 02", "amount": "100", "category": "Retail and Grocery"}},
		"statementStartDate": "December 4, 2024",
		"statementEndDate":   "January 3, 2025",
	}), "u1")

	resp, body := env.do(t, httptest.NewRequest("GET", "/api/budgets/usage", nil), "u1")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var usage []models.BudgetUsage
	require.NoError(t, json.Unmarshal(body, &usage))
	require.Len(t, usage, 1)
	assert.Equal(t, "10", usage[0].UsedPercent.String())

	resp, _ = env.do(t, httptest.NewRequest("POST", "/api/budgets/recalculate", nil), "u1")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body = env.do(t, httptest.NewRequest("POST", "/api/alerts/evaluate", nil), "u1")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(body))
}

func TestTransactionMutationsReevaluateAlerts(t *testing.T) {
	env := setupTestApp(t)

	_, body := env.do(t, jsonRequest("POST", "/api/budgets", map[string]any{
		"name": "Coffee", "amount": "10", "categories": []string{"Restaurants"},
	}), "u1")
	var budget models.Budget
	require.NoError(t, json.Unmarshal(body, &budget))

	resp, body := env.do(t, jsonRequest("POST", "/api/transactions", map[string]any{
		"date": "2025-01-05", "amount": "4.00", "description": " TIM HORTONS ", "category": "Restaurants",
	}), "u1")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, "body: %s", body)
	var txn models.Transaction
	require.NoError(t, json.Unmarshal(body, &txn))
	assert.Equal(t, "TIM HORTONS", txn.Description)
	assert.Equal(t, models.StatusPending, txn.Status)
	assert.Equal(t, "2025-01-05", txn.Date.Format("2006-01-02"))

	_, body = env.do(t, httptest.NewRequest("GET", "/api/alerts", nil), "u1")
	assert.JSONEq(t, "[]", string(body), "4.00 of 10 is below the threshold")

	resp, _ = env.do(t, jsonRequest("PUT", "/api/transactions/"+txn.ID, map[string]any{"amount": "9.00"}), "u2")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, jsonRequest("PUT", "/api/transactions/"+txn.ID, map[string]any{"amount": "9.00", "status": "approved"}), "u1")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, "body: %s", body)
	var updated models.Transaction
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "TIM HORTONS", updated.Description)
	assert.Equal(t, models.StatusApproved, updated.Status)

	_, body = env.do(t, httptest.NewRequest("GET", "/api/alerts", nil), "u1")
	var open []models.Alert
	require.NoError(t, json.Unmarshal(body, &open))
	require.Len(t, open, 1, "update must re-run alert evaluation")
	assert.Equal(t, budget.ID, open[0].BudgetID)

	resp, _ = env.do(t, httptest.NewRequest("DELETE", "/api/transactions/"+txn.ID, nil), "u2")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp, _ = env.do(t, httptest.NewRequest("DELETE", "/api/transactions/"+txn.ID, nil), "u1")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	_, body = env.do(t, httptest.NewRequest("GET", "/api/transactions", nil), "u1")
	assert.JSONEq(t, "[]", string(body))
}

func TestTransactionValidation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing amount", map[string]any{"date": "2025-01-05"}},
		{"missing date", map[string]any{"amount": "1"}},
		{"bad date", map[string]any{"date": "Jan 5", "amount": "1"}},
		{"bad status", map[string]any{"date": "2025-01-05", "amount": "1", "status": "archived"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestApp(t)
			resp, body := env.do(t, jsonRequest("POST", "/api/transactions", tt.body), "u1")
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "body: %s", body)
		})
	}
}

func TestBudgetUpdateAndDelete(t *testing.T) {
	env := setupTestApp(t)

	_, body := env.do(t, jsonRequest("POST", "/api/budgets", map[string]any{
		"name": "Food", "amount": "100", "categories": []string{"Restaurants"},
	}), "u1")
	var budget models.Budget
	require.NoError(t, json.Unmarshal(body, &budget))

	resp, _ := env.do(t, jsonRequest("PUT", "/api/budgets/"+budget.ID, map[string]any{"name": "Mine", "amount": "1"}), "u2")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, jsonRequest("PUT", "/api/budgets/"+budget.ID, map[string]any{"amount": "1"}), "u1")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, jsonRequest("PUT", "/api/budgets/"+budget.ID, map[string]any{
		"name": "Dining", "amount": "250", "frequency": "weekly",
	}), "u1")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, "body: %s", body)
	var updated models.Budget
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, budget.ID, updated.ID)
	assert.Equal(t, "Dining", updated.Name)
	assert.Equal(t, models.FrequencyWeekly, updated.Frequency)
	assert.Equal(t, "250", updated.Amount.String())

	resp, _ = env.do(t, httptest.NewRequest("DELETE", "/api/budgets/"+budget.ID, nil), "u2")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp, _ = env.do(t, httptest.NewRequest("DELETE", "/api/budgets/"+budget.ID, nil), "u1")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	_, body = env.do(t, httptest.NewRequest("GET", "/api/budgets", nil), "u1")
	assert.JSONEq(t, "[]", string(body))
}
