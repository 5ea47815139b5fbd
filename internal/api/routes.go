package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// NewApp builds the fiber application with every route registered.
// Everything except the health check requires a bearer token.
func NewApp(h *Handler, auth *AuthService, log zerolog.Logger) *fiber.App {
	bodyLimit := 4 * 1024 * 1024
	if h.MaxUploadSize > 0 {
		// room for multipart framing around the file
		bodyLimit = int(h.MaxUploadSize) + 1024*1024
	}

	app := fiber.New(fiber.Config{
		AppName:      "statement-ledger",
		BodyLimit:    bodyLimit,
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(RequestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	app.Get("/api/health", HandleHealth)

	api := app.Group("/api", auth.RequireAuth())

	api.Post("/statements/upload", h.HandleUpload)
	api.Get("/statements/drafts/:id", h.HandleGetDraft)

	api.Post("/transactions/finalize", h.HandleFinalize)
	api.Get("/transactions", h.HandleListTransactions)
	api.Get("/transactions/export", h.HandleExportTransactions)
	api.Post("/transactions", h.HandleCreateTransaction)
	api.Put("/transactions/:id", h.HandleUpdateTransaction)
	api.Delete("/transactions/:id", h.HandleDeleteTransaction)

	api.Post("/budgets", h.HandleCreateBudget)
	api.Get("/budgets", h.HandleListBudgets)
	api.Put("/budgets/:id", h.HandleUpdateBudget)
	api.Delete("/budgets/:id", h.HandleDeleteBudget)
	api.Get("/budgets/usage", h.HandleBudgetUsage)
	api.Post("/budgets/recalculate", h.HandleRecalculateSpent)

	api.Get("/alerts", h.HandleListAlerts)
	api.Post("/alerts/evaluate", h.HandleEvaluateAlerts)
	api.Patch("/alerts/:id/dismiss", h.HandleDismissAlert)

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	} else {
		requestLogger(c).Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	}
	return writeError(c, code, msg)
}
