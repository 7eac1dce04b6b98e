package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/username/divtracker/src/logger"
	"github.com/username/divtracker/src/processors"
	"github.com/username/divtracker/src/security/validation"
	"github.com/username/divtracker/src/services"
	"github.com/username/divtracker/src/utils"
)

const (
	defaultUpcomingDays = 30
	defaultSymbolYears  = 5
)

type DividendHandler struct {
	dividendService services.DividendService
	now             func() time.Time
}

func NewDividendHandler(service services.DividendService) *DividendHandler {
	return &DividendHandler{dividendService: service, now: time.Now}
}

func (h *DividendHandler) HandleGetDividends(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Info().Msg("Handling GetDividends")

	report, err := h.dividendService.Forecast(r.Context())
	if err != nil {
		sendServiceError(w, r, "Dividend forecast", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, report)
}

func (h *DividendHandler) HandleGetDividendSummary(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Info().Msg("Handling GetDividendSummary")

	summary, err := h.dividendService.Summary(r.Context())
	if err != nil {
		sendServiceError(w, r, "Dividend summary", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, summary)
}

func (h *DividendHandler) HandleGetUpcomingDividends(w http.ResponseWriter, r *http.Request) {
	days, err := validation.ValidateIntString(r.URL.Query().Get("days"), "days", defaultUpcomingDays, 1, services.MaxUpcomingDays)
	if err != nil {
		sendServiceError(w, r, "Upcoming dividends", err)
		return
	}
	logger.FromContext(r.Context()).Info().Int("days", days).Msg("Handling GetUpcomingDividends")

	report, err := h.dividendService.Upcoming(r.Context(), days)
	if err != nil {
		sendServiceError(w, r, "Upcoming dividends", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, report)
}

// HandleGetDividendHistory defaults to the trailing twelve months.
func (h *DividendHandler) HandleGetDividendHistory(w http.ResponseWriter, r *http.Request) {
	today := processors.DateOf(h.now())
	q := r.URL.Query()
	from, to, err := validation.ValidateDateRange(q.Get("from"), q.Get("to"), today.AddDate(-1, 0, 0), today)
	if err != nil {
		sendServiceError(w, r, "Dividend history", err)
		return
	}
	logger.FromContext(r.Context()).Info().
		Str("from", from.Format(validation.DateLayout)).
		Str("to", to.Format(validation.DateLayout)).
		Msg("Handling GetDividendHistory")

	report, err := h.dividendService.History(r.Context(), from, to)
	if err != nil {
		sendServiceError(w, r, "Dividend history", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, report)
}

func (h *DividendHandler) HandleGetSymbolDividends(w http.ResponseWriter, r *http.Request) {
	symbol, err := validation.ValidateSymbol(chi.URLParam(r, "symbol"))
	if err != nil {
		sendServiceError(w, r, "Symbol dividends", err)
		return
	}
	today := processors.DateOf(h.now())
	q := r.URL.Query()
	from, to, err := validation.ValidateDateRange(q.Get("from"), q.Get("to"), today.AddDate(-defaultSymbolYears, 0, 0), today)
	if err != nil {
		sendServiceError(w, r, "Symbol dividends", err)
		return
	}
	logger.FromContext(r.Context()).Info().Str("symbol", symbol).Msg("Handling GetSymbolDividends")

	data, err := h.dividendService.SymbolDividends(r.Context(), symbol, from, to)
	if err != nil {
		sendServiceError(w, r, "Symbol dividends", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, data)
}
