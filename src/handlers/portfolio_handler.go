package handlers

import (
	"net/http"

	"github.com/username/divtracker/src/logger"
	"github.com/username/divtracker/src/models"
	"github.com/username/divtracker/src/services"
	"github.com/username/divtracker/src/utils"
)

type PortfolioHandler struct {
	dividendService services.DividendService
}

func NewPortfolioHandler(service services.DividendService) *PortfolioHandler {
	return &PortfolioHandler{dividendService: service}
}

func (h *PortfolioHandler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Info().Msg("Handling GetPortfolio")

	holdings, err := h.dividendService.Portfolio(r.Context())
	if err != nil {
		sendServiceError(w, r, "Portfolio", err)
		return
	}
	if holdings == nil {
		holdings = []models.Holding{}
	}
	utils.SendJSON(w, http.StatusOK, holdings)
}
