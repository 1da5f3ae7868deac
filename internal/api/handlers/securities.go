package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Jeongbyungkyu/korea-investment/internal/api/response"
	"github.com/Jeongbyungkyu/korea-investment/internal/domain/history"
	"github.com/Jeongbyungkyu/korea-investment/internal/domain/ranking"
	"github.com/Jeongbyungkyu/korea-investment/internal/strategy/indicator"
)

// HistorySource returns the current history of a security.
// *market.Book satisfies it.
type HistorySource interface {
	Snapshot(symbol string) (*history.History, bool)
}

// Scorer scores one history.
type Scorer interface {
	Score(h *history.History) (ranking.ScoreEntry, error)
}

// SecuritiesHandler serves live indicators and scores of tracked securities
type SecuritiesHandler struct {
	histories HistorySource
	scorer    Scorer
	benchmark string
	sentinel  float64
}

// NewSecuritiesHandler creates a new securities handler. benchmark may be
// empty, in which case beta is reported as null.
func NewSecuritiesHandler(histories HistorySource, scorer Scorer, benchmark string, sentinel float64) *SecuritiesHandler {
	return &SecuritiesHandler{
		histories: histories,
		scorer:    scorer,
		benchmark: benchmark,
		sentinel:  sentinel,
	}
}

// GetIndicators returns every indicator of the latest bar
// GET /api/securities/{symbol}/indicators
func (h *SecuritiesHandler) GetIndicators(w http.ResponseWriter, r *http.Request) {
	hist, ok := h.lookup(w, r)
	if !ok {
		return
	}

	opts := indicator.Options{VolumeRatioSentinel: h.sentinel}
	if h.benchmark != "" && h.benchmark != hist.Symbol {
		if bench, found := h.histories.Snapshot(h.benchmark); found {
			opts.Benchmark = bench
		}
	}

	res, err := indicator.Evaluate(hist, opts)
	if err != nil {
		writeHistoryError(w, r, err)
		return
	}
	response.Success(w, r, res)
}

// GetScore returns the live score of a security
// GET /api/securities/{symbol}/score
func (h *SecuritiesHandler) GetScore(w http.ResponseWriter, r *http.Request) {
	hist, ok := h.lookup(w, r)
	if !ok {
		return
	}

	entry, err := h.scorer.Score(hist)
	if err != nil {
		writeHistoryError(w, r, err)
		return
	}
	response.Success(w, r, entry)
}

func (h *SecuritiesHandler) lookup(w http.ResponseWriter, r *http.Request) (*history.History, bool) {
	symbol := chi.URLParam(r, "symbol")
	if symbol == "" {
		response.BadRequest(w, r, "symbol is required")
		return nil, false
	}
	hist, ok := h.histories.Snapshot(symbol)
	if !ok {
		response.NotFound(w, r, "security not tracked: "+symbol)
		return nil, false
	}
	return hist, true
}

// 데이터 부족/불일치는 422
func writeHistoryError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, history.ErrInsufficientHistory) || errors.Is(err, history.ErrOutOfOrder) {
		response.Error(w, r, http.StatusUnprocessableEntity, response.ErrCodeInvalidParameter, err.Error())
		return
	}
	response.InternalError(w, r, err.Error())
}
