package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/Jeongbyungkyu/korea-investment/internal/api/response"
	"github.com/Jeongbyungkyu/korea-investment/internal/domain/ranking"
	rankingsvc "github.com/Jeongbyungkyu/korea-investment/internal/strategy/ranking"
)

// RankingReader reads ranking snapshots. *ranking.Service satisfies it.
type RankingReader interface {
	GetLatestSnapshot(ctx context.Context) (*ranking.RankingSnapshot, error)
	GetSnapshotByID(ctx context.Context, snapshotID string) (*ranking.RankingSnapshot, error)
	GetRankBySymbol(ctx context.Context, symbol string) (*ranking.RankedStock, error)
}

// RankingsHandler serves ranking snapshots
type RankingsHandler struct {
	svc RankingReader
}

// NewRankingsHandler creates a new rankings handler
func NewRankingsHandler(svc RankingReader) *RankingsHandler {
	return &RankingsHandler{svc: svc}
}

// GetLatest returns the most recent snapshot
// GET /api/rankings/latest
func (h *RankingsHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.svc.GetLatestSnapshot(r.Context())
	h.write(w, r, snapshot, err, "no ranking snapshot yet")
}

// GetSnapshot returns one snapshot by ID
// GET /api/rankings/snapshots/{snapshot_id}
func (h *RankingsHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "snapshot_id")
	snapshot, err := h.svc.GetSnapshotByID(r.Context(), id)
	h.write(w, r, snapshot, err, "snapshot not found: "+id)
}

// GetRank returns the rank of one security in the latest snapshot
// GET /api/rankings/symbols/{symbol}
func (h *RankingsHandler) GetRank(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	stock, err := h.svc.GetRankBySymbol(r.Context(), symbol)
	h.write(w, r, stock, err, "symbol not ranked: "+symbol)
}

func (h *RankingsHandler) write(w http.ResponseWriter, r *http.Request, data interface{}, err error, notFound string) {
	if err != nil {
		if rankingsvc.IsNotFound(err) {
			response.NotFound(w, r, notFound)
			return
		}
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Failed to read rankings")
		response.InternalError(w, r, "failed to read rankings")
		return
	}
	response.Success(w, r, data)
}
