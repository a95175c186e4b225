package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/history"
	"social-graph-lab/internal/storage"
)

// RelationshipsResponse is returned by GET /relationships.
type RelationshipsResponse struct {
	Account         string    `json:"account"`
	ComputedAt      time.Time `json:"computed_at"`
	FollowerCount   int       `json:"follower_count"`
	FollowingCount  int       `json:"following_count"`
	MutualCount     int       `json:"mutual_count"`
	Followers       []string  `json:"followers"`
	Following       []string  `json:"following"`
	Mutual          []string  `json:"mutual"`
	OneWayFollowers []string  `json:"one_way_followers"`
	OneWayFollowing []string  `json:"one_way_following"`
}

// CountsResponse is returned by GET /counts.
type CountsResponse struct {
	Account        string `json:"account"`
	FollowerCount  uint64 `json:"follower_count"`
	FollowingCount uint64 `json:"following_count"`
}

// CandidateResponse is one recommendation.
type CandidateResponse struct {
	Account     string   `json:"account"`
	DisplayName string   `json:"display_name"`
	Description *string  `json:"description,omitempty"`
	AvatarURL   *string  `json:"avatar_url,omitempty"`
	Score       int      `json:"score"`
	MutualCount int      `json:"mutual_count"`
	Reason      string   `json:"reason"`
	ReasonText  string   `json:"reason_text"`
	Sources     []string `json:"sources,omitempty"`
}

// RecommendationsResponse is returned by GET /recommendations.
type RecommendationsResponse struct {
	Account      string              `json:"account"`
	SeedSize     int                 `json:"seed_size"`
	UsedFallback bool                `json:"used_fallback"`
	Candidates   []CandidateResponse `json:"candidates"`
}

// StatResponse is one daily record.
type StatResponse struct {
	Date           string `json:"date"`
	FollowerCount  int    `json:"follower_count"`
	FollowingCount int    `json:"following_count"`
	MutualCount    int    `json:"mutual_count"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Account        string         `json:"account"`
	Days           int            `json:"days"`
	Stats          []StatResponse `json:"stats"`
	FollowerDelta  int            `json:"follower_delta"`
	FollowingDelta int            `json:"following_delta"`
	MutualDelta    int            `json:"mutual_delta"`
}

// MutationRequest is the body of POST /follow and /unfollow. The ledger cap
// still applies per batch; accounts beyond it are reported as not processed.
type MutationRequest struct {
	Accounts []string `json:"accounts" validate:"required,min=1,max=500,dive,required"`
}

// ItemResponse is the per-account mutation outcome.
type ItemResponse struct {
	Account  string `json:"account"`
	Status   string `json:"status"`
	TxHandle string `json:"tx_handle,omitempty"`
	Error    string `json:"error,omitempty"`
}

// MutationResponse reports a follow or unfollow request.
type MutationResponse struct {
	MutationID   string         `json:"mutation_id"`
	Mode         string         `json:"mode"`
	Summary      string         `json:"summary"`
	Requested    int            `json:"requested"`
	Succeeded    int            `json:"succeeded"`
	UsedFallback bool           `json:"used_fallback"`
	BatchHandle  string         `json:"batch_handle,omitempty"`
	Results      []ItemResponse `json:"results"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func (h *Handler) account(w http.ResponseWriter, r *http.Request) (domain.AccountID, bool) {
	acct, err := domain.NormalizeAccount(chi.URLParam(r, "account"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), false)
		return "", false
	}
	return acct, true
}

// getRelationships handles GET /v1/accounts/{account}/relationships
func (h *Handler) getRelationships(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	snap, err := h.agg.ComputeRelationships(r.Context(), acct)
	if err != nil {
		h.fail(w, r, "compute relationships", err)
		return
	}
	respondJSON(w, http.StatusOK, RelationshipsResponse{
		Account:         string(snap.Account),
		ComputedAt:      snap.ComputedAt,
		FollowerCount:   snap.FollowerCount(),
		FollowingCount:  snap.FollowingCount(),
		MutualCount:     snap.MutualCount(),
		Followers:       strs(snap.Followers()),
		Following:       strs(snap.Following()),
		Mutual:          strs(snap.Mutual()),
		OneWayFollowers: strs(snap.OneWayFollowers()),
		OneWayFollowing: strs(snap.OneWayFollowing()),
	})
}

// getCounts handles GET /v1/accounts/{account}/counts
func (h *Handler) getCounts(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	counts, err := h.agg.Counts(r.Context(), acct)
	if err != nil {
		h.fail(w, r, "counts", err)
		return
	}
	respondJSON(w, http.StatusOK, CountsResponse{
		Account:        string(acct),
		FollowerCount:  counts.FollowerCount,
		FollowingCount: counts.FollowingCount,
	})
}

// getRecommendations handles GET /v1/accounts/{account}/recommendations?limit=
func (h *Handler) getRecommendations(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	limit, ok := intParam(w, r, "limit", h.defaultRecommendations, 1, 100)
	if !ok {
		return
	}

	res, err := h.rec.Recommend(r.Context(), acct, limit)
	if err != nil {
		h.fail(w, r, "recommend", err)
		return
	}

	out := RecommendationsResponse{
		Account:      string(res.Account),
		SeedSize:     res.SeedSize,
		UsedFallback: res.UsedFallback,
		Candidates:   make([]CandidateResponse, 0, len(res.Candidates)),
	}
	for _, c := range res.Candidates {
		cr := CandidateResponse{
			Account:     string(c.Account),
			DisplayName: c.Profile.DisplayName(c.Account),
			Score:       c.Score,
			MutualCount: c.MutualCount,
			Reason:      string(c.Reason),
			ReasonText:  c.ReasonText(),
			Sources:     strs(c.Sources),
		}
		if c.Profile != nil {
			cr.Description = c.Profile.Description
			cr.AvatarURL = c.Profile.AvatarURL
		}
		out.Candidates = append(out.Candidates, cr)
	}
	respondJSON(w, http.StatusOK, out)
}

// getStats handles GET /v1/accounts/{account}/stats?days=
func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		respondError(w, http.StatusNotFound, "history is not configured", false)
		return
	}
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	days, ok := intParam(w, r, "days", history.DefaultLookbackDays, 1, domain.DefaultRetentionDays)
	if !ok {
		return
	}

	stats, err := h.stats.Stats(r.Context(), acct, days, h.now())
	if err != nil {
		h.fail(w, r, "stats", err)
		return
	}
	trend := history.ComputeTrend(acct, stats)

	out := StatsResponse{
		Account:        string(acct),
		Days:           days,
		Stats:          make([]StatResponse, 0, len(stats)),
		FollowerDelta:  trend.FollowerDelta,
		FollowingDelta: trend.FollowingDelta,
		MutualDelta:    trend.MutualDelta,
	}
	for _, s := range stats {
		out.Stats = append(out.Stats, StatResponse{
			Date:           s.Date.Format("2006-01-02"),
			FollowerCount:  s.FollowerCount,
			FollowingCount: s.FollowingCount,
			MutualCount:    s.MutualCount,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// mutate handles POST /v1/follow and /v1/unfollow.
// A fully successful request is 200; a partial one is 207.
func (h *Handler) mutate(mode domain.MutationMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.mutator == nil {
			respondError(w, http.StatusForbidden, "writes are disabled: no signer configured", false)
			return
		}

		var req MutationRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body", false)
			return
		}
		if err := h.validate.Struct(req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error(), false)
			return
		}

		accounts := make([]domain.AccountID, len(req.Accounts))
		for i, a := range req.Accounts {
			accounts[i] = domain.AccountID(a)
		}

		rep, err := h.mutator.Apply(r.Context(), accounts, mode)
		if err != nil {
			h.fail(w, r, string(mode), err)
			return
		}

		out := MutationResponse{
			MutationID:   rep.MutationID,
			Mode:         string(rep.Mode),
			Summary:      rep.Summary(),
			Requested:    rep.Requested,
			Succeeded:    rep.Succeeded,
			UsedFallback: rep.UsedFallback,
			BatchHandle:  string(rep.BatchHandle),
			Results:      make([]ItemResponse, 0, len(rep.Results)),
		}
		for _, res := range rep.Results {
			item := ItemResponse{
				Account:  string(res.Account),
				Status:   string(res.Status),
				TxHandle: string(res.TxHandle),
			}
			if res.Err != nil {
				item.Error = res.Err.Error()
			}
			out.Results = append(out.Results, item)
		}

		status := http.StatusOK
		if !rep.Complete() {
			status = http.StatusMultiStatus
		}
		respondJSON(w, status, out)
	}
}

// fail maps an error kind to a status code and logs server-side failures.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, retryable := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("request failed",
			zap.String("op", op),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	respondError(w, status, err.Error(), retryable)
}

func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, domain.ErrInvalidAccount), errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest, false
	case errors.Is(err, domain.ErrMutationRejected):
		return http.StatusForbidden, false
	case errors.Is(err, domain.ErrMutationFailed):
		return http.StatusBadGateway, true
	case errors.Is(err, domain.ErrLedgerUnavailable), errors.Is(err, domain.ErrAggregationFailed),
		errors.Is(err, domain.ErrPersistenceFailed):
		return http.StatusServiceUnavailable, true
	default:
		return http.StatusInternalServerError, false
	}
}

func intParam(w http.ResponseWriter, r *http.Request, name string, def, lo, hi int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		respondError(w, http.StatusBadRequest,
			name+" must be an integer between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi), false)
		return 0, false
	}
	return n, true
}

func strs(ids []domain.AccountID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string, retryable bool) {
	respondJSON(w, status, ErrorResponse{Error: msg, Retryable: retryable})
}
