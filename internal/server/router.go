package server

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"halprobe/internal/analysis"
)

type API struct {
	auth    *Auth
	store   Store
	service AnalysisService
	obs     *Observability
}

func NewAPI(auth *Auth, store Store, service AnalysisService, obs *Observability) *API {
	return &API{
		auth:    auth,
		store:   store,
		service: service,
		obs:     obs,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealthz)

	mux.HandleFunc("POST /api/v1/auth/login", a.auth.HandleLogin)
	mux.HandleFunc("POST /api/v1/auth/logout", a.auth.HandleLogout)
	mux.HandleFunc("GET /api/v1/auth/me", a.auth.HandleMe)

	mux.HandleFunc("POST /api/v1/analyses", a.handleCreateAnalysis)
	mux.HandleFunc("GET /api/v1/analyses/{id}", a.handleGetAnalysis)
	mux.Handle("GET /api/v1/user/my-analyses", a.auth.Require(http.HandlerFunc(a.handleMyAnalyses)))

	mux.Handle("GET /api/v1/admin/analyses", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminListAnalyses)))
	mux.Handle("GET /api/v1/admin/analyses/{id}", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminGetAnalysis)))
	mux.Handle("GET /api/v1/admin/metrics/overview", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminOverview)))
	mux.Handle("GET /api/v1/admin/audit", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminAudit)))
	mux.Handle("GET /api/v1/admin/config", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminGetConfig)))
	mux.Handle("PATCH /api/v1/admin/config", a.auth.RequireAdmin(http.HandlerFunc(a.handleAdminPatchConfig)))

	wrapped := otelhttp.NewHandler(mux, "halprobe-api-http")
	return withCORS(wrapped)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": nowRFC3339(),
	})
}

func (a *API) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	_, span := otel.Tracer("halprobe-api").Start(r.Context(), "analysis.create")
	defer span.End()
	var req AnalysisRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ipHash, uaHash := actorHashes(r)
	// optional identity; anonymous submissions are allowed
	principal, authErr := a.auth.AuthenticateRequest(r)
	creatorType := "anonymous"
	if authErr == nil {
		creatorType = "user"
		if principal.Role == "admin" {
			creatorType = "admin"
		}
	}
	span.SetAttributes(
		attribute.String("actor.type", creatorType),
		attribute.Bool("request.detailed", req.Detailed),
	)
	meta, err := a.service.Analyze(req, principal, creatorType, "api", ipHash, uaHash)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	span.SetAttributes(attribute.String("analysis.risk", meta.Risk.Risk))
	writeJSON(w, http.StatusOK, meta)
}

func (a *API) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing analysis id")
		return
	}
	meta, ok := a.store.GetAnalysis(id)
	if !ok {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	view := map[string]any{
		"analysis_id": meta.AnalysisID,
		"created_at":  meta.CreatedAt,
		"risk":        meta.Risk,
	}
	if meta.Report != nil {
		view["report"] = meta.Report
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleMyAnalyses(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	analyses := a.store.ListAnalysesByCreator(principal.Subject, parseLimit(r, 50))
	out := make([]map[string]any, 0, len(analyses))
	for _, m := range analyses {
		out = append(out, map[string]any{
			"analysis_id": m.AnalysisID,
			"created_at":  m.CreatedAt,
			"risk":        m.Risk,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": out})
}

func (a *API) handleAdminListAnalyses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"analyses": a.store.ListAnalyses(parseLimit(r, 100)),
	})
}

func (a *API) handleAdminGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing analysis id")
		return
	}
	meta, ok := a.store.GetAnalysis(id)
	if !ok {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (a *API) handleAdminOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.store.GetMetricsOverview())
}

func (a *API) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"audit": a.store.ListAudit(parseLimit(r, 200)),
	})
}

func (a *API) handleAdminGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.service.Thresholds())
}

func (a *API) handleAdminPatchConfig(w http.ResponseWriter, r *http.Request) {
	_, span := otel.Tracer("halprobe-api").Start(r.Context(), "admin.patch_config")
	defer span.End()
	var patch analysis.ConfigPatch
	if err := decodeJSONBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	updated := a.service.UpdateThresholds(patch, principal)
	writeJSON(w, http.StatusOK, updated)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorHashes(r *http.Request) (string, string) {
	ip, _, _ := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if ip == "" {
		ip = strings.TrimSpace(r.RemoteAddr)
	}
	return hashString(ip), hashString(r.UserAgent())
}
