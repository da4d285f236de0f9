package server

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"halprobe/internal/analysis"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) CreateAnalysis(meta AnalysisMeta) error {
	req, _ := json.Marshal(meta.Request)
	risk, _ := json.Marshal(meta.Risk)
	var reportJSON []byte
	if meta.Report != nil {
		reportJSON, _ = json.Marshal(meta.Report)
	}
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO analyses (analysis_id,creator_type,creator_sub,source,request,created_at,report,risk,
		        hallucination_risk,is_suspected,confidence_score,normalized_seq_logprob)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		meta.AnalysisID, meta.CreatorType, nullStr(meta.CreatorSub), meta.Source, req, meta.CreatedAt,
		reportJSON, risk, meta.Risk.Risk, meta.Risk.Suspected, meta.Risk.ConfidenceScore,
		meta.Risk.NormalizedSeqLogprob)
	return err
}

func (s *PgStore) GetAnalysis(analysisID string) (AnalysisMeta, bool) {
	row := s.pool.QueryRow(context.Background(),
		`SELECT analysis_id,creator_type,creator_sub,source,request,created_at,report,risk
		 FROM analyses WHERE analysis_id=$1`, analysisID)
	meta, err := scanAnalysisMeta(row)
	if err != nil {
		return AnalysisMeta{}, false
	}
	return meta, true
}

func (s *PgStore) ListAnalyses(limit int) []AnalysisMeta {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(context.Background(),
		`SELECT analysis_id,creator_type,creator_sub,source,request,created_at,report,risk
		 FROM analyses ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return []AnalysisMeta{}
	}
	defer rows.Close()
	var out []AnalysisMeta
	for rows.Next() {
		meta, err := scanAnalysisMeta(rows)
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	if out == nil {
		return []AnalysisMeta{}
	}
	return out
}

func (s *PgStore) ListAnalysesByCreator(creatorSub string, limit int) []AnalysisMeta {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(context.Background(),
		`SELECT analysis_id,creator_type,creator_sub,source,request,created_at,report,risk
		 FROM analyses WHERE creator_sub=$1 ORDER BY created_at DESC LIMIT $2`, creatorSub, limit)
	if err != nil {
		return []AnalysisMeta{}
	}
	defer rows.Close()
	var out []AnalysisMeta
	for rows.Next() {
		meta, err := scanAnalysisMeta(rows)
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	if out == nil {
		return []AnalysisMeta{}
	}
	return out
}

func (s *PgStore) AppendAudit(event AuditEvent) error {
	if strings.TrimSpace(event.Timestamp) == "" {
		event.Timestamp = nowRFC3339()
	}
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO audit_events (timestamp,analysis_id,actor_type,actor_sub,action,result,ip_hash,ua_hash,detail)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		event.Timestamp, nullStr(event.AnalysisID), event.ActorType, nullStr(event.ActorSub),
		event.Action, event.Result, nullStr(event.IPHash), nullStr(event.UAHash), nullStr(event.Detail))
	return err
}

func (s *PgStore) ListAudit(limit int) []AuditEvent {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(context.Background(),
		`SELECT timestamp,analysis_id,actor_type,actor_sub,action,result,ip_hash,ua_hash,detail
		 FROM audit_events ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return []AuditEvent{}
	}
	defer rows.Close()
	var out []AuditEvent
	for rows.Next() {
		var a AuditEvent
		var ts time.Time
		var analysisID, actorSub, ipHash, uaHash, detail *string
		if err := rows.Scan(&ts, &analysisID, &a.ActorType, &actorSub, &a.Action, &a.Result, &ipHash, &uaHash, &detail); err != nil {
			continue
		}
		a.Timestamp = ts.UTC().Format(time.RFC3339)
		a.AnalysisID = deref(analysisID)
		a.ActorSub = deref(actorSub)
		a.IPHash = deref(ipHash)
		a.UAHash = deref(uaHash)
		a.Detail = deref(detail)
		out = append(out, a)
	}
	if out == nil {
		return []AuditEvent{}
	}
	return out
}

func (s *PgStore) GetMetricsOverview() MetricsOverview {
	overview := MetricsOverview{GeneratedAt: nowRFC3339()}
	_ = s.pool.QueryRow(context.Background(),
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_suspected),
			COUNT(*) FILTER (WHERE hallucination_risk='low'),
			COUNT(*) FILTER (WHERE hallucination_risk='medium'),
			COUNT(*) FILTER (WHERE hallucination_risk='high'),
			COUNT(*) FILTER (WHERE hallucination_risk='critical'),
			COALESCE(AVG(confidence_score),0),
			COALESCE(AVG(normalized_seq_logprob),0)
		 FROM analyses`).Scan(
		&overview.TotalAnalyses, &overview.SuspectedAnalyses,
		&overview.LowRisk, &overview.MediumRisk, &overview.HighRisk, &overview.CriticalRisk,
		&overview.AverageConfidence, &overview.AverageNormalized)
	return overview
}

// --- helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanAnalysisMeta(row scannable) (AnalysisMeta, error) {
	var m AnalysisMeta
	var reqJSON, riskJSON, reportJSON []byte
	var creatorSub, source *string
	err := row.Scan(&m.AnalysisID, &m.CreatorType, &creatorSub, &source,
		&reqJSON, &m.CreatedAt, &reportJSON, &riskJSON)
	if err != nil {
		return AnalysisMeta{}, err
	}
	m.CreatorSub = deref(creatorSub)
	m.Source = deref(source)
	_ = json.Unmarshal(reqJSON, &m.Request)
	_ = json.Unmarshal(riskJSON, &m.Risk)
	if len(reportJSON) > 0 {
		var r analysis.Insights
		if json.Unmarshal(reportJSON, &r) == nil {
			m.Report = &r
		}
	}
	return m, nil
}

func nullStr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Ensure PgStore implements Store at compile time.
var _ Store = (*PgStore)(nil)
