package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/contextiq/contextiq/core"
)

// NewPostgresDB 建立 PostgreSQL 连接。
// 启动期连接失败是致命错误，由调用方决定退出。
func NewPostgresDB(dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("postgres connection established")
	return db, nil
}

// PostgresInteractionStore 是交互历史的 PostgreSQL 实现。
type PostgresInteractionStore struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewPostgresInteractionStore(db *sqlx.DB, logger *zap.Logger) *PostgresInteractionStore {
	return &PostgresInteractionStore{db: db, log: logger}
}

// InsertBatch 在单个事务内批量写入交互，自然键冲突时忽略。
// 任一写入失败则整批回滚，不产生部分提交。
func (s *PostgresInteractionStore) InsertBatch(ctx context.Context, events []*core.InteractionEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `
		INSERT INTO interactions (user_id, content_id, interaction_type, duration_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING`

	for _, ev := range events {
		ts := ev.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := tx.ExecContext(ctx, query,
			ev.UserID, ev.ContentID, string(ev.InteractionType), ev.DurationSeconds, ts,
		); err != nil {
			return fmt.Errorf("insert interaction %s/%s: %w", ev.UserID, ev.ContentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit interactions: %w", err)
	}
	return nil
}

func (s *PostgresInteractionStore) DistinctUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT DISTINCT user_id FROM interactions`); err != nil {
		return nil, fmt.Errorf("select distinct users: %w", err)
	}
	return ids, nil
}

func (s *PostgresInteractionStore) RecentWeighted(ctx context.Context, since time.Time) ([]core.WeightedInteraction, error) {
	var rows []core.WeightedInteraction
	const query = `
		SELECT user_id, content_id, COUNT(*) AS interaction_count
		FROM interactions
		WHERE created_at > $1
		GROUP BY user_id, content_id`
	if err := s.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("select recent interactions: %w", err)
	}
	return rows, nil
}

func (s *PostgresInteractionStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM interactions WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("count interactions for %s: %w", userID, err)
	}
	return count, nil
}

func (s *PostgresInteractionStore) CategoriesByUser(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	var categories []string
	const query = `
		SELECT DISTINCT c.category
		FROM interactions i
		JOIN content c ON i.content_id = c.content_id
		WHERE i.user_id = $1
		LIMIT $2`
	if err := s.db.SelectContext(ctx, &categories, query, userID, limit); err != nil {
		return nil, fmt.Errorf("select categories for %s: %w", userID, err)
	}
	return categories, nil
}

// PostgresContentStore 是内容元信息的 PostgreSQL 实现。
// tags 列为 JSON 文本，读取时反序列化。
type PostgresContentStore struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewPostgresContentStore(db *sqlx.DB, logger *zap.Logger) *PostgresContentStore {
	return &PostgresContentStore{db: db, log: logger}
}

// Upsert 写入或更新一条内容元信息，tags 以 JSON 文本落列。
func (s *PostgresContentStore) Upsert(ctx context.Context, content *core.Content) error {
	tags, err := json.Marshal(content.Tags)
	if err != nil {
		return fmt.Errorf("encode tags for %s: %w", content.ID, err)
	}
	const query = `
		INSERT INTO content (content_id, title, category, tags, description)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (content_id) DO UPDATE SET
			title = EXCLUDED.title,
			category = EXCLUDED.category,
			tags = EXCLUDED.tags,
			description = EXCLUDED.description`
	if _, err := s.db.ExecContext(ctx, query,
		content.ID, content.Title, content.Category, string(tags), content.Description); err != nil {
		return fmt.Errorf("upsert content %s: %w", content.ID, err)
	}
	return nil
}

func (s *PostgresContentStore) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT content_id FROM content ORDER BY content_id`); err != nil {
		return nil, fmt.Errorf("select content ids: %w", err)
	}
	return ids, nil
}

func (s *PostgresContentStore) Get(ctx context.Context, contentID string) (*core.Content, error) {
	var row struct {
		ContentID   string         `db:"content_id"`
		Title       string         `db:"title"`
		Category    string         `db:"category"`
		Tags        sql.NullString `db:"tags"`
		Description string         `db:"description"`
	}
	const query = `
		SELECT content_id, title, category, tags, description
		FROM content
		WHERE content_id = $1`
	if err := s.db.GetContext(ctx, &row, query, contentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeNotFound,
				fmt.Sprintf("content %s not found", contentID))
		}
		return nil, fmt.Errorf("select content %s: %w", contentID, err)
	}

	content := &core.Content{
		ID:          row.ContentID,
		Title:       row.Title,
		Category:    row.Category,
		Description: row.Description,
	}
	if row.Tags.Valid && row.Tags.String != "" {
		if err := json.Unmarshal([]byte(row.Tags.String), &content.Tags); err != nil {
			// tags 解析失败不致命：内容仍可参与评分
			s.log.Warn("malformed content tags", zap.String("content_id", contentID), zap.Error(err))
		}
	}
	return content, nil
}

// PostgresRecommendationStore 是推荐结果的 PostgreSQL 实现。
type PostgresRecommendationStore struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewPostgresRecommendationStore(db *sqlx.DB, logger *zap.Logger) *PostgresRecommendationStore {
	return &PostgresRecommendationStore{db: db, log: logger}
}

// UpsertBatch 在单个事务内批量 upsert，(user_id, content_id) 唯一键上
// 后写覆盖先写。读者不会观察到半行状态。
func (s *PostgresRecommendationStore) UpsertBatch(ctx context.Context, recs []*core.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `
		INSERT INTO recommendations (user_id, content_id, ml_score, llm_score, combined_score, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, content_id) DO UPDATE
		SET ml_score = EXCLUDED.ml_score,
		    llm_score = EXCLUDED.llm_score,
		    combined_score = EXCLUDED.combined_score,
		    computed_at = EXCLUDED.computed_at`

	for _, rec := range recs {
		var llm sql.NullFloat64
		if rec.LLMScore != nil {
			llm = sql.NullFloat64{Float64: *rec.LLMScore, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, query,
			rec.UserID, rec.ContentID, rec.MLScore, llm, rec.CombinedScore, rec.ComputedAt,
		); err != nil {
			return fmt.Errorf("upsert recommendation %s/%s: %w", rec.UserID, rec.ContentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recommendations: %w", err)
	}
	return nil
}

func (s *PostgresRecommendationStore) ListByUser(ctx context.Context, userID string, limit int) ([]*core.Recommendation, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []struct {
		UserID        string          `db:"user_id"`
		ContentID     string          `db:"content_id"`
		MLScore       float64         `db:"ml_score"`
		LLMScore      sql.NullFloat64 `db:"llm_score"`
		CombinedScore float64         `db:"combined_score"`
		ComputedAt    time.Time       `db:"computed_at"`
	}
	const query = `
		SELECT user_id, content_id, ml_score, llm_score, combined_score, computed_at
		FROM recommendations
		WHERE user_id = $1
		ORDER BY combined_score DESC
		LIMIT $2`
	if err := s.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, fmt.Errorf("select recommendations for %s: %w", userID, err)
	}

	recs := make([]*core.Recommendation, 0, len(rows))
	for _, r := range rows {
		rec := &core.Recommendation{
			UserID:        r.UserID,
			ContentID:     r.ContentID,
			MLScore:       r.MLScore,
			CombinedScore: r.CombinedScore,
			ComputedAt:    r.ComputedAt,
		}
		if r.LLMScore.Valid {
			v := r.LLMScore.Float64
			rec.LLMScore = &v
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// 确保 PostgreSQL 实现满足领域接口
var (
	_ core.InteractionStore    = (*PostgresInteractionStore)(nil)
	_ core.ContentStore        = (*PostgresContentStore)(nil)
	_ core.RecommendationStore = (*PostgresRecommendationStore)(nil)
)
