package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema 是核心三张表的建表语句。
// interactions 上的唯一约束支撑批量写入的冲突忽略语义；
// recommendations 的 (user_id, content_id) 主键支撑 upsert 覆盖语义。
const schema = `
CREATE TABLE IF NOT EXISTS content (
	content_id  TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	tags        TEXT,
	description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS interactions (
	id               BIGSERIAL PRIMARY KEY,
	user_id          TEXT NOT NULL,
	content_id       TEXT NOT NULL,
	interaction_type TEXT NOT NULL,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, content_id, interaction_type, created_at)
);

CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions (user_id);
CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions (created_at);

CREATE TABLE IF NOT EXISTS recommendations (
	user_id        TEXT NOT NULL,
	content_id     TEXT NOT NULL,
	ml_score       DOUBLE PRECISION NOT NULL,
	llm_score      DOUBLE PRECISION,
	combined_score DOUBLE PRECISION NOT NULL,
	computed_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, content_id)
);
`

// EnsureSchema 建表（幂等）。供 seed 工具与开发环境使用；
// 生产环境由运维侧管理表结构。
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
