package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/contextiq/contextiq/core"
)

// 内存实现的持久化仓储，用于测试/开发。
// 与 PostgreSQL 实现保持相同语义：交互批量写入带自然键冲突忽略，
// 推荐以 (user_id, content_id) 为唯一键 upsert。

// MemoryInteractionStore 是交互历史的内存实现。
type MemoryInteractionStore struct {
	mu     sync.RWMutex
	rows   []*core.InteractionEvent
	seen   map[string]bool
	lookup core.ContentStore // 类目查询需要内容元信息，可为 nil
}

func NewMemoryInteractionStore(contents core.ContentStore) *MemoryInteractionStore {
	return &MemoryInteractionStore{
		seen:   make(map[string]bool),
		lookup: contents,
	}
}

func naturalKey(ev *core.InteractionEvent) string {
	return fmt.Sprintf("%s|%s|%s|%d", ev.UserID, ev.ContentID, ev.InteractionType, ev.Timestamp.UnixNano())
}

func (s *MemoryInteractionStore) InsertBatch(ctx context.Context, events []*core.InteractionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range events {
		key := naturalKey(ev)
		if s.seen[key] {
			continue
		}
		s.seen[key] = true
		s.rows = append(s.rows, ev)
	}
	return nil
}

func (s *MemoryInteractionStore) DistinctUserIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]bool)
	ids := make([]string, 0)
	for _, ev := range s.rows {
		if !set[ev.UserID] {
			set[ev.UserID] = true
			ids = append(ids, ev.UserID)
		}
	}
	return ids, nil
}

func (s *MemoryInteractionStore) RecentWeighted(ctx context.Context, since time.Time) ([]core.WeightedInteraction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[[2]string]int)
	order := make([][2]string, 0)
	for _, ev := range s.rows {
		if !ev.Timestamp.After(since) {
			continue
		}
		key := [2]string{ev.UserID, ev.ContentID}
		if _, ok := counts[key]; !ok {
			order = append(order, key)
		}
		counts[key]++
	}

	out := make([]core.WeightedInteraction, 0, len(order))
	for _, key := range order {
		out = append(out, core.WeightedInteraction{
			UserID:    key[0],
			ContentID: key[1],
			Count:     counts[key],
		})
	}
	return out, nil
}

func (s *MemoryInteractionStore) CountByUser(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, ev := range s.rows {
		if ev.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryInteractionStore) CategoriesByUser(ctx context.Context, userID string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lookup == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	seen := make(map[string]bool)
	categories := make([]string, 0)
	for _, ev := range s.rows {
		if ev.UserID != userID {
			continue
		}
		content, err := s.lookup.Get(ctx, ev.ContentID)
		if err != nil || content.Category == "" || seen[content.Category] {
			continue
		}
		seen[content.Category] = true
		categories = append(categories, content.Category)
		if len(categories) >= limit {
			break
		}
	}
	return categories, nil
}

// Len 返回已存储的交互行数（测试断言用）。
func (s *MemoryInteractionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// MemoryContentStore 是内容元信息的内存实现。
type MemoryContentStore struct {
	mu       sync.RWMutex
	contents map[string]*core.Content
	order    []string
}

func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{contents: make(map[string]*core.Content)}
}

// Put 写入一条内容（测试/seed 用）。
func (s *MemoryContentStore) Put(content *core.Content) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contents[content.ID]; !ok {
		s.order = append(s.order, content.ID)
	}
	s.contents[content.ID] = content
}

func (s *MemoryContentStore) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids, nil
}

func (s *MemoryContentStore) Get(ctx context.Context, contentID string) (*core.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.contents[contentID]
	if !ok {
		return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeNotFound,
			fmt.Sprintf("content %s not found", contentID))
	}
	return content, nil
}

// MemoryRecommendationStore 是推荐结果的内存实现。
type MemoryRecommendationStore struct {
	mu   sync.RWMutex
	rows map[string]*core.Recommendation // key: user_id|content_id
}

func NewMemoryRecommendationStore() *MemoryRecommendationStore {
	return &MemoryRecommendationStore{rows: make(map[string]*core.Recommendation)}
}

func (s *MemoryRecommendationStore) UpsertBatch(ctx context.Context, recs []*core.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		s.rows[rec.UserID+"|"+rec.ContentID] = rec
	}
	return nil
}

func (s *MemoryRecommendationStore) ListByUser(ctx context.Context, userID string, limit int) ([]*core.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	out := make([]*core.Recommendation, 0)
	for _, rec := range s.rows {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CombinedScore == out[j].CombinedScore {
			return out[i].ContentID < out[j].ContentID
		}
		return out[i].CombinedScore > out[j].CombinedScore
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count 返回推荐行数（测试断言用）。
func (s *MemoryRecommendationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// 确保内存实现满足领域接口
var (
	_ core.InteractionStore    = (*MemoryInteractionStore)(nil)
	_ core.ContentStore        = (*MemoryContentStore)(nil)
	_ core.RecommendationStore = (*MemoryRecommendationStore)(nil)
)
