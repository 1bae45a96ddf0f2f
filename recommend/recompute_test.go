package recommend

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/contextiq/contextiq/core"
	"github.com/contextiq/contextiq/model"
	"github.com/contextiq/contextiq/rank"
	"github.com/contextiq/contextiq/store"
)

type countingOracle struct {
	mu        sync.Mutex
	calls     map[string]int
	score     float64
	ok        bool
	available bool
}

func newCountingOracle(score float64, ok bool) *countingOracle {
	return &countingOracle{calls: make(map[string]int), score: score, ok: ok, available: true}
}

func (o *countingOracle) Name() string    { return "counting" }
func (o *countingOracle) Available() bool { return o.available }

func (o *countingOracle) Score(_ context.Context, profile *core.UserProfile, content *core.Content) (float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := profile.UserID + "|" + content.ID
	o.calls[key]++
	return o.score, o.ok
}

func (o *countingOracle) total() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.calls {
		n += c
	}
	return n
}

type staticProfiles struct{}

func (staticProfiles) Profile(_ context.Context, userID string) (*core.UserProfile, error) {
	return core.NewUserProfile(userID), nil
}

func buildFixture(t *testing.T, users, contents []string) (*model.EmbeddingModel, *store.MemoryContentStore) {
	t.Helper()
	m := model.NewEmbeddingModel(8).WithSeed(7)
	m.InitializeEmbeddings(users, contents)
	cs := store.NewMemoryContentStore()
	for _, cid := range contents {
		cs.Put(&core.Content{ID: cid, Title: "title " + cid, Category: "tech"})
	}
	return m, cs
}

func newRecomputer(m *model.EmbeddingModel, cs *store.MemoryContentStore, rs core.RecommendationStore, oracle core.RelevanceOracle, threshold float64, cache core.Store) *Recomputer {
	return &Recomputer{
		Model:           m,
		Scorer:          &rank.HybridScorer{MLWeight: rank.DefaultMLWeight, LLMWeight: rank.DefaultLLMWeight},
		Gate:            &rank.GatePolicy{Threshold: threshold},
		Oracle:          oracle,
		Profiles:        staticProfiles{},
		Contents:        cs,
		Recommendations: rs,
		Cache:           cache,
	}
}

func TestRecomputeAll_UpsertsOneRowPerPair(t *testing.T) {
	users := []string{"u1", "u2", "u3"}
	contents := []string{"c1", "c2", "c3", "c4"}
	m, cs := buildFixture(t, users, contents)
	rs := store.NewMemoryRecommendationStore()

	r := newRecomputer(m, cs, rs, nil, rank.DefaultGateThreshold, nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := r.RecomputeAll(ctx, users); err != nil {
			t.Fatalf("recompute pass %d: %v", i, err)
		}
	}

	// 两轮重算后仍是每对一行，后写覆盖先写
	if got, want := rs.Count(), len(users)*len(contents); got != want {
		t.Fatalf("row count = %d, want %d", got, want)
	}
}

func TestRecomputeAll_MLOnlyWithoutOracle(t *testing.T) {
	users := []string{"u1"}
	contents := []string{"c1", "c2"}
	m, cs := buildFixture(t, users, contents)
	rs := store.NewMemoryRecommendationStore()

	r := newRecomputer(m, cs, rs, nil, 0.0, nil)
	if err := r.RecomputeAll(context.Background(), users); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	recs, err := rs.ListByUser(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, rec := range recs {
		if rec.LLMScore != nil {
			t.Errorf("content %s: llm score set without oracle", rec.ContentID)
		}
		if rec.CombinedScore != rec.MLScore {
			t.Errorf("content %s: combined = %v, want ml score %v", rec.ContentID, rec.CombinedScore, rec.MLScore)
		}
	}
}

func TestRecomputeAll_OracleConsultedAtMostOncePerPair(t *testing.T) {
	users := []string{"u1", "u2"}
	contents := []string{"c1", "c2", "c3"}
	m, cs := buildFixture(t, users, contents)
	rs := store.NewMemoryRecommendationStore()
	oracle := newCountingOracle(0.9, true)

	// 阈值 0 保证全部咨询
	r := newRecomputer(m, cs, rs, oracle, 0.0, nil)
	if err := r.RecomputeAll(context.Background(), users); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	if got, want := oracle.total(), len(users)*len(contents); got != want {
		t.Fatalf("oracle calls = %d, want %d", got, want)
	}
	for key, n := range oracle.calls {
		if n != 1 {
			t.Errorf("pair %s consulted %d times, want 1", key, n)
		}
	}
}

func TestRecomputeAll_GateSkipsOracle(t *testing.T) {
	users := []string{"u1"}
	contents := []string{"c1", "c2"}
	m, cs := buildFixture(t, users, contents)
	rs := store.NewMemoryRecommendationStore()
	oracle := newCountingOracle(0.9, true)

	// 未训练的模型预测在 0.5 附近，阈值 1.0 永远不会越过
	r := newRecomputer(m, cs, rs, oracle, 1.0, nil)
	if err := r.RecomputeAll(context.Background(), users); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	if got := oracle.total(); got != 0 {
		t.Fatalf("oracle calls = %d, want 0", got)
	}
	recs, _ := rs.ListByUser(context.Background(), "u1", 10)
	for _, rec := range recs {
		if rec.CombinedScore != rec.MLScore {
			t.Errorf("ungated pair must score ml-only, got %v vs %v", rec.CombinedScore, rec.MLScore)
		}
	}
}

func TestRecomputeAll_OracleNoScoreFallsBackToML(t *testing.T) {
	users := []string{"u1"}
	contents := []string{"c1"}
	m, cs := buildFixture(t, users, contents)
	rs := store.NewMemoryRecommendationStore()
	oracle := newCountingOracle(0, false)

	r := newRecomputer(m, cs, rs, oracle, 0.0, nil)
	if err := r.RecomputeAll(context.Background(), users); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	recs, _ := rs.ListByUser(context.Background(), "u1", 10)
	if len(recs) != 1 {
		t.Fatalf("got %d recs, want 1", len(recs))
	}
	if recs[0].LLMScore != nil {
		t.Error("llm score must be absent when oracle declines")
	}
	if recs[0].CombinedScore != recs[0].MLScore {
		t.Errorf("combined = %v, want ml score %v", recs[0].CombinedScore, recs[0].MLScore)
	}
}

func TestRecomputeAll_InvalidatesUserCacheOnce(t *testing.T) {
	users := []string{"u1", "u2"}
	contents := []string{"c1", "c2"}
	m, cs := buildFixture(t, users, contents)
	rs := store.NewMemoryRecommendationStore()
	cache := store.NewMemoryStore()
	defer cache.Close()

	ctx := context.Background()
	for _, uid := range users {
		if err := cache.Set(ctx, core.RecommendationCacheKey(uid), []byte("stale"), 600); err != nil {
			t.Fatalf("seed cache: %v", err)
		}
	}

	r := newRecomputer(m, cs, rs, nil, rank.DefaultGateThreshold, cache)
	if err := r.RecomputeAll(ctx, users); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	for _, uid := range users {
		if _, err := cache.Get(ctx, core.RecommendationCacheKey(uid)); !core.IsStoreNotFound(err) {
			t.Errorf("user %s: stale cache entry survived recompute", uid)
		}
	}
}

func TestServiceTopForUser_CacheAside(t *testing.T) {
	users := []string{"u1"}
	contents := []string{"c1", "c2", "c3"}
	m, cs := buildFixture(t, users, contents)
	rs := store.NewMemoryRecommendationStore()
	cache := store.NewMemoryStore()
	defer cache.Close()

	r := newRecomputer(m, cs, rs, nil, rank.DefaultGateThreshold, cache)
	ctx := context.Background()
	if err := r.RecomputeAll(ctx, users); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	svc := &Service{Recommendations: rs, Contents: cs, Cache: cache}

	first, cached, err := svc.TopForUser(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if cached {
		t.Error("first read must miss cache")
	}
	if len(first) != 2 {
		t.Fatalf("got %d items, want 2", len(first))
	}
	for i := 1; i < len(first); i++ {
		if first[i].CombinedScore > first[i-1].CombinedScore {
			t.Error("results not sorted by combined score desc")
		}
	}
	if first[0].Title == "" {
		t.Error("title not joined from content store")
	}

	second, cached, err := svc.TopForUser(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if !cached {
		t.Error("second read must hit cache")
	}
	if fmt.Sprint(second) != fmt.Sprint(first) {
		t.Errorf("cached read differs: %v vs %v", second, first)
	}
}

func TestServiceTopForUser_NoCache(t *testing.T) {
	rs := store.NewMemoryRecommendationStore()
	svc := &Service{Recommendations: rs}

	out, cached, err := svc.TopForUser(context.Background(), "nobody", 5)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if cached || len(out) != 0 {
		t.Fatalf("empty user must return empty uncached list, got %v cached=%v", out, cached)
	}
}
