package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/contextiq/contextiq/core"
)

func TestExtractScore(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   float64
		wantOK bool
	}{
		{"plain number", "0.75", 0.75, true},
		{"with whitespace", "  0.4\n", 0.4, true},
		{"code fence", "```0.6```", 0.6, true},
		{"above range clamped", "1.7", 1.0, true},
		{"below range clamped", "-0.2", 0.0, true},
		{"prose", "the score is 0.5", 0, false},
		{"empty", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractScore(tt.text)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("extractScore(%q) = (%v, %v), want (%v, %v)", tt.text, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	profile := &core.UserProfile{
		UserID:           "u1",
		Interests:        []string{"tech", "science"},
		InteractionCount: 12,
	}
	content := &core.Content{
		ID:          "c1",
		Title:       "Go Concurrency Patterns",
		Category:    "tech",
		Tags:        []string{"golang", "concurrency"},
		Description: strings.Repeat("x", 500),
	}

	prompt := buildPrompt(profile, content)

	if !strings.Contains(prompt, "tech, science") {
		t.Error("prompt should list user interests")
	}
	if !strings.Contains(prompt, "Interaction count: 12") {
		t.Error("prompt should include interaction count")
	}
	if !strings.Contains(prompt, "Go Concurrency Patterns") {
		t.Error("prompt should include content title")
	}
	if strings.Contains(prompt, strings.Repeat("x", 201)) {
		t.Error("description should be truncated to 200 characters")
	}
	if !strings.Contains(prompt, "single number between 0 and 1") {
		t.Error("prompt should instruct numeric-only response")
	}

	// nil 画像不应崩溃
	if got := buildPrompt(nil, content); !strings.Contains(got, "Interaction count: 0") {
		t.Error("nil profile should fall back to zero interaction count")
	}
}

func TestBuildPrompt_TruncatesOnRuneBoundary(t *testing.T) {
	content := &core.Content{
		ID:          "c1",
		Title:       "分布式系统入门",
		Category:    "tech",
		Description: strings.Repeat("长", 300),
	}

	prompt := buildPrompt(nil, content)

	if !utf8.ValidString(prompt) {
		t.Fatal("truncation split a multi-byte character")
	}
	if !strings.Contains(prompt, strings.Repeat("长", 200)) {
		t.Error("truncated description should keep the first 200 characters")
	}
	if strings.Contains(prompt, strings.Repeat("长", 201)) {
		t.Error("description should be truncated to 200 characters")
	}
}

func TestClient_Unavailable(t *testing.T) {
	c := New("", "", 0, zap.NewNop())

	if c.Available() {
		t.Error("client without api key should be unavailable")
	}
	if _, ok := c.Score(context.Background(), nil, &core.Content{ID: "c1"}); ok {
		t.Error("unavailable client must not return a score")
	}
}

func TestClient_Score(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    float64
		wantOK  bool
	}{
		{
			name: "valid score",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"content":[{"type":"text","text":"0.82"}]}`))
			},
			want:   0.82,
			wantOK: true,
		},
		{
			name: "out of range clamped",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"content":[{"type":"text","text":"3.5"}]}`))
			},
			want:   1.0,
			wantOK: true,
		},
		{
			name: "unparseable text",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"content":[{"type":"text","text":"definitely relevant"}]}`))
			},
			wantOK: false,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := New("test-key", "test-model", 0, zap.NewNop()).WithBaseURL(srv.URL)
			got, ok := c.Score(context.Background(),
				&core.UserProfile{UserID: "u1"}, &core.Content{ID: "c1", Title: "t"})

			if ok != tt.wantOK {
				t.Fatalf("Score() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}
