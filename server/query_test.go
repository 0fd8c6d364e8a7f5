package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mediarag/config"
	"mediarag/core"
	"mediarag/storage"
)

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00"},
		{9.7, "00:09"},
		{65, "01:05"},
		{600, "10:00"},
		{3599, "59:59"},
		{3725, "62:05"},
	}
	for _, tc := range cases {
		if got := formatTimestamp(tc.seconds); got != tc.want {
			t.Errorf("formatTimestamp(%g) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestBuildPromptOrdersByPlayback(t *testing.T) {
	sources := []core.Source{
		{MediaID: "b", Text: "Later excerpt.", StartSeconds: 90, EndSeconds: 120, Distance: 0.1},
		{MediaID: "a", Text: "Other recording.", StartSeconds: 0, EndSeconds: 30, Distance: 0.2},
		{MediaID: "b", Text: "Earlier excerpt.", StartSeconds: 0, EndSeconds: 40, Distance: 0.3},
	}
	prompt := buildPrompt("What happened?", sources)

	other := strings.Index(prompt, "Other recording.")
	earlier := strings.Index(prompt, "Earlier excerpt.")
	later := strings.Index(prompt, "Later excerpt.")
	if other == -1 || earlier == -1 || later == -1 {
		t.Fatalf("prompt missing excerpts:\n%s", prompt)
	}
	if !(other < earlier && earlier < later) {
		t.Fatalf("excerpts out of playback order:\n%s", prompt)
	}
	if !strings.Contains(prompt, "[01:30 - 02:00] Later excerpt.") {
		t.Fatalf("missing span prefix:\n%s", prompt)
	}
	if !strings.HasSuffix(strings.TrimSpace(prompt), "Question: What happened?") {
		t.Fatalf("prompt must end with the question:\n%s", prompt)
	}
	// The input ordering is left alone for the response sources.
	if sources[0].Text != "Later excerpt." {
		t.Fatal("buildPrompt must not reorder the caller's slice")
	}
}

type stubEmbedder struct {
	vector []float32
	err    error
}

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return s.vector, s.err
}

type stubChat struct {
	prompt string
	answer string
}

func (s *stubChat) Complete(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.answer, nil
}

func testServer(t *testing.T, index storage.VectorIndex, embedder stubEmbedder, chat *stubChat) *Server {
	t.Helper()
	cfg := &config.Config{
		EmbeddingModel:   "nomic-embed-text",
		QueryTopK:        5,
		QueryMaxDistance: 0.5,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(nil, nil, index, embedder, chat, nil, cfg, log)
}

func TestHandleQuery(t *testing.T) {
	index := storage.NewMemoryIndex()
	if err := index.Insert(context.Background(), core.Embedding{
		ID: "e1", MediaID: "m1", SegmentID: "s1", ModelName: "nomic-embed-text",
		ChunkText: "The launch is planned for March.", Vector: []float32{1, 0},
		StartSeconds: 30, EndSeconds: 70,
	}); err != nil {
		t.Fatal(err)
	}
	chat := &stubChat{answer: "The launch is in March."}
	srv := testServer(t, index, stubEmbedder{vector: []float32{1, 0.1}}, chat)

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"When is the launch?"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "The launch is in March." {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].MediaID != "m1" {
		t.Fatalf("sources = %+v", resp.Sources)
	}
	if !strings.Contains(chat.prompt, "[00:30 - 01:10] The launch is planned for March.") {
		t.Fatalf("chat prompt = %q", chat.prompt)
	}
	if !strings.Contains(chat.prompt, "Question: When is the launch?") {
		t.Fatalf("chat prompt = %q", chat.prompt)
	}
}

func TestHandleQueryNoMatches(t *testing.T) {
	chat := &stubChat{answer: "should not be called"}
	srv := testServer(t, storage.NewMemoryIndex(), stubEmbedder{vector: []float32{1, 0}}, chat)

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"Anything?"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp queryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer != noAnswerText {
		t.Fatalf("answer = %q", resp.Answer)
	}
	if len(resp.Sources) != 0 {
		t.Fatalf("sources = %+v", resp.Sources)
	}
	if chat.prompt != "" {
		t.Fatal("the chat model must not run when retrieval is empty")
	}
}

func TestHandleQueryValidation(t *testing.T) {
	srv := testServer(t, storage.NewMemoryIndex(), stubEmbedder{vector: []float32{1, 0}}, &stubChat{})

	cases := []struct {
		name string
		body string
	}{
		{"empty question", `{"question":"  "}`},
		{"bad json", `{"question":`},
		{"range without media", `{"question":"q","ranges":[{"start_seconds":0,"end_seconds":10}]}`},
		{"inverted range", `{"question":"q","ranges":[{"media_id":"m1","start_seconds":20,"end_seconds":10}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}
