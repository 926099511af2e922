package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestParseFlagsDefaultsAndConversations(t *testing.T) {
	cfg, err := parseFlags([]string{"-base-url", "http://svc:8080/", "-conversations", "c1, ,c2"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if cfg.baseURL != "http://svc:8080" {
		t.Fatalf("baseURL = %q, want trailing slash trimmed", cfg.baseURL)
	}
	if cfg.rounds != 10 {
		t.Fatalf("rounds = %d, want 10", cfg.rounds)
	}
	if len(cfg.conversations) != 2 || cfg.conversations[0] != "c1" || cfg.conversations[1] != "c2" {
		t.Fatalf("conversations = %v, want [c1 c2]", cfg.conversations)
	}
}

func TestParseFlagsRejectsZeroRounds(t *testing.T) {
	if _, err := parseFlags([]string{"-rounds", "0"}); err == nil {
		t.Fatalf("parseFlags() error = nil, want error")
	}
}

func TestConversationIDsDedupesAndLimits(t *testing.T) {
	docs := []logDocument{{"a"}, {""}, {"a"}, {"b"}, {"c"}}
	got := conversationIDs(docs, 2)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("conversationIDs = %v, want [a b]", got)
	}
}

func TestRunReplaysListAndTone(t *testing.T) {
	var mu sync.Mutex
	hits := map[string]int{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/logs", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		_, _ = w.Write([]byte(`[{"conversation":"c1"},{"conversation":"c2"}]`))
	})
	mux.HandleFunc("/api/tone/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/api/perf/latency", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"generated_at":"2017-03-07T09:00:00Z","retain":256,"operations":[{"component":"store","operation":"list","calls":2,"failures":0,"mean_ms":1.5,"p50_ms":1,"p95_ms":2,"max_ms":2}]}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg, err := parseFlags([]string{"-base-url", ts.URL, "-rounds", "2", "-inter-round-ms", "0", "-verbose=false"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	var out bytes.Buffer
	if err := run(context.Background(), cfg, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if hits["/api/logs"] != 2 {
		t.Fatalf("list hits = %d, want 2", hits["/api/logs"])
	}
	if hits["/api/tone/c1"] != 2 || hits["/api/tone/c2"] != 2 {
		t.Fatalf("tone hits = %v, want 2 each for c1 and c2", hits)
	}
	if !strings.Contains(out.String(), "store    list") || !strings.Contains(out.String(), "retain=256") {
		t.Fatalf("output missing snapshot: %q", out.String())
	}
}

func TestRunFailsOnServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"boom","code":"store_error"}`, http.StatusInternalServerError)
	}))
	defer ts.Close()

	cfg, err := parseFlags([]string{"-base-url", ts.URL, "-rounds", "1"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	err = run(context.Background(), cfg, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "HTTP 500") {
		t.Fatalf("run() error = %v, want HTTP 500", err)
	}
}
