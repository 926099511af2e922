package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ent0n29/convotone/internal/observability"
)

type options struct {
	baseURL        string
	rounds         int
	conversations  []string
	maxTone        int
	interRound     time.Duration
	requestTimeout time.Duration
	verbose        bool
}

type logDocument struct {
	Conversation string `json:"conversation"`
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfreplay: %v\n", err)
		os.Exit(2)
	}
	if err := run(context.Background(), cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "perfreplay: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var conversationsRaw string
	var interRoundMS int
	var timeoutMS int

	fs := flag.NewFlagSet("perfreplay", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "convotone base URL")
	fs.IntVar(&cfg.rounds, "rounds", 10, "number of list+tone rounds to replay")
	fs.StringVar(&conversationsRaw, "conversations", "", "conversation ids separated by ',' (default: taken from /api/logs)")
	fs.IntVar(&cfg.maxTone, "max-tone", 5, "tone requests per round when ids come from /api/logs")
	fs.IntVar(&interRoundMS, "inter-round-ms", 100, "delay between rounds in milliseconds")
	fs.IntVar(&timeoutMS, "timeout-ms", 15000, "per request timeout in milliseconds")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.rounds <= 0 {
		return options{}, fmt.Errorf("rounds must be > 0")
	}
	if cfg.maxTone < 0 {
		cfg.maxTone = 0
	}
	if interRoundMS < 0 {
		interRoundMS = 0
	}
	if timeoutMS < 100 {
		timeoutMS = 100
	}
	cfg.interRound = time.Duration(interRoundMS) * time.Millisecond
	cfg.requestTimeout = time.Duration(timeoutMS) * time.Millisecond

	for _, part := range strings.Split(conversationsRaw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			cfg.conversations = append(cfg.conversations, id)
		}
	}
	return cfg, nil
}

func run(ctx context.Context, cfg options, out io.Writer) error {
	client := &http.Client{Timeout: cfg.requestTimeout}

	for i := 0; i < cfg.rounds; i++ {
		docs, err := listLogs(ctx, client, cfg.baseURL)
		if err != nil {
			return fmt.Errorf("round %d list logs: %w", i+1, err)
		}
		ids := cfg.conversations
		if len(ids) == 0 {
			ids = conversationIDs(docs, cfg.maxTone)
		}
		if cfg.verbose {
			fmt.Fprintf(out, "perfreplay: round %d/%d logs=%d tone_requests=%d\n", i+1, cfg.rounds, len(docs), len(ids))
		}
		for _, id := range ids {
			if err := fetchTone(ctx, client, cfg.baseURL, id); err != nil {
				return fmt.Errorf("round %d tone %q: %w", i+1, id, err)
			}
		}
		if cfg.interRound > 0 && i < cfg.rounds-1 {
			time.Sleep(cfg.interRound)
		}
	}

	snap, err := fetchLatency(ctx, client, cfg.baseURL)
	if err != nil {
		return fmt.Errorf("fetch latency snapshot: %w", err)
	}
	printSnapshot(out, snap)
	return nil
}

func listLogs(ctx context.Context, client *http.Client, baseURL string) ([]logDocument, error) {
	body, err := get(ctx, client, baseURL+"/api/logs")
	if err != nil {
		return nil, err
	}
	var docs []logDocument
	if err := json.Unmarshal(body, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func fetchTone(ctx context.Context, client *http.Client, baseURL, conversationID string) error {
	_, err := get(ctx, client, baseURL+"/api/tone/"+url.PathEscape(conversationID))
	return err
}

func fetchLatency(ctx context.Context, client *http.Client, baseURL string) (observability.LatencySnapshot, error) {
	var snap observability.LatencySnapshot
	body, err := get(ctx, client, baseURL+"/api/perf/latency")
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		return snap, err
	}
	return snap, nil
}

func get(ctx context.Context, client *http.Client, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// conversationIDs returns up to limit distinct non-empty ids in listing order.
func conversationIDs(docs []logDocument, limit int) []string {
	seen := make(map[string]struct{}, len(docs))
	var out []string
	for _, d := range docs {
		if len(out) >= limit {
			break
		}
		id := strings.TrimSpace(d.Conversation)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func printSnapshot(out io.Writer, snap observability.LatencySnapshot) {
	fmt.Fprintf(out, "perfreplay: retain=%d generated_at=%s\n", snap.Retain, snap.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "%-8s %-10s %7s %8s %10s %10s %10s %10s\n", "comp", "operation", "calls", "failures", "mean_ms", "p50_ms", "p95_ms", "max_ms")
	for _, op := range snap.Operations {
		fmt.Fprintf(out, "%-8s %-10s %7d %8d %10.2f %10.2f %10.2f %10.2f\n", op.Component, op.Operation, op.Calls, op.Failures, op.MeanMS, op.P50MS, op.P95MS, op.MaxMS)
	}
}
