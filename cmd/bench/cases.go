// README: Smoke-test cases; HTTP surface, turn log table, cache, and a small health load check.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 120 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "dsn not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "SKIP", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "HTTP: health",
			Run: func(ctx context.Context, r *Runner) Result {
				start := time.Now()
				status, _, err := r.get(ctx, base+"/health")
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusOK {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status %d", status)}
				}
				return Result{Status: "PASS", Latency: time.Since(start)}
			},
		},
		{
			Name: "HTTP: chat turn",
			Run: func(ctx context.Context, r *Runner) Result {
				start := time.Now()
				status, body, err := r.postJSON(ctx, base+"/api/chat", map[string]string{
					"message": "Hello! Reply in one short sentence.",
				})
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusOK {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status %d: %s", status, trim(body))}
				}
				var reply struct {
					Response string `json:"response"`
				}
				if err := json.Unmarshal(body, &reply); err != nil || strings.TrimSpace(reply.Response) == "" {
					return Result{Status: "FAIL", Note: "empty response: " + trim(body)}
				}
				return Result{Status: "PASS", Latency: time.Since(start)}
			},
		},
		{
			Name: "HTTP: chat rejects empty message",
			Run: func(ctx context.Context, r *Runner) Result {
				status, _, err := r.postJSON(ctx, base+"/api/chat", map[string]string{"message": "  "})
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusBadRequest {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status %d", status)}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "HTTP: history lists the turn",
			Run: func(ctx context.Context, r *Runner) Result {
				status, body, err := r.get(ctx, base+"/api/chat/history")
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusOK {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status %d", status)}
				}
				var hist struct {
					Messages []json.RawMessage `json:"messages"`
				}
				if err := json.Unmarshal(body, &hist); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if len(hist.Messages) < 2 {
					return Result{Status: "FAIL", Note: fmt.Sprintf("%d messages", len(hist.Messages))}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "HTTP: route snapshot",
			Run: func(ctx context.Context, r *Runner) Result {
				status, body, err := r.get(ctx, base+"/api/route")
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusOK {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status %d", status)}
				}
				var snap struct {
					HasRoute *bool `json:"has_route"`
				}
				if err := json.Unmarshal(body, &snap); err != nil || snap.HasRoute == nil {
					return Result{Status: "FAIL", Note: "malformed snapshot: " + trim(body)}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "HTTP: reset clears history",
			Run: func(ctx context.Context, r *Runner) Result {
				status, _, err := r.postJSON(ctx, base+"/api/chat/reset", map[string]bool{"keep_route": false})
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusOK {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status %d", status)}
				}
				status, body, err := r.get(ctx, base+"/api/chat/history")
				if err != nil || status != http.StatusOK {
					return Result{Status: "FAIL", Note: "history after reset"}
				}
				var hist struct {
					Messages []json.RawMessage `json:"messages"`
				}
				if err := json.Unmarshal(body, &hist); err != nil || len(hist.Messages) != 0 {
					return Result{Status: "FAIL", Note: fmt.Sprintf("%d messages after reset", len(hist.Messages))}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "DB: chat_turns row logged",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "dsn not configured"}
				}
				deadline := time.Now().Add(10 * time.Second)
				for {
					var count int
					err := r.db.QueryRow(ctx, "SELECT count(*) FROM chat_turns WHERE created_at > now() - interval '5 minutes'").Scan(&count)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if count > 0 {
						return Result{Status: "PASS"}
					}
					if time.Now().After(deadline) {
						return Result{Status: "FAIL", Note: "no recent chat_turns rows"}
					}
					time.Sleep(500 * time.Millisecond)
				}
			},
		},
		{
			Name: "Perf: health under light load",
			Run: func(ctx context.Context, r *Runner) Result {
				var ok, failed int64
				start := time.Now()
				var wg sync.WaitGroup
				for i := 0; i < r.cfg.Concurrency; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						for time.Since(start) < r.cfg.Duration {
							status, _, err := r.get(ctx, base+"/health")
							if err != nil || status != http.StatusOK {
								atomic.AddInt64(&failed, 1)
								continue
							}
							atomic.AddInt64(&ok, 1)
						}
					}()
				}
				wg.Wait()
				if failed > 0 {
					return Result{Status: "FAIL", Note: fmt.Sprintf("ok=%d failed=%d", ok, failed)}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("%d requests", ok)}
			},
		},
	}
}

func (r *Runner) get(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	return r.do(req)
}

func (r *Runner) postJSON(ctx context.Context, url string, payload any) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return r.do(req)
}

func (r *Runner) do(req *http.Request) (int, []byte, error) {
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func trim(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
