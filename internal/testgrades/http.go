package testgrades

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// HTTPClient wraps http.Client with the run's token.
type HTTPClient struct {
	client  *http.Client
	baseURL string
	token   string
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(cfg *Config) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
	}
}

// envelope is the service response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Do sends a request and returns the status and raw body.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

// GetData fetches path and decodes the envelope data into out.
func (c *HTTPClient) GetData(ctx context.Context, path string, out any) error {
	status, raw, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("GET %s: status %d: %w", path, status, err)
	}
	if status != http.StatusOK || !env.Success {
		msg := ""
		if env.Error != nil {
			msg = env.Error.Message
		}
		return fmt.Errorf("GET %s: status %d: %s", path, status, msg)
	}
	return json.Unmarshal(env.Data, out)
}

// submitGrades posts grades concurrently and returns the accepted ones.
func submitGrades(ctx context.Context, cfg *Config, grades []GradeRequest, stats *Stats) []Submitted {
	log.Printf("Submitting %d grades with %d workers...", len(grades), cfg.Workers)

	client := newHTTPClient(cfg)

	var (
		successful int64
		conflict   int64
		failed     int64
		submitted  int64
	)

	var (
		mu       sync.Mutex
		accepted = make([]Submitted, 0, len(grades))
	)

	// Progress reporting
	var lastReport atomic.Int64
	reportInterval := time.Second

	gradeChan := make(chan GradeRequest, cfg.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for g := range gradeChan {
				if ctx.Err() != nil {
					continue
				}
				id, result := submitSingleGrade(ctx, client, g)

				atomic.AddInt64(&submitted, 1)
				switch result {
				case resultSuccess:
					atomic.AddInt64(&successful, 1)
					mu.Lock()
					accepted = append(accepted, Submitted{GradeRequest: g, ID: id})
					mu.Unlock()
				case resultConflict:
					atomic.AddInt64(&conflict, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if time.Duration(now-last) >= reportInterval && lastReport.CompareAndSwap(last, now) && cfg.Verbose {
					log.Printf("Progress: %d/%d submitted (success: %d, conflict: %d, failed: %d)",
						atomic.LoadInt64(&submitted), len(grades),
						atomic.LoadInt64(&successful), atomic.LoadInt64(&conflict), atomic.LoadInt64(&failed))
				}
			}
		}()
	}

	go func() {
		defer close(gradeChan)
		for _, g := range grades {
			select {
			case <-ctx.Done():
				return
			case gradeChan <- g:
			}
		}
	}()

	wg.Wait()

	stats.GradesSubmitted = int(atomic.LoadInt64(&submitted))
	stats.GradesSuccessful = int(atomic.LoadInt64(&successful))
	stats.GradesConflict = int(atomic.LoadInt64(&conflict))
	stats.GradesFailed = int(atomic.LoadInt64(&failed))

	log.Printf("Grade submission completed: successful %d, conflict %d, failed %d",
		stats.GradesSuccessful, stats.GradesConflict, stats.GradesFailed)
	return accepted
}

// submitSingleGrade posts one grade and classifies the outcome.
func submitSingleGrade(ctx context.Context, client *HTTPClient, g GradeRequest) (int64, string) { //nolint:gocritic // hugeParam: value from channel
	status, raw, err := client.Do(ctx, http.MethodPost, apiPrefix+"/grades", g)
	if err != nil {
		return 0, resultFailed
	}
	switch status {
	case http.StatusCreated:
		var env envelope
		var created struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return 0, resultFailed
		}
		if err := json.Unmarshal(env.Data, &created); err != nil || created.ID == 0 {
			return 0, resultFailed
		}
		return created.ID, resultSuccess
	case http.StatusConflict:
		return 0, resultConflict
	default:
		return 0, resultFailed
	}
}

func classPath(classID int64, suffix string, cfg *Config) string {
	return apiPrefix + "/grades/classes/" + strconv.FormatInt(classID, 10) + suffix +
		"?academicYear=" + strconv.Itoa(cfg.AcademicYear) +
		"&academicSemester=" + strconv.Itoa(cfg.AcademicSemester) +
		"&maxGradesPerStudent=" + strconv.Itoa(cfg.MaxGradesPerStudent)
}
