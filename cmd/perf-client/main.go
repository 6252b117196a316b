package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-envconfig"
	"golang.org/x/time/rate"

	"github.com/kkkkikiki/surveyreview/internal/apperr"
	"github.com/kkkkikiki/surveyreview/internal/rpc"
	"github.com/kkkkikiki/surveyreview/internal/service"
)

// PerfResult gathers aggregated metrics for the run.
// LatencySum & P95Latency are in nanoseconds.
type PerfResult struct {
	TotalRequests int64
	Generated     int64
	Existing      int64
	QuotaExceeded int64
	ErrorCount    int64
	LatencySum    int64
	P95Latency    int64
}

type perfConfig struct {
	BaseURL    string        `env:"BASE_URL,default=http://localhost:8080"`
	ShopID     string        `env:"SHOP_ID,required"`
	Duplicates int           `env:"DUPLICATES,default=20"`
	Distinct   int           `env:"DISTINCT,default=10"`
	RPS        float64       `env:"RPS,default=10"`
	Timeout    time.Duration `env:"TIMEOUT,default=300s"`
}

type outcome struct {
	responseID string
	content    string
	existing   bool
	err        error
}

func main() {
	ctx := context.Background()

	var cfg perfConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper("PERF_", envconfig.OsLookuper()),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// ─── HTTP Client & Transport ─────────────────────────────────
	workers := cfg.Duplicates + cfg.Distinct
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        workers * 2,
			MaxIdleConnsPerHost: workers * 2,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: cfg.Timeout,
	}
	client := rpc.NewReviewServiceClient(httpClient, cfg.BaseURL)

	before, err := client.CheckQuota(ctx, &rpc.CheckQuotaRequest{ShopID: cfg.ShopID})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to check quota: %v\n", err)
		os.Exit(1)
	}

	// ─── Survey responses ────────────────────────────────────────
	ids, err := submitResponses(ctx, httpClient, cfg.BaseURL, cfg.ShopID, cfg.Distinct+1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to submit survey responses: %v\n", err)
		os.Exit(1)
	}
	dupID, distinctIDs := ids[0], ids[1:]

	fmt.Println("==========================================")
	fmt.Println("🚀 口コミ生成 整合性テストクライアント")
	fmt.Println("==========================================")
	fmt.Printf("店舗ID        : %s\n", cfg.ShopID)
	fmt.Printf("残り生成枠    : %d / %d\n", before.RemainingReviews, before.Limit)
	fmt.Printf("同一ID並列数  : %d\n", cfg.Duplicates)
	fmt.Printf("別ID並列数    : %d\n", cfg.Distinct)
	fmt.Println("==========================================")

	burst := int(cfg.RPS)
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RPS), burst)

	var result PerfResult
	latencyChan := make(chan time.Duration, 4096)
	var trackerDone sync.WaitGroup
	trackerDone.Add(1)
	go func() {
		defer trackerDone.Done()
		trackP95(latencyChan, &result)
	}()

	calls := make([]string, 0, workers)
	for i := 0; i < cfg.Duplicates; i++ {
		calls = append(calls, dupID)
	}
	calls = append(calls, distinctIDs...)

	start := time.Now()
	outcomes := make([]outcome, len(calls))
	var wg sync.WaitGroup
	for i, id := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Wait(ctx); err != nil {
				outcomes[i] = outcome{responseID: id, err: err}
				return
			}
			outcomes[i] = doRequest(ctx, client, id, cfg.Timeout, &result, latencyChan)
		}()
	}
	wg.Wait()
	close(latencyChan)
	trackerDone.Wait()
	totalDur := time.Since(start)

	// ─── Report ─────────────────────────────────────────────────
	var avgLatency time.Duration
	if done := result.Generated + result.Existing; done > 0 {
		avgLatency = time.Duration(result.LatencySum / done)
	}
	fmt.Println("==========================================")
	fmt.Println("📊 テスト結果")
	fmt.Println("==========================================")
	fmt.Printf("所要時間          : %.2f秒\n", totalDur.Seconds())
	fmt.Printf("総リクエスト数    : %d\n", result.TotalRequests)
	fmt.Printf("新規生成          : %d\n", result.Generated)
	fmt.Printf("既存レビュー返却  : %d\n", result.Existing)
	fmt.Printf("上限到達          : %d\n", result.QuotaExceeded)
	fmt.Printf("エラー            : %d\n", result.ErrorCount)
	fmt.Printf("平均レイテンシ    : %v\n", avgLatency)
	fmt.Printf("P95レイテンシ     : %v\n", time.Duration(result.P95Latency))

	// ─── Data Consistency Check ─────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("🔍 データ整合性検証")
	fmt.Println("==========================================")

	if err := verifyConsistency(ctx, client, cfg.ShopID, before, dupID, outcomes); err != nil {
		fmt.Printf("❌ 整合性検証失敗: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ データ整合性確認完了")
	fmt.Println("==========================================")
}

// submitResponses creates n survey responses through the public REST surface.
func submitResponses(ctx context.Context, httpClient *http.Client, baseURL, shopID string, n int) ([]string, error) {
	var view service.SurveyView
	if err := doJSON(ctx, httpClient, http.MethodGet, baseURL+"/surveys/"+shopID, nil, &view); err != nil {
		return nil, fmt.Errorf("get survey: %w", err)
	}

	answers := map[string]string{}
	for _, q := range view.Questions {
		if len(q.Options) > 0 {
			answers[q.ID] = q.Options[0]
		} else {
			answers[q.ID] = "料理が美味しく、店員さんの対応も丁寧でした。"
		}
	}

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		var created struct {
			ID string `json:"id"`
		}
		body := map[string]any{"shopId": shopID, "surveySettingsId": view.SurveySettingsID, "answers": answers}
		if err := doJSON(ctx, httpClient, http.MethodPost, baseURL+"/survey-responses", body, &created); err != nil {
			return nil, fmt.Errorf("submit response %d: %w", i, err)
		}
		ids = append(ids, created.ID)
	}
	return ids, nil
}

func doJSON(ctx context.Context, httpClient *http.Client, method, url string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// doRequest performs a single GenerateReview RPC and collects metrics.
func doRequest(parent context.Context, client *rpc.ReviewServiceClient, id string, timeout time.Duration, result *PerfResult, latencyChan chan<- time.Duration) outcome {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	start := time.Now()
	atomic.AddInt64(&result.TotalRequests, 1)

	resp, err := client.GenerateReview(ctx, &rpc.GenerateReviewRequest{SurveyID: id})
	latency := time.Since(start)

	if err != nil {
		if rpc.KindOf(err) == apperr.KindQuotaExceeded {
			atomic.AddInt64(&result.QuotaExceeded, 1)
		} else {
			atomic.AddInt64(&result.ErrorCount, 1)
		}
		return outcome{responseID: id, err: err}
	}

	if resp.IsExisting {
		atomic.AddInt64(&result.Existing, 1)
	} else {
		atomic.AddInt64(&result.Generated, 1)
	}
	atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
	select {
	case latencyChan <- latency:
	default:
	}
	return outcome{responseID: id, content: resp.Review, existing: resp.IsExisting}
}

// trackP95 keeps a bounded latency sample and updates the P95 estimate.
func trackP95(latencies <-chan time.Duration, result *PerfResult) {
	const size = 1000
	buf := make([]int64, 0, size)

	for lat := range latencies {
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else if idx := time.Now().UnixNano() % int64(size); idx < int64(size/10) {
			buf[idx] = lat.Nanoseconds()
		}
	}
	if len(buf) == 0 {
		return
	}
	slices.Sort(buf)
	p95Index := int(float64(len(buf)) * 0.95)
	if p95Index >= len(buf) {
		p95Index = len(buf) - 1
	}
	atomic.StoreInt64(&result.P95Latency, buf[p95Index])
}

// verifyConsistency checks one review per response and that the quota counter
// matches the number of new generations.
func verifyConsistency(ctx context.Context, client *rpc.ReviewServiceClient, shopID string, before *rpc.CheckQuotaResponse, dupID string, outcomes []outcome) error {
	contents := map[string]string{}
	generated := 0
	for _, o := range outcomes {
		if o.err != nil {
			continue
		}
		if !o.existing {
			generated++
		}
		if prev, ok := contents[o.responseID]; ok && prev != o.content {
			return fmt.Errorf("同一回答 %s に異なるレビューが返却されました", o.responseID)
		}
		contents[o.responseID] = o.content
	}

	newForDup := 0
	for _, o := range outcomes {
		if o.responseID == dupID && o.err == nil && !o.existing {
			newForDup++
		}
	}
	if newForDup > 1 {
		return fmt.Errorf("同一回答に対して %d 回生成されました", newForDup)
	}

	after, err := client.CheckQuota(ctx, &rpc.CheckQuotaRequest{ShopID: shopID})
	if err != nil {
		return fmt.Errorf("failed to check quota: %w", err)
	}

	fmt.Printf("生成前カウント    : %d\n", before.CurrentCount)
	fmt.Printf("生成後カウント    : %d\n", after.CurrentCount)
	fmt.Printf("新規生成 (テスト) : %d\n", generated)

	if generated > before.RemainingReviews {
		return fmt.Errorf("上限超過: 生成=%d > 残り枠=%d", generated, before.RemainingReviews)
	}
	if after.CurrentCount > after.Limit {
		return fmt.Errorf("カウントが上限を超えています: %d > %d", after.CurrentCount, after.Limit)
	}
	if got := after.CurrentCount - before.CurrentCount; got != generated {
		return fmt.Errorf("データ不一致: カウント増加=%d, 生成=%d", got, generated)
	}

	for id, content := range contents {
		resp, err := client.GenerateReview(ctx, &rpc.GenerateReviewRequest{SurveyID: id})
		if err != nil {
			return fmt.Errorf("re-fetch %s: %w", id, err)
		}
		if !resp.IsExisting || resp.Review != content {
			return fmt.Errorf("回答 %s の再取得結果が一致しません", id)
		}
	}
	return nil
}
