// Load generator for exercising Sentinel with synthetic UPI traffic.
//
// Usage:
//   go run cmd/loadgen/main.go -url http://localhost:8080 -count 1000
//
// This tool:
//   1. Generates a mix of clean and fraud-patterned transactions
//   2. Sends each to Sentinel's /analyze endpoint
//   3. Tracks verdict distribution and request latency
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// AnalyzeRequest matches Sentinel's /analyze request format.
type AnalyzeRequest struct {
	ID              string  `json:"id"`
	Amount          float64 `json:"amount"`
	Type            string  `json:"type"`
	Description     string  `json:"description"`
	SenderID        string  `json:"sender_id"`
	ReceiverID      string  `json:"receiver_id"`
	BeneficiaryType string  `json:"beneficiary_type"`
}

// AnalyzeResponse matches Sentinel's /analyze response format.
type AnalyzeResponse struct {
	AnalysisID     string   `json:"analysis_id"`
	TransactionID  string   `json:"transaction_id"`
	RiskScore      int      `json:"risk_score"`
	Verdict        string   `json:"verdict"`
	TriggeredRules []string `json:"triggered_rules"`
}

// Metrics tracks load run results.
type Metrics struct {
	Allowed int64
	Flagged int64
	Blocked int64

	TotalProcessed int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

// Fraud-patterned descriptions cycled into the generated traffic.
var fraudTemplates = []AnalyzeRequest{
	{Amount: 5000, Type: "DEBIT", Description: "family emergency please help", BeneficiaryType: "INDIVIDUAL"},
	{Amount: 2500, Type: "DEBIT", Description: "sent by mistake please return", BeneficiaryType: "INDIVIDUAL"},
	{Amount: 1200, Type: "COLLECT", Description: "claim your refund cashback now", BeneficiaryType: "INDIVIDUAL"},
	{Amount: 800, Type: "COLLECT", Description: "congratulations you won the lottery prize", BeneficiaryType: "INDIVIDUAL"},
}

var cleanTemplates = []AnalyzeRequest{
	{Amount: 250, Type: "DEBIT", Description: "groceries", BeneficiaryType: "MERCHANT"},
	{Amount: 49, Type: "DEBIT", Description: "mobile recharge", BeneficiaryType: "MERCHANT"},
	{Amount: 1500, Type: "CREDIT", Description: "salary advance", BeneficiaryType: "INDIVIDUAL"},
	{Amount: 320, Type: "DEBIT", Description: "dinner split", BeneficiaryType: "INDIVIDUAL"},
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Sentinel base URL")
	count := flag.Int("count", 1000, "Number of transactions to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudRate := flag.Float64("fraud-rate", 0.2, "Fraction of fraud-patterned traffic (0.0-1.0)")
	seed := flag.Int64("seed", 42, "Random seed for reproducible traffic")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          SENTINEL LOADGEN - Synthetic UPI Traffic             ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nSentinel URL: %s\n", *baseURL)
	fmt.Printf("Count:        %d\n", *count)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Fraud Rate:   %.2f\n", *fraudRate)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Sentinel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Sentinel is running:")
		fmt.Println("  go run cmd/sentinel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Sentinel is healthy")

	rng := rand.New(rand.NewSource(*seed))
	requests := make([]AnalyzeRequest, 0, *count)
	for i := 0; i < *count; i++ {
		requests = append(requests, generate(rng, *fraudRate, i))
	}

	fmt.Printf("\nSending %d transactions with %d workers...\n", len(requests), *workers)
	startTime := time.Now()
	metrics := run(requests, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func generate(rng *rand.Rand, fraudRate float64, n int) AnalyzeRequest {
	var req AnalyzeRequest
	if rng.Float64() < fraudRate {
		req = fraudTemplates[rng.Intn(len(fraudTemplates))]
	} else {
		req = cleanTemplates[rng.Intn(len(cleanTemplates))]
	}

	req.ID = uuid.New().String()
	req.SenderID = fmt.Sprintf("user_%04d", n%500)
	req.ReceiverID = fmt.Sprintf("user_%04d", rng.Intn(500)+500)

	// Jitter the amount so scoring is not table-driven
	req.Amount = req.Amount * (0.8 + rng.Float64()*0.4)

	return req
}

func run(requests []AnalyzeRequest, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan AnalyzeRequest, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for req := range work {
				start := time.Now()
				result, err := analyze(client, baseURL, req)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", req.ID, err)
					}
					continue
				}

				switch result.Verdict {
				case "BLOCK":
					atomic.AddInt64(&metrics.Blocked, 1)
				case "FLAG":
					atomic.AddInt64(&metrics.Flagged, 1)
				default:
					atomic.AddInt64(&metrics.Allowed, 1)
				}

				if verbose {
					fmt.Printf("%-7s (%3d) | %-7s | %10.2f | %s\n",
						result.Verdict,
						result.RiskScore,
						req.Type,
						req.Amount,
						req.Description,
					)
				}
			}
		}()
	}

	for _, req := range requests {
		work <- req
	}
	close(work)

	wg.Wait()

	return metrics
}

func analyze(client *http.Client, baseURL string, req AnalyzeRequest) (*AnalyzeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                       LOADGEN RESULTS                         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 VERDICT DISTRIBUTION\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Allowed:          %d\n", m.Allowed)
	fmt.Printf("   Flagged:          %d\n", m.Flagged)
	fmt.Printf("   Blocked:          %d\n", m.Blocked)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	scored := m.Allowed + m.Flagged + m.Blocked
	if scored > 0 {
		fmt.Printf("\n   Non-ALLOW rate:   %.2f%%\n", 100*float64(m.Flagged+m.Blocked)/float64(scored))
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}

	fmt.Println()
}
