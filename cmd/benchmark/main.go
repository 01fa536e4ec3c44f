// Benchmark tool for load-testing the Prism pricing endpoint.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -requests 10000
//
// This tool:
//   1. Optionally seeds a demo product, modifiers, and attribute prices
//   2. Fires concurrent POST /price requests for the same configuration
//   3. Reports throughput and latency percentiles
//   4. Verifies determinism: every response must carry the same total
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// PriceRequest is the Prism API request format.
type PriceRequest struct {
	ProductID  string      `json:"productId"`
	Selections []Selection `json:"selections,omitempty"`
	Quantity   int         `json:"quantity"`
	ZoneID     string      `json:"zoneId,omitempty"`
	SegmentID  string      `json:"segmentId,omitempty"`
}

// Selection is one configurator choice.
type Selection struct {
	AttributeID string `json:"attributeId"`
	Value       string `json:"value"`
	PricingKey  string `json:"pricingKey,omitempty"`
}

// PriceResponse is the slice of the Prism response the benchmark inspects.
type PriceResponse struct {
	QuoteID   string  `json:"quoteId"`
	Subtotal  float64 `json:"subtotal"`
	GSTAmount float64 `json:"gstAmount"`
	Total     float64 `json:"total"`
	UnitPrice float64 `json:"unitPrice"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64

	mu        sync.Mutex
	latencies []time.Duration
	totals    map[float64]int64
}

func (m *Metrics) record(latency time.Duration, total float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, latency)
	if m.totals == nil {
		m.totals = make(map[float64]int64)
	}
	m.totals[total]++
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Prism base URL")
	requests := flag.Int("requests", 10000, "Total requests to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	productID := flag.String("product", "bench-product", "Product ID to price")
	quantity := flag.Int("quantity", 100, "Quantity per request")
	zoneID := flag.String("zone", "zone-bench", "Zone ID for requests")
	seed := flag.Bool("seed", true, "Seed a demo product and modifiers before running")
	verbose := flag.Bool("verbose", false, "Print each error")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            PRISM BENCHMARK - Pricing Resolution               ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nPrism URL:  %s\n", *baseURL)
	fmt.Printf("Requests:   %d\n", *requests)
	fmt.Printf("Workers:    %d\n", *workers)
	fmt.Printf("Product:    %s\n", *productID)
	fmt.Printf("Quantity:   %d\n", *quantity)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Prism not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Prism is running:")
		fmt.Println("  go run cmd/prism/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Prism is healthy")

	if *seed {
		if err := seedCatalog(*baseURL, *productID, *zoneID); err != nil {
			fmt.Printf("ERROR: Failed to seed catalog: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✓ Catalog seeded")
	}

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(*baseURL, *productID, *zoneID, *quantity, *requests, *workers, *verbose)
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

// seedCatalog creates the product, a zone discount, a global markup, and an
// attribute price entry the benchmark requests will exercise.
func seedCatalog(baseURL, productID, zoneID string) error {
	product := map[string]interface{}{
		"id":         productID,
		"name":       "Benchmark Business Cards",
		"basePrice":  4.50,
		"currency":   "INR",
		"gstPercent": 18,
		"isActive":   true,
	}
	if err := post(baseURL+"/products", product); err != nil {
		return fmt.Errorf("product: %w", err)
	}

	modifiers := []map[string]interface{}{
		{
			"id":           "bench-global-markup",
			"name":         "global markup",
			"appliesTo":    "GLOBAL",
			"appliesOn":    "UNIT",
			"modifierType": "PERCENT_INC",
			"value":        5,
			"priority":     1,
			"isStackable":  true,
			"isActive":     true,
		},
		{
			"id":           "bench-zone-discount",
			"name":         "zone discount",
			"appliesTo":    "ZONE",
			"scopeRef":     zoneID,
			"appliesOn":    "TOTAL",
			"modifierType": "PERCENT_DEC",
			"value":        10,
			"priority":     5,
			"isStackable":  false,
			"isActive":     true,
		},
	}
	for _, m := range modifiers {
		if err := post(baseURL+"/modifiers", m); err != nil {
			return fmt.Errorf("modifier %v: %w", m["id"], err)
		}
	}

	prices := []map[string]interface{}{
		{
			"pricingKey":   "GLOSSY_FINISH",
			"modifierType": "PERCENT_INC",
			"value":        10,
			"appliesOn":    "UNIT",
		},
	}
	body, _ := json.Marshal(prices)
	req, err := http.NewRequest(http.MethodPut, baseURL+"/products/"+productID+"/attribute-prices", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("attribute prices: status %d", resp.StatusCode)
	}
	return nil
}

func post(url string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func runBenchmark(baseURL, productID, zoneID string, quantity, requests, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan struct{}, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for range work {
				start := time.Now()
				result, err := priceOnce(client, baseURL, productID, zoneID, quantity)
				elapsed := time.Since(start)

				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %v\n", err)
					}
					continue
				}

				metrics.record(elapsed, result.Total)
			}
		}()
	}

	for i := 0; i < requests; i++ {
		work <- struct{}{}
	}
	close(work)

	wg.Wait()

	return metrics
}

func priceOnce(client *http.Client, baseURL, productID, zoneID string, quantity int) (*PriceResponse, error) {
	req := PriceRequest{
		ProductID: productID,
		Quantity:  quantity,
		ZoneID:    zoneID,
		Selections: []Selection{
			{AttributeID: "finish", Value: "glossy", PricingKey: "GLOSSY_FINISH"},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(baseURL+"/price", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result PriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\nREQUESTS\n")
	fmt.Printf("   Total Sent:       %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	m.mu.Lock()
	latencies := append([]time.Duration(nil), m.latencies...)
	totals := m.totals
	m.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

		percentile := func(p float64) time.Duration {
			idx := int(float64(len(latencies)-1) * p)
			return latencies[idx]
		}

		fmt.Printf("\nLATENCY\n")
		fmt.Printf("   p50:              %v\n", percentile(0.50).Round(time.Microsecond))
		fmt.Printf("   p95:              %v\n", percentile(0.95).Round(time.Microsecond))
		fmt.Printf("   p99:              %v\n", percentile(0.99).Round(time.Microsecond))
		fmt.Printf("   max:              %v\n", latencies[len(latencies)-1].Round(time.Microsecond))

		fmt.Printf("\nTHROUGHPUT\n")
		fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
		fmt.Printf("   Requests/sec:     %.2f\n", float64(len(latencies))/duration.Seconds())
	}

	fmt.Printf("\nDETERMINISM\n")
	if len(totals) == 1 {
		for total, count := range totals {
			fmt.Printf("   ✓ All %d responses priced identically at %.2f\n", count, total)
		}
	} else {
		fmt.Printf("   ✗ %d distinct totals observed - pricing is NOT deterministic:\n", len(totals))
		for total, count := range totals {
			fmt.Printf("     %.2f x%d\n", total, count)
		}
	}

	fmt.Println()
}
