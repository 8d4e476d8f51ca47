package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abkawan/banking-accounts/internal/models"
	"github.com/shopspring/decimal"
)

const (
	successColor = "\033[32m" // Green
	errorColor   = "\033[31m" // Red
	infoColor    = "\033[34m" // Blue
	resetColor   = "\033[0m"  // Reset color
)

var errRejected = errors.New("transfer rejected")

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "accounts API base url")
	numAccounts := flag.Int("accounts", 100, "number of accounts to create")
	numTransfers := flag.Int("transfers", 10000, "total number of transfers")
	maxConcurrency := flag.Int("concurrency", 200, "maximum number of concurrent requests")
	maxAmount := flag.Float64("max-amount", 300, "maximum transfer amount")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	runID := time.Now().UnixNano()

	fmt.Printf("%sstarting a load test with %d accounts and %d transfers%s\n",
		infoColor, *numAccounts, *numTransfers, resetColor)

	accounts := createAccounts(client, *baseURL, runID, *numAccounts)
	if len(accounts) < 2 {
		fmt.Printf("%sneed at least two accounts, created %d%s\n", errorColor, len(accounts), resetColor)
		os.Exit(1)
	}
	fmt.Printf("%sCreated %d accounts%s\n", successColor, len(accounts), resetColor)

	expected := decimal.Zero
	for _, a := range accounts {
		expected = expected.Add(decimal.RequireFromString(a.Balance))
	}

	// Create semaphore for limiting concurrency
	sem := make(chan struct{}, *maxConcurrency)
	var wg sync.WaitGroup
	var okCount, rejectedCount, errorCount atomic.Int64

	startTime := time.Now()
	for i := 0; i < *numTransfers; i++ {
		wg.Add(1)
		sem <- struct{}{}

		go func(n int) {
			defer wg.Done()
			defer func() { <-sem }()

			src := accounts[rand.Intn(len(accounts))]
			dst := accounts[rand.Intn(len(accounts))]
			for dst.ID == src.ID {
				dst = accounts[rand.Intn(len(accounts))]
			}
			amount := decimal.NewFromFloat(1 + rand.Float64()*(*maxAmount-1)).Truncate(2)

			err := transfer(client, *baseURL, src.ID, dst.ID, amount)
			switch {
			case err == nil:
				okCount.Add(1)
			case errors.Is(err, errRejected):
				rejectedCount.Add(1)
			default:
				errorCount.Add(1)
				if n%100 == 0 { // Only log some failures to avoid overwhelming output
					fmt.Printf("%sTransfer failed: %v%s\n", errorColor, err, resetColor)
				}
			}
		}(i)
	}
	wg.Wait()
	duration := time.Since(startTime)

	fmt.Printf("\n%s=== load test results ===%s\n", infoColor, resetColor)
	fmt.Printf("Total transfers: %d\n", *numTransfers)
	fmt.Printf("Completed: %s%d%s\n", successColor, okCount.Load(), resetColor)
	fmt.Printf("Rejected (business rules): %d\n", rejectedCount.Load())
	fmt.Printf("Errors: %s%d%s\n", errorColor, errorCount.Load(), resetColor)
	fmt.Printf("Duration: %.2f seconds\n", duration.Seconds())
	fmt.Printf("Throughput: %.2f transfers/second\n", float64(*numTransfers)/duration.Seconds())

	fmt.Printf("\n%sChecking balance conservation...%s\n", infoColor, resetColor)
	actual, err := sumBalances(client, *baseURL, accounts)
	if err != nil {
		fmt.Printf("%sfailed to read balances: %v%s\n", errorColor, err, resetColor)
		os.Exit(1)
	}
	if !actual.Equal(expected) {
		fmt.Printf("%smoney was not conserved: expected %s, got %s%s\n",
			errorColor, expected.StringFixed(2), actual.StringFixed(2), resetColor)
		os.Exit(1)
	}
	fmt.Printf("%stotal balance conserved at %s%s\n", successColor, actual.StringFixed(2), resetColor)
}

func postJSON(client *http.Client, method, url string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	req, err := http.NewRequest(method, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return client.Do(req)
}

// createAccounts opens count accounts with documents unique to this run
func createAccounts(client *http.Client, baseURL string, runID int64, count int) []models.AccountResponse {
	accounts := make([]models.AccountResponse, 0, count)

	for i := 0; i < count; i++ {
		req := models.CreateAccountRequest{
			Name:     fmt.Sprintf("load-%d", i),
			Document: fmt.Sprintf("%d%04d", runID%1e12, i),
		}
		resp, err := postJSON(client, http.MethodPost, baseURL+"/accounts", req)
		if err != nil {
			fmt.Printf("%sFailed to create account: %v%s\n", errorColor, err, resetColor)
			continue
		}

		if resp.StatusCode != http.StatusCreated {
			body, _ := io.ReadAll(resp.Body)
			fmt.Printf("%sFailed to create account, status: %d, body: %s%s\n",
				errorColor, resp.StatusCode, string(body), resetColor)
			resp.Body.Close()
			continue
		}

		var env envelope[models.AccountResponse]
		err = json.NewDecoder(resp.Body).Decode(&env)
		resp.Body.Close()
		if err != nil {
			fmt.Printf("%sFailed to decode response: %v%s\n", errorColor, err, resetColor)
			continue
		}

		accounts = append(accounts, env.Data)
		if i%10 == 0 || i == count-1 {
			fmt.Printf("%screated account %d/%d: %s with balance %s%s\n",
				successColor, i+1, count, env.Data.ID, env.Data.Balance, resetColor)
		}
	}

	return accounts
}

func transfer(client *http.Client, baseURL, sourceID, destinationID string, amount decimal.Decimal) error {
	body := map[string]interface{}{
		"source_account_id":      sourceID,
		"destination_account_id": destinationID,
		"amount":                 amount.StringFixed(2),
	}
	resp, err := postJSON(client, http.MethodPost, baseURL+"/accounts/transfer", body)
	if err != nil {
		return fmt.Errorf("failed to send transfer: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest:
		return errRejected
	default:
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("transfer failed, status: %d, body: %s", resp.StatusCode, string(b))
	}
}

// sumBalances re-reads every account created by this run and totals the balances
func sumBalances(client *http.Client, baseURL string, accounts []models.AccountResponse) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, a := range accounts {
		resp, err := client.Get(fmt.Sprintf("%s/accounts/filter?document=%s", baseURL, a.Document))
		if err != nil {
			return total, fmt.Errorf("failed to filter accounts: %w", err)
		}

		var env envelope[[]models.AccountResponse]
		err = json.NewDecoder(resp.Body).Decode(&env)
		resp.Body.Close()
		if err != nil {
			return total, fmt.Errorf("failed to decode response: %w", err)
		}
		if len(env.Data) != 1 {
			return total, fmt.Errorf("expected one account for document %s, got %d", a.Document, len(env.Data))
		}

		balance, err := decimal.NewFromString(env.Data[0].Balance)
		if err != nil {
			return total, fmt.Errorf("bad balance %q: %w", env.Data[0].Balance, err)
		}
		total = total.Add(balance)
	}
	return total, nil
}
