// Package greetclient drives a running greeter from tests.
package greetclient

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

// Result is what one request observed.
type Result struct {
	StatusCode int
	Body       string
	Err        error
}

// WaitForOK polls url until it returns HTTP 200 or timeout elapses.
func WaitForOK(url string, timeout time.Duration) error {
	interval := 100 * time.Millisecond
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			_, _ = io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		log.Printf("%s not ready. Retrying in %v", url, interval)
		time.Sleep(interval)
	}
	return fmt.Errorf("%s not ready after %v", url, timeout)
}

// Do sends a single request and reads the whole response.
func Do(client *http.Client, req *http.Request) Result {
	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return Result{StatusCode: resp.StatusCode, Body: string(body), Err: err}
}

// Concurrent fires n GET requests at url at once, each on its own connection.
// Results are indexed by request number.
func Concurrent(url string, n int) []Result {
	results := make([]Result, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client := &http.Client{
				Transport: &http.Transport{DisableKeepAlives: true},
				Timeout:   10 * time.Second,
			}
			req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s?n=%d", url, i), nil)
			if err != nil {
				results[i] = Result{Err: err}
				return
			}
			<-start
			results[i] = Do(client, req)
		}(i)
	}
	close(start)
	wg.Wait()
	return results
}
