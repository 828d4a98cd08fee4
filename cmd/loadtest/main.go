package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/spf13/pflag"
)

// Result is the HTTP outcome of one call, kept for the summary.
type Result struct {
	Status int
	Body   string
	Err    error
}

type lineItem struct {
	LineItemID uint `json:"lineItemId"`
	MenuItemID uint `json:"menuItemId"`
	Quantity   int  `json:"quantity"`
	Prepared   int  `json:"prepared"`
}

type requestView struct {
	RequestID          uint       `json:"requestId"`
	MenuItems          []lineItem `json:"menuItems"`
	PreparedItemsCount int        `json:"preparedItemsCount"`
	TotalItemsCount    int        `json:"totalItemsCount"`
	Status             string     `json:"status"`
}

func main() {
	baseURL := pflag.String("base", "http://localhost:8080", "server base url")
	customerID := pflag.Uint("customer", 1, "customer id used for created requests")
	menuItems := pflag.UintSlice("menu-items", []uint{1, 2}, "menu item ids of every request")
	quantity := pflag.Int("quantity", 5, "quantity of each line item")
	nRequests := pflag.Int("requests", 20, "requests to create")
	concurrency := pflag.Int("c", 50, "max concurrent progress updates")
	pflag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	fmt.Printf("creating %d requests with items %v x%d\n", *nRequests, *menuItems, *quantity)
	created := make([]requestView, 0, *nRequests)
	for i := 0; i < *nRequests; i++ {
		v, err := createRequest(client, *baseURL, *customerID, *menuItems, *quantity)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create failed: %v\n", err)
			os.Exit(1)
		}
		created = append(created, v)
	}

	// Every line item receives each intermediate quantity in random order, all racing
	// each other, followed by a final update to the full quantity.
	fmt.Printf("start progress race: concurrency=%d\n", *concurrency)
	results := runUpdates(client, *baseURL, created, *concurrency)
	printSummary("progress", results)

	final := runFinal(client, *baseURL, created, *concurrency)
	printSummary("complete", final)

	failed := 0
	for _, v := range created {
		got, err := getRequest(client, *baseURL, v.RequestID)
		if err != nil {
			fmt.Printf("request %d: %v\n", v.RequestID, err)
			failed++
			continue
		}
		if got.Status != "READY_TO_COLLECT" || got.PreparedItemsCount != got.TotalItemsCount {
			fmt.Printf("request %d: status=%s prepared=%d/%d\n",
				v.RequestID, got.Status, got.PreparedItemsCount, got.TotalItemsCount)
			failed++
		}
	}
	fmt.Printf("verified %d requests, %d inconsistent\n", len(created), failed)
	if failed > 0 {
		os.Exit(1)
	}
}

type update struct {
	requestID uint
	item      lineItem
	prepared  int
}

func runUpdates(client *http.Client, baseURL string, reqs []requestView, concurrency int) []Result {
	var ups []update
	for _, r := range reqs {
		for _, it := range r.MenuItems {
			for q := 0; q <= it.Quantity; q++ {
				ups = append(ups, update{requestID: r.RequestID, item: it, prepared: q})
			}
		}
	}
	rand.Shuffle(len(ups), func(i, j int) { ups[i], ups[j] = ups[j], ups[i] })
	return fire(client, baseURL, ups, concurrency)
}

func runFinal(client *http.Client, baseURL string, reqs []requestView, concurrency int) []Result {
	var ups []update
	for _, r := range reqs {
		for _, it := range r.MenuItems {
			ups = append(ups, update{requestID: r.RequestID, item: it, prepared: it.Quantity})
		}
	}
	return fire(client, baseURL, ups, concurrency)
}

func fire(client *http.Client, baseURL string, ups []update, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, len(ups))

	for i, u := range ups {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, u update) {
			defer wg.Done()
			defer func() { <-sem }()

			url := fmt.Sprintf("%s/api/requests/%d/items/%d", baseURL, u.requestID, u.item.MenuItemID)
			body := map[string]any{"preparedQuantity": u.prepared, "lineItemId": u.item.LineItemID}
			results[idx] = doJSON(client, http.MethodPut, url, body)
		}(i, u)
	}

	wg.Wait()
	return results
}

func createRequest(client *http.Client, baseURL string, customerID uint, menuItems []uint, quantity int) (requestView, error) {
	items := make([]map[string]any, 0, len(menuItems))
	for _, id := range menuItems {
		items = append(items, map[string]any{"menuItemId": id, "quantity": quantity})
	}
	res := doJSON(client, http.MethodPost, baseURL+"/api/requests", map[string]any{
		"customerId": customerID,
		"menuItems":  items,
	})
	if res.Err != nil {
		return requestView{}, res.Err
	}
	if res.Status != http.StatusCreated {
		return requestView{}, fmt.Errorf("status=%d body=%s", res.Status, res.Body)
	}
	return decodeView(res.Body)
}

func getRequest(client *http.Client, baseURL string, id uint) (requestView, error) {
	res := doJSON(client, http.MethodGet, fmt.Sprintf("%s/api/requests/%d", baseURL, id), nil)
	if res.Err != nil {
		return requestView{}, res.Err
	}
	if res.Status != http.StatusOK {
		return requestView{}, fmt.Errorf("status=%d body=%s", res.Status, res.Body)
	}
	return decodeView(res.Body)
}

func decodeView(body string) (requestView, error) {
	var out struct {
		Code int         `json:"code"`
		Data requestView `json:"data"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return requestView{}, err
	}
	return out.Data, nil
}

func doJSON(client *http.Client, method, url string, body any) Result {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		return Result{Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(b)}
}

// printSummary prints the distribution of status codes.
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{200, 201, 400, 404, 429, 500, 503} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}
