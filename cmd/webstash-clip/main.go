package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// webstash-clip is the command-line capture client: point it at a URL
// and it queues a save intent on the local daemon.
func main() {
	baseURL := flag.String("base-url", envOrDefault("WEBSTASH_BASE_URL", "http://127.0.0.1:8090"), "webstash daemon base URL")
	token := flag.String("token", strings.TrimSpace(os.Getenv("WEBSTASH_TOKEN")), "bearer token")
	title := flag.String("title", "", "pre-extracted page title (skips the extractor)")
	summary := flag.String("summary", "", "pre-extracted summary, markdown allowed")
	cancel := flag.Bool("cancel", false, "withdraw a pending intent instead of queueing one")
	list := flag.Bool("list", false, "list pending intents and exit")
	timeout := flag.Duration("timeout", durationEnv("WEBSTASH_CLIP_TIMEOUT", 15*time.Second), "request timeout")
	flag.Parse()

	client := &http.Client{Timeout: *timeout}

	if *list {
		body, err := doRequest(client, http.MethodGet, *baseURL+"/v1/outbox", *token, nil)
		if err != nil {
			log.Fatalf("list failed: %v", err)
		}
		fmt.Println(string(body))
		return
	}

	pageURL := strings.TrimSpace(flag.Arg(0))
	if pageURL == "" {
		log.Fatalf("usage: webstash-clip [flags] <url>")
	}

	if *cancel {
		body, err := doRequest(client, http.MethodPost, *baseURL+"/v1/outbox/cancel", *token, map[string]string{"url": pageURL})
		if err != nil {
			log.Fatalf("cancel failed: %v", err)
		}
		fmt.Println(string(body))
		return
	}

	var path string
	var payload map[string]string
	if *title != "" || *summary != "" {
		path = "/v1/outbox/intents"
		payload = map[string]string{"title": *title, "url": pageURL, "summaryText": *summary}
	} else {
		path = "/v1/capture"
		payload = map[string]string{"url": pageURL}
	}
	body, err := doRequest(client, http.MethodPost, *baseURL+path, *token, payload)
	if err != nil {
		log.Fatalf("capture failed: %v", err)
	}
	fmt.Println(string(body))
}

func doRequest(client *http.Client, method, url, token string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
