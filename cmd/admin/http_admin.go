package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	os.Exit(adminCall(os.Stdout, http.MethodGet, *baseURL, "/admin/v1/state", nil, 5*time.Second))
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	os.Exit(adminCall(os.Stdout, http.MethodPost, *baseURL, "/admin/v1/snapshot", nil, 10*time.Second))
}

func opsCmd(args []string) {
	fs := flag.NewFlagSet("ops", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	entity := fs.Int("entity", 0, "entity number (required)")
	_ = fs.Parse(args)
	if *entity <= 0 {
		fmt.Fprintln(os.Stderr, "missing -entity")
		os.Exit(2)
	}
	q := url.Values{"entity": {strconv.Itoa(*entity)}}
	os.Exit(adminCall(os.Stdout, http.MethodGet, *baseURL, "/admin/v1/ops", q, 5*time.Second))
}

// adminCall prints the response body and returns the process exit code.
func adminCall(w io.Writer, method, baseURL, path string, q url.Values, timeout time.Duration) int {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		return 2
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		return 1
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(w, strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return 1
	}
	return 0
}
