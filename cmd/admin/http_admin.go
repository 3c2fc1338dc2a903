package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func adminURL(base, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + path
}

func printResponse(resp *http.Response) {
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(adminURL(*baseURL, "/admin/v1/state"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	printResponse(resp)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	req, _ := http.NewRequest(http.MethodPost, adminURL(*baseURL, "/admin/v1/snapshot"), nil)
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	printResponse(resp)
}

func ticksCmd(args []string) {
	fs := flag.NewFlagSet("ticks", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(adminURL(*baseURL, fmt.Sprintf("/admin/v1/ticks?limit=%d", *limit)))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	printResponse(resp)
}

func snapsCmd(args []string) {
	fs := flag.NewFlagSet("snaps", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(adminURL(*baseURL, fmt.Sprintf("/admin/v1/snapshots?limit=%d", *limit)))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	printResponse(resp)
}
