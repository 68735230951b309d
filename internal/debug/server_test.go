package debug

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	logx "prayerbell/pkg/logx"
)

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

func TestServerStatusAndAuth(t *testing.T) {
	s := New(logx.Nop(), func() any { return map[string]int{"pending": 3} })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Apply(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", Token: "sekrit"})
	t.Cleanup(func() { s.Stop(context.Background()) })

	addr := s.Addr()
	if addr == "" {
		t.Fatal("server not listening")
	}

	resp := get(t, "http://"+addr+"/status", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", resp.StatusCode)
	}

	resp = get(t, "http://"+addr+"/status", "sekrit")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["pending"] != 3 {
		t.Fatalf("body = %v", body)
	}

	pp := get(t, "http://"+addr+"/debug/pprof/", "sekrit")
	pp.Body.Close()
	if pp.StatusCode != http.StatusNotFound {
		t.Fatalf("pprof disabled: status %d", pp.StatusCode)
	}
}

func TestServerApplyDisable(t *testing.T) {
	s := New(logx.Nop(), nil)
	ctx := context.Background()
	s.Apply(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", Pprof: true})
	addr := s.Addr()
	if addr == "" {
		t.Fatal("server not listening")
	}
	resp := get(t, "http://"+addr+"/debug/pprof/", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pprof: status %d", resp.StatusCode)
	}

	s.Apply(ctx, Config{Enabled: false})
	if s.Addr() != "" {
		t.Fatal("server still listening after disable")
	}
}

func TestServerRefusesPublicWithoutToken(t *testing.T) {
	s := New(logx.Nop(), nil)
	s.Apply(context.Background(), Config{Enabled: true, Addr: "0.0.0.0:0"})
	if s.Addr() != "" {
		s.Stop(context.Background())
		t.Fatal("public bind without token must be refused")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"127.0.0.1:6061": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":6061":          false,
		"0.0.0.0:6061":   false,
		"10.0.0.5:80":    false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := IsLoopbackAddr(addr); got != want {
			t.Fatalf("IsLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
