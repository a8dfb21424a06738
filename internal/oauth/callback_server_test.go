package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestCallbackServerDeliversResult(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := NewCallbackServer(0)
	redirectURI, err := server.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer server.Stop()

	if want := fmt.Sprintf("http://localhost:%d/callback", server.Port()); redirectURI != want {
		t.Errorf("redirect URI = %q, want %q", redirectURI, want)
	}

	resp, err := http.Get(redirectURI + "?code=the-code&state=the-state")
	if err != nil {
		t.Fatalf("callback request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("callback status = %d, want 200", resp.StatusCode)
	}
	if len(body) == 0 {
		t.Error("callback response has no body")
	}

	result, err := server.WaitForCallback(ctx)
	if err != nil {
		t.Fatalf("WaitForCallback failed: %v", err)
	}
	if result.Code != "the-code" || result.State != "the-state" {
		t.Errorf("result = %+v, want code/state echoed", result)
	}
	if result.IsError() {
		t.Error("result reported an error")
	}
}

func TestCallbackServerHandlesDenial(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := NewCallbackServer(0)
	redirectURI, err := server.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer server.Stop()

	resp, err := http.Get(redirectURI + "?error=access_denied&error_description=user+said+no")
	if err != nil {
		t.Fatalf("callback request failed: %v", err)
	}
	resp.Body.Close()

	result, err := server.WaitForCallback(ctx)
	if err != nil {
		t.Fatalf("WaitForCallback failed: %v", err)
	}
	if !result.IsError() {
		t.Fatal("result did not report an error")
	}
	if result.Error != "access_denied" {
		t.Errorf("error = %q, want access_denied", result.Error)
	}
	if result.ErrorDescription != "user said no" {
		t.Errorf("description = %q, want %q", result.ErrorDescription, "user said no")
	}
}

func TestCallbackServerAcceptsSingleCallback(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server := NewCallbackServer(0)
	redirectURI, err := server.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer server.Stop()

	first, err := http.Get(redirectURI + "?code=first&state=s")
	if err != nil {
		t.Fatalf("first callback failed: %v", err)
	}
	first.Body.Close()

	second, err := http.Get(redirectURI + "?code=second&state=s")
	if err == nil {
		defer second.Body.Close()
		if second.StatusCode != http.StatusBadRequest {
			t.Errorf("second callback status = %d, want 400", second.StatusCode)
		}
	}

	result, err := server.WaitForCallback(ctx)
	if err != nil {
		t.Fatalf("WaitForCallback failed: %v", err)
	}
	if result.Code != "first" {
		t.Errorf("result code = %q, want first", result.Code)
	}
}
