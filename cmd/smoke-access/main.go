package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"talentgate.io/internal/auth"
)

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

func main() {
	base := os.Getenv("TALENTGATE_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	adminToken, err := auth.GenerateToken("smoke-admin", []string{"admin"}, 5*time.Minute)
	if err != nil {
		log.Fatalf("mint admin token (is TALENTGATE_AUTH_SECRET set?): %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}

	// Provision a conversation through the admin surface.
	body, _ := json.Marshal(map[string]string{
		"candidate_id": "smoke-candidate",
		"admin_id":     "smoke-admin",
		"opportunity":  "Backend Engineer",
	})
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/admin/conversations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("create conversation: %v", err)
	}
	var conv struct {
		ID          string `json:"id"`
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		log.Fatalf("decode conversation: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || conv.AccessToken == "" {
		log.Fatalf("create conversation: status=%d token=%q", resp.StatusCode, conv.AccessToken)
	}

	// A browser-looking validation must succeed.
	result, status := validate(client, base, conv.AccessToken)
	if status != http.StatusOK || !result.Success {
		log.Fatalf("expected success, got status=%d error=%s", status, result.Code)
	}
	if result.Conversation == nil || result.Conversation.AccessCount != 1 {
		log.Fatalf("expected access_count=1, got %+v", result.Conversation)
	}

	// An unknown token must be rejected without leaking anything.
	result, status = validate(client, base, "definitely-not-a-token")
	if status != http.StatusNotFound || result.Code != "invalid_token" {
		log.Fatalf("expected invalid_token/404, got status=%d error=%s", status, result.Code)
	}

	fmt.Printf("✅ access smoke test passed: conversation=%s\n", conv.ID)
}

type validationResult struct {
	Success      bool   `json:"success"`
	Code         string `json:"error"`
	Conversation *struct {
		AccessCount int64 `json:"access_count"`
	} `json:"conversation"`
}

func validate(client *http.Client, base, token string) (validationResult, int) {
	body, _ := json.Marshal(map[string]string{"token": token})
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/access/validate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", browserUA)
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("validate: %v", err)
	}
	defer resp.Body.Close()
	var result validationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatalf("decode validation: %v", err)
	}
	return result, resp.StatusCode
}
