package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"torimi/internal/config"
	"torimi/internal/event"
)

func testServer(notifications <-chan event.Notification) *Server {
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 18080},
	}
	status := func() StatusReport {
		return StatusReport{
			Status:   "running",
			Pipeline: map[string]string{"phase": "idle"},
		}
	}
	return New(cfg, status, notifications)
}

func TestHandleHealth(t *testing.T) {
	s := testServer(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy, got %v", body["status"])
	}
}

func TestHandleStatus(t *testing.T) {
	s := testServer(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	s.engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body StatusReport
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if body.Status != "running" {
		t.Errorf("Expected running, got %s", body.Status)
	}
	if body.Timestamp.IsZero() {
		t.Error("タイムスタンプが設定されていない")
	}
}

// TestHandleEvents_DeliversNotification は通知がSSEで購読者に届くことを検証する
func TestHandleEvents_DeliversNotification(t *testing.T) {
	notifications := make(chan event.Notification, 1)
	s := testServer(notifications)

	// fanoutを起動する（Runの代わりにテストでは直接）
	s.wg.Add(1)
	go s.fanout()
	defer func() {
		close(s.stopCh)
		s.wg.Wait()
	}()

	ts := httptest.NewServer(s.engine)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	if err != nil {
		t.Fatalf("リクエストの作成に失敗: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("SSE接続に失敗: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
		t.Fatalf("Content-Typeがtext/event-streamではない: %s", got)
	}

	// 購読が確立するのを待ってから通知を流す
	time.Sleep(100 * time.Millisecond)
	notifications <- event.Notification{
		Path: "/media/2026-08-29/bird_20260829_063000_1.jpg",
		Kind: event.KindPhoto,
		Time: time.Now(),
	}

	scanner := bufio.NewScanner(resp.Body)
	var eventName, data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		}
		if strings.HasPrefix(line, "data:") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			break
		}
	}

	if eventName != "media" {
		t.Errorf("Expected media event, got %q", eventName)
	}
	if !strings.Contains(data, "bird_20260829_063000_1.jpg") {
		t.Errorf("通知のパスが含まれていない: %q", data)
	}
}
