package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// SSEのキープアライブ間隔。プロキシの無通信切断を避ける。
const keepAliveInterval = 30 * time.Second

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// handleStatus はシステム状態取得エンドポイント
func (s *Server) handleStatus(c *gin.Context) {
	report := s.status()
	report.Timestamp = time.Now()
	c.JSON(http.StatusOK, report)
}

// handleEvents は新着メディア通知のSSEストリーム
// 接続中のクライアントごとに購読チャネルを持ち、切断で解除する
func (s *Server) handleEvents(c *gin.Context) {
	ch := s.subscribe()
	defer s.unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	clientGone := c.Request.Context().Done()
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case <-s.stopCh:
			return false
		case n := <-ch:
			c.SSEvent("media", n)
			return true
		case t := <-keepAlive.C:
			c.SSEvent("ping", t.Format(time.RFC3339))
			return true
		}
	})
}
