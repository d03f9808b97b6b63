package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"torimi/internal/config"
	"torimi/internal/event"
)

// StatusFunc は稼働状況のスナップショットを返す
type StatusFunc func() StatusReport

// StatusReport は /api/status のレスポンス
type StatusReport struct {
	Status    string      `json:"status"`
	Camera    interface{} `json:"camera"`
	Pipeline  interface{} `json:"pipeline"`
	Media     interface{} `json:"media"`
	Timestamp time.Time   `json:"timestamp"`
}

// Server は通知・ステータスHTTPサーバー
type Server struct {
	cfg        *config.Config
	engine     *gin.Engine
	httpServer *http.Server
	status     StatusFunc

	notifications <-chan event.Notification

	mu          sync.Mutex
	subscribers map[chan event.Notification]struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New は新しいServerを作成する
// notificationsから受けた通知を購読中の全クライアントへ配る
func New(cfg *config.Config, status StatusFunc, notifications <-chan event.Notification) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:           cfg,
		engine:        engine,
		status:        status,
		notifications: notifications,
		subscribers:   make(map[chan event.Notification]struct{}),
		stopCh:        make(chan struct{}),
		httpServer: &http.Server{
			Addr:        cfg.ServerAddress(),
			Handler:     engine,
			ReadTimeout: 10 * time.Second,
			// SSEは接続を張りっぱなしにするためWriteTimeoutは設定しない
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/api/status", s.handleStatus)
	s.engine.GET("/events", s.handleEvents)
}

// Run はサーバーを起動し、コンテキストの終了までブロックする
func (s *Server) Run(ctx context.Context) error {
	s.wg.Add(1)
	go s.fanout()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTPサーバーを起動しています: %s", s.cfg.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		close(s.stopCh)
		s.wg.Wait()
		return err
	}

	return s.shutdown()
}

// shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) shutdown() error {
	log.Println("サーバーをシャットダウンしています...")
	close(s.stopCh)
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Println("サーバーが正常にシャットダウンされました")
	return nil
}

// fanout は通知を購読中の全クライアントへ配る
func (s *Server) fanout() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case n, ok := <-s.notifications:
			if !ok {
				return
			}
			s.broadcast(n)
		}
	}
}

// broadcast は全購読チャネルへ通知を配る
// 詰まっている購読者には最も古い通知を捨てて最新を入れる
func (s *Server) broadcast(n event.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subscribers {
		select {
		case ch <- n:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- n:
			default:
			}
		}
	}
}

// subscribe は新しい購読チャネルを登録する
func (s *Server) subscribe() chan event.Notification {
	ch := make(chan event.Notification, 16)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// unsubscribe は購読チャネルを解除する
func (s *Server) unsubscribe(ch chan event.Notification) {
	s.mu.Lock()
	delete(s.subscribers, ch)
	s.mu.Unlock()
}
