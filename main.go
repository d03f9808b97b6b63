package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"torimi/internal/config"
	"torimi/internal/pipeline"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// シグナルで停止するコンテキストを作成
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// パイプラインを組み立てる
	// カメラが見つからない場合はデバイス一覧を表示して終了する
	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		log.Printf("起動に失敗しました: %v", err)
		os.Exit(1)
	}

	// パイプラインを起動
	if err := p.Run(ctx); err != nil {
		// 切断などの致命的エラー。再起動はスーパーバイザーに任せる。
		os.Exit(1)
	}
}
