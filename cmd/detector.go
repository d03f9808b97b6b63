// Package main はtorimi検出コマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"torimi/internal/camera"
	"torimi/internal/config"
	"torimi/internal/pipeline"
)

func main() {
	// コマンドラインオプション
	var (
		listCameras = flag.Bool("list-cameras", false, "接続されているカメラの一覧を表示して終了")
		mode        = flag.String("mode", "", "キャプチャモード (photo | video)")
		output      = flag.String("output", "", "メディア出力先ディレクトリ (デフォルト: media)")
		port        = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		help        = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("torimi - 野鳥検出カメラ")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  detector [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// カメラ一覧の表示
	if *listCameras {
		discovery := camera.NewLinuxDiscovery()
		descs := discovery.Enumerate(context.Background())
		fmt.Print(camera.FormatDescriptors(descs))
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *mode != "" {
		cfg.Capture.Mode = config.CaptureMode(*mode)
		if err := cfg.Validate(); err != nil {
			log.Fatalf("設定の検証に失敗しました: %v", err)
		}
	}
	if *output != "" {
		cfg.Storage.OutputDir = *output
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	// シグナルで停止するコンテキストを作成
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// パイプラインを組み立てて起動
	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		log.Printf("起動に失敗しました: %v", err)
		os.Exit(1)
	}

	log.Printf("torimi を起動します: %s", cfg.ServerAddress())
	if err := p.Run(ctx); err != nil {
		os.Exit(1)
	}
}
