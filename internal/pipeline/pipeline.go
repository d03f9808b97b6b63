// Package pipeline は検出パイプライン全体の組み立てとライフサイクルを管理する
//
// 責務:
//   - カメラの列挙・選択・オープン（起動時の失敗は呼び出し元に返す）
//   - 取得ループ・メディアライタ・通知・HTTPサーバーの起動と停止
//   - 稼働状況の集約（/api/status用）
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"torimi/internal/camera"
	"torimi/internal/capture"
	"torimi/internal/config"
	"torimi/internal/event"
	"torimi/internal/media"
	"torimi/internal/motion"
	"torimi/internal/server"
)

// Pipeline は検出パイプライン全体
type Pipeline struct {
	cfg     *config.Config
	desc    camera.Descriptor
	warning *camera.MismatchWarning

	runner  *capture.Runner
	writer  *media.Writer
	emitter *event.Emitter
	srv     *server.Server
}

// New はパイプラインを組み立てる
// カメラの選択に失敗した場合は接続済みデバイスの一覧を含むエラーを返す。
// 呼び出し元はそのまま表示して非ゼロで終了すること。
func New(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	if cfg.Capture.Mode == config.ModeVideo {
		if err := media.ValidateFFmpeg(); err != nil {
			return nil, err
		}
	}

	discovery := camera.NewLinuxDiscovery()
	descs := discovery.Enumerate(ctx)

	desc, warning, err := camera.Select(descs, camera.Type(cfg.Camera.Type))
	if err != nil {
		return nil, err
	}

	tuning := camera.FromConfig(
		cfg.Camera.WhiteBalanceMode,
		cfg.Camera.Exposure,
		cfg.Camera.Gain,
		cfg.Camera.Brightness,
		cfg.Camera.Contrast,
		cfg.Camera.Saturation,
		cfg.Camera.Sharpness,
	)

	settings := camera.Settings{
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
		FPS:    cfg.Camera.FPS,
	}

	source, err := camera.Open(ctx, desc, settings, tuning)
	if err != nil {
		return nil, fmt.Errorf("カメラのオープンに失敗: %w", err)
	}

	detector, err := motion.New(cfg.Detect.Strategy, cfg.Detect.Sensitivity, cfg.Detect.DownscaleWidth)
	if err != nil {
		closeSource(source)
		return nil, err
	}

	writer := media.NewWriter(cfg.Storage.OutputDir, cfg.Camera.FPS)

	emitter, err := event.NewEmitter(cfg.Storage.OutputDir)
	if err != nil {
		closeSource(source)
		return nil, err
	}

	p := &Pipeline{
		cfg:     cfg,
		desc:    desc,
		warning: warning,
		writer:  writer,
		emitter: emitter,
	}
	p.runner = capture.NewRunner(source, detector, cfg, writer)
	p.srv = server.New(cfg, p.statusReport, emitter.Notifications())

	return p, nil
}

// Run はパイプラインを起動し、停止要求か致命的エラーまでブロックする
// カメラの切断で戻った場合はエラーを返す（再起動は外部スーパーバイザーの責務）
func (p *Pipeline) Run(ctx context.Context) error {
	if p.warning != nil {
		log.Printf("%s", p.warning.String())
	}
	log.Printf("カメラを使用します: %s (%s, %dx%d @%dfps)",
		p.desc.Name, p.desc.Device, p.cfg.Camera.Width, p.cfg.Camera.Height, p.cfg.Camera.FPS)

	p.writer.Start()
	p.emitter.Start()
	p.runner.Start()

	srvCtx, cancel := context.WithCancel(context.Background())
	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- p.srv.Run(srvCtx)
	}()

	var runErr error
	serverDone := false

	select {
	case <-ctx.Done():
		log.Println("停止要求を受信しました")
	case err := <-p.runner.Fatal():
		log.Printf("取得ループが停止しました: %v", err)
		runErr = err
	case err := <-srvErrCh:
		serverDone = true
		if err != nil {
			runErr = err
		}
	}

	p.runner.Stop()
	cancel()
	if !serverDone {
		if err := <-srvErrCh; err != nil && runErr == nil {
			runErr = err
		}
	}
	// ライタを先に止めてキューを書き切ってから通知を止める
	// 逆にするとドレイン中に書かれた成果物が通知されない
	p.writer.Stop()
	p.emitter.Stop()

	return runErr
}

// closeSource はカメラを解放する。組み立て途中の失敗経路用。
func closeSource(source camera.Source) {
	if err := source.Close(); err != nil {
		log.Printf("カメラのクローズに失敗: %v", err)
	}
}

// statusReport は /api/status 用の稼働状況を集約する
func (p *Pipeline) statusReport() server.StatusReport {
	return server.StatusReport{
		Status:    "running",
		Camera:    p.desc,
		Pipeline:  p.runner.Status(),
		Media:     p.writer.Counters(),
		Timestamp: time.Now(),
	}
}
