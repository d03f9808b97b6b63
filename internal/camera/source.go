package camera

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Settings はキャプチャ設定
type Settings struct {
	Width  int // キャプチャ幅
	Height int // キャプチャ高さ
	FPS    int // 目標フレームレート
}

// Open はデバイスハンドルを取得してフレーム取得可能な状態にする
// チューニングは検証してから適用する。ハンドルは必ずCloseで解放すること。
func Open(ctx context.Context, desc Descriptor, settings Settings, tuning Tuning) (Source, error) {
	if err := tuning.Validate(); err != nil {
		return nil, err
	}

	switch desc.Type {
	case TypeUSBWebcam, TypeGenericV4L2:
		return openUSBCameraSource(ctx, desc, settings, tuning)
	case TypePiHQ:
		return openPiHQCameraSource(ctx, desc, settings, tuning)
	default:
		return nil, fmt.Errorf("サポートされていないカメラ種別: %s", desc.Type)
	}
}

// streamSource は種別実装が共有するストリーミング基盤
type streamSource struct {
	desc     Descriptor
	settings Settings
	tuning   Tuning

	capturer  *V4L2Capturer
	frameChan chan []byte
	errorChan chan error
	cancel    context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// start はテストキャプチャの後ストリーミングを開始する
func (s *streamSource) start(ctx context.Context) error {
	if err := s.capturer.TestCapture(ctx); err != nil {
		return fmt.Errorf("カメラのテストキャプチャに失敗: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.frameChan = make(chan []byte, 10)
	s.errorChan = make(chan error, 5)

	go s.capturer.StartStream(streamCtx, s.frameChan, s.errorChan)
	return nil
}

// Descriptor は選択されたデバイス情報を返す
func (s *streamSource) Descriptor() Descriptor {
	return s.desc
}

// Tuning は現在のチューニングのスナップショットを返す
func (s *streamSource) Tuning() Tuning {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tuning
}

// ReadFrame はストリームから1フレームを取得する
// コンテキストのタイムアウトを超えてブロックしない
func (s *streamSource) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case data, ok := <-s.frameChan:
		if !ok {
			return Frame{}, ErrDisconnected
		}
		return Frame{
			Timestamp: time.Now(),
			Width:     s.settings.Width,
			Height:    s.settings.Height,
			Format:    "MJPEG",
			Data:      data,
		}, nil
	case err, ok := <-s.errorChan:
		if !ok {
			return Frame{}, ErrDisconnected
		}
		return Frame{}, fmt.Errorf("フレーム取得エラー: %w", err)
	case <-ctx.Done():
		return Frame{}, fmt.Errorf("フレーム読み取りがタイムアウト: %w", ctx.Err())
	}
}

// ApplyTuning はチューニング設定を検証して適用する
func (s *streamSource) ApplyTuning(ctx context.Context, tuning Tuning) error {
	if err := tuning.Validate(); err != nil {
		return err
	}

	if err := applyControls(ctx, s.desc.Device, tuning.controls()); err != nil {
		return err
	}

	s.mu.Lock()
	s.tuning = tuning
	s.mu.Unlock()
	return nil
}

// Close はストリームを停止しデバイスハンドルを解放する。複数回呼んでも安全。
func (s *streamSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// USBCameraSource はUVC準拠USBウェブカメラのSource実装
type USBCameraSource struct {
	streamSource
}

// openUSBCameraSource はUSBカメラを開いて最適化とチューニングを適用する
func openUSBCameraSource(ctx context.Context, desc Descriptor, settings Settings, tuning Tuning) (*USBCameraSource, error) {
	src := &USBCameraSource{
		streamSource: streamSource{
			desc:     desc,
			settings: settings,
			tuning:   tuning,
			capturer: NewV4L2Capturer(desc.Device, settings.Width, settings.Height, settings.FPS),
		},
	}

	// USBウェブカメラ固有の最適化
	if desc.Autofocus {
		if err := applyControls(ctx, desc.Device, map[string]int{"focus_automatic_continuous": 1}); err != nil {
			// 個体によってはコントロール名が異なるため警告に留める
			log.Printf("オートフォーカスの有効化に失敗: %v", err)
		}
	}

	if err := applyControls(ctx, desc.Device, tuning.controls()); err != nil {
		return nil, fmt.Errorf("チューニングの適用に失敗: %w", err)
	}

	if err := src.start(ctx); err != nil {
		return nil, err
	}

	return src, nil
}

// PiHQCameraSource はRaspberry Pi HQカメラのSource実装
type PiHQCameraSource struct {
	streamSource
}

// openPiHQCameraSource はPi HQカメラを開いてチューニングを適用する
// libcameraのノードはウォームアップに時間がかかるため初回読み取りを待つ
func openPiHQCameraSource(ctx context.Context, desc Descriptor, settings Settings, tuning Tuning) (*PiHQCameraSource, error) {
	src := &PiHQCameraSource{
		streamSource: streamSource{
			desc:     desc,
			settings: settings,
			tuning:   tuning,
			capturer: NewV4L2Capturer(desc.Device, settings.Width, settings.Height, settings.FPS),
		},
	}

	if err := applyControls(ctx, desc.Device, tuning.controls()); err != nil {
		return nil, fmt.Errorf("チューニングの適用に失敗: %w", err)
	}

	if err := src.start(ctx); err != nil {
		return nil, err
	}

	// ウォームアップ: 露出・AWBが安定するまで少し待つ
	warmupCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	for i := 0; i < 5; i++ {
		if _, err := src.ReadFrame(warmupCtx); err != nil {
			break
		}
	}

	return src, nil
}
