package camera

import (
	"context"
	"time"
)

// Type はカメラの種別を表す
type Type string

const (
	// TypeUSBWebcam はUVC準拠のUSBウェブカメラ
	TypeUSBWebcam Type = "usb_webcam"
	// TypePiHQ はlibcamera経由のRaspberry Pi HQカメラ
	TypePiHQ Type = "pi_hq"
	// TypeGenericV4L2 は種別を特定できなかったV4L2デバイス
	TypeGenericV4L2 Type = "generic_v4l2"
)

// Descriptor は検出されたカメラデバイスの情報
// 起動時の列挙で作成され、選択後は変更されない
type Descriptor struct {
	Type       Type   // カメラ種別
	Device     string // デバイスパス（例: /dev/video0）
	Name       string // 人間が読める名前（v4l2-ctlのCard type）
	MaxWidth   int    // 最大解像度（幅）
	MaxHeight  int    // 最大解像度（高さ）
	Autofocus  bool   // オートフォーカス対応
	Available  bool   // 読み取り可能か
}

// Frame は1枚のキャプチャフレーム
// DataはJPEGエンコード済みのピクセルバッファ
type Frame struct {
	Timestamp time.Time // キャプチャ時刻
	Width     int       // 解像度（幅）
	Height    int       // 解像度（高さ）
	Format    string    // カラーフォーマット（"MJPEG"）
	Data      []byte    // JPEGデータ
}

// Source は種別ごとのカメラ実装を統一するインターフェース
// ハンドルはOpenで取得し、全ての終了経路でCloseする
type Source interface {
	// Descriptor は選択されたデバイス情報を返す
	Descriptor() Descriptor

	// ReadFrame は1フレームを取得する
	// コンテキストのタイムアウト・キャンセルに従う
	ReadFrame(ctx context.Context) (Frame, error)

	// ApplyTuning はチューニング設定を適用する
	// 範囲外の値は *InvalidTuningError で失敗する
	ApplyTuning(ctx context.Context, tuning Tuning) error

	// Tuning は現在適用されているチューニングのスナップショットを返す
	Tuning() Tuning

	// Close はデバイスハンドルを解放する。複数回呼んでも安全。
	Close() error
}
