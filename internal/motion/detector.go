package motion

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"time"

	"torimi/internal/camera"
)

// Region は動きが検出された矩形領域（キャプチャ解像度の座標系）
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area は領域の面積を返す
func (r Region) Area() int {
	return r.Width * r.Height
}

// AspectRatio は幅/高さの比を返す。高さ0の場合は0。
func (r Region) AspectRatio() float64 {
	if r.Height == 0 {
		return 0
	}
	return float64(r.Width) / float64(r.Height)
}

// Event は1回の検出サイクルで得られた動き情報
// ループ1周の中で生成・消費される使い捨ての値
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`   // 正規化された動き強度 (0.0-1.0)
	Regions   []Region  `json:"regions"` // 閾値を超えた領域（最大のものが先頭）
}

// Detector は動き検出アルゴリズムを差し替え可能にするインターフェース
type Detector interface {
	// Detect はフレームを解析し、感度を超える動きがあればEventを返す
	// 2番目の戻り値は発火したかどうか。参照は毎フレーム更新される。
	Detect(frame camera.Frame) (Event, bool, error)

	// Name はアルゴリズム名を返す
	Name() string
}

// New は設定された戦略名からDetectorを作成する
func New(strategy string, sensitivity float64, downscaleWidth int) (Detector, error) {
	switch strategy {
	case "frame_diff":
		return NewFrameDiffDetector(FrameDiffConfig{
			Sensitivity:    sensitivity,
			DownscaleWidth: downscaleWidth,
		}), nil
	case "background":
		return NewBackgroundDetector(BackgroundConfig{
			Sensitivity:    sensitivity,
			DownscaleWidth: downscaleWidth,
		}), nil
	default:
		return nil, fmt.Errorf("サポートされていない検出戦略: %s", strategy)
	}
}

// grayPlane はJPEGフレームをデコードして縮小グレースケール面に変換する
// 最近傍サンプリングで十分（差分を取るだけなので画質は不要）
func grayPlane(frame camera.Frame, targetWidth int) (*image.Gray, error) {
	img, err := jpeg.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return nil, fmt.Errorf("JPEG画像のデコードに失敗: %w", err)
	}

	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, fmt.Errorf("空のフレームです")
	}

	if targetWidth <= 0 || targetWidth > srcW {
		targetWidth = srcW
	}
	targetHeight := srcH * targetWidth / srcW
	if targetHeight == 0 {
		targetHeight = 1
	}

	gray := image.NewGray(image.Rect(0, 0, targetWidth, targetHeight))
	for y := 0; y < targetHeight; y++ {
		srcY := bounds.Min.Y + y*srcH/targetHeight
		for x := 0; x < targetWidth; x++ {
			srcX := bounds.Min.X + x*srcW/targetWidth
			r, g, b, _ := img.At(srcX, srcY).RGBA()
			// ITU-R BT.601 の輝度係数
			lum := (299*r + 587*g + 114*b) / 1000
			gray.SetGray(x, y, color.Gray{Y: uint8(lum >> 8)})
		}
	}

	return gray, nil
}
