package motion

import (
	"image"

	"torimi/internal/camera"
)

// FrameDiffConfig はフレーム差分検出の設定
type FrameDiffConfig struct {
	Sensitivity    float64 // 発火させるスコアの下限 (0.0-1.0)
	DownscaleWidth int     // 検出用の縮小幅
	PixelThreshold uint8   // ピクセル単位の差分閾値（0なら既定値25）
	MinRegionArea  int     // 領域として扱う最小ピクセル数（0なら既定値8）
}

// FrameDiffDetector は直前フレームとの絶対差分による検出器
// 参照は毎フレーム差し替わるため、ゆっくりした変化にはほぼ反応しない
type FrameDiffDetector struct {
	cfg  FrameDiffConfig
	prev *image.Gray
}

// NewFrameDiffDetector は新しいFrameDiffDetectorを作成する
func NewFrameDiffDetector(cfg FrameDiffConfig) *FrameDiffDetector {
	if cfg.PixelThreshold == 0 {
		cfg.PixelThreshold = 25
	}
	if cfg.MinRegionArea == 0 {
		cfg.MinRegionArea = 8
	}
	return &FrameDiffDetector{cfg: cfg}
}

// Name はアルゴリズム名を返す
func (d *FrameDiffDetector) Name() string {
	return "frame_diff"
}

// Detect は直前フレームとの差分から動きを判定する
// 最初の1フレームは参照の初期化のみ行い発火しない
func (d *FrameDiffDetector) Detect(frame camera.Frame) (Event, bool, error) {
	gray, err := grayPlane(frame, d.cfg.DownscaleWidth)
	if err != nil {
		return Event{}, false, err
	}

	prev := d.prev
	d.prev = gray // 参照は発火の有無にかかわらず毎フレーム更新

	if prev == nil || prev.Bounds() != gray.Bounds() {
		// 参照なし（起動直後または解像度変更）は初期化のみ
		return Event{}, false, nil
	}

	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()
	mask := make([]bool, w*h)
	changed := 0

	for i := range gray.Pix {
		diff := int(gray.Pix[i]) - int(prev.Pix[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > int(d.cfg.PixelThreshold) {
			mask[i] = true
			changed++
		}
	}

	score := float64(changed) / float64(w*h)
	if score < d.cfg.Sensitivity {
		return Event{}, false, nil
	}

	scaleX := float64(frame.Width) / float64(w)
	scaleY := float64(frame.Height) / float64(h)
	regions := findRegions(mask, w, h, scaleX, scaleY, d.cfg.MinRegionArea)

	return Event{
		Timestamp: frame.Timestamp,
		Score:     score,
		Regions:   regions,
	}, true, nil
}
