package motion

import (
	"torimi/internal/camera"
)

// BackgroundConfig は背景モデル検出の設定
type BackgroundConfig struct {
	Sensitivity    float64 // 発火させるスコアの下限 (0.0-1.0)
	DownscaleWidth int     // 検出用の縮小幅
	PixelThreshold uint8   // ピクセル単位の差分閾値（0なら既定値25）
	Alpha          float64 // 背景モデルの更新率（0なら既定値0.05）
	MinRegionArea  int     // 領域として扱う最小ピクセル数（0なら既定値8)
	NoShapeFilter  bool    // 鳥らしい形状のフィルタを無効化する
}

// BackgroundDetector は指数移動平均の背景モデルによる検出器
// 毎フレーム背景を更新するため、ゆっくりした照明変化には追従する。
// 急激なシーン変化は動きとして扱う。
type BackgroundDetector struct {
	cfg BackgroundConfig
	bg  []float64
	w   int
	h   int
}

// NewBackgroundDetector は新しいBackgroundDetectorを作成する
func NewBackgroundDetector(cfg BackgroundConfig) *BackgroundDetector {
	if cfg.PixelThreshold == 0 {
		cfg.PixelThreshold = 25
	}
	if cfg.Alpha == 0 {
		cfg.Alpha = 0.05
	}
	if cfg.MinRegionArea == 0 {
		cfg.MinRegionArea = 8
	}
	return &BackgroundDetector{cfg: cfg}
}

// Name はアルゴリズム名を返す
func (d *BackgroundDetector) Name() string {
	return "background"
}

// 鳥らしい形状のアスペクト比の範囲
// 細長い影や横に広がる雲の動きを除外する
const (
	minBirdAspect = 0.4
	maxBirdAspect = 2.5
)

// Detect は背景モデルとの差分から動きを判定する
// 最初の1フレームは背景の初期化のみ行い発火しない
func (d *BackgroundDetector) Detect(frame camera.Frame) (Event, bool, error) {
	gray, err := grayPlane(frame, d.cfg.DownscaleWidth)
	if err != nil {
		return Event{}, false, err
	}

	w := gray.Bounds().Dx()
	h := gray.Bounds().Dy()

	if d.bg == nil || d.w != w || d.h != h {
		// 背景なし（起動直後または解像度変更）は初期化のみ
		d.bg = make([]float64, w*h)
		for i, p := range gray.Pix {
			d.bg[i] = float64(p)
		}
		d.w = w
		d.h = h
		return Event{}, false, nil
	}

	mask := make([]bool, w*h)
	changed := 0
	alpha := d.cfg.Alpha

	for i, p := range gray.Pix {
		diff := float64(p) - d.bg[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > float64(d.cfg.PixelThreshold) {
			mask[i] = true
			changed++
		}
		// 背景は発火の有無にかかわらず毎フレーム更新
		d.bg[i] = (1-alpha)*d.bg[i] + alpha*float64(p)
	}

	score := float64(changed) / float64(w*h)
	if score < d.cfg.Sensitivity {
		return Event{}, false, nil
	}

	scaleX := float64(frame.Width) / float64(w)
	scaleY := float64(frame.Height) / float64(h)
	regions := findRegions(mask, w, h, scaleX, scaleY, d.cfg.MinRegionArea)

	if !d.cfg.NoShapeFilter {
		regions = filterBirdLike(regions)
	}

	if len(regions) == 0 {
		return Event{}, false, nil
	}

	return Event{
		Timestamp: frame.Timestamp,
		Score:     score,
		Regions:   regions,
	}, true, nil
}

// filterBirdLike はアスペクト比が鳥らしい範囲の領域だけを残す
func filterBirdLike(regions []Region) []Region {
	filtered := regions[:0]
	for _, r := range regions {
		ratio := r.AspectRatio()
		if ratio > minBirdAspect && ratio < maxBirdAspect {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
