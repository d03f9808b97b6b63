package motion

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"torimi/internal/camera"
)

// makeFrame はテスト用の合成フレームを作成する
// drawで指定した矩形を白(255)、背景をグレー(64)で塗る
func makeFrame(t *testing.T, w, h int, blocks ...image.Rectangle) camera.Frame {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: 64})
		}
	}
	for _, b := range blocks {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("テストフレームのエンコードに失敗: %v", err)
	}

	return camera.Frame{
		Timestamp: time.Now(),
		Width:     w,
		Height:    h,
		Format:    "MJPEG",
		Data:      buf.Bytes(),
	}
}

// TestFrameDiff_FirstFrameSeeds は最初の1フレームが発火しないことを検証する
func TestFrameDiff_FirstFrameSeeds(t *testing.T) {
	d := NewFrameDiffDetector(FrameDiffConfig{Sensitivity: 0.001, DownscaleWidth: 64})

	// 動きだらけのフレームでも最初の1枚は参照の初期化のみ
	frame := makeFrame(t, 64, 48, image.Rect(0, 0, 64, 48))
	_, fired, err := d.Detect(frame)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if fired {
		t.Error("最初のフレームで発火してはいけない")
	}
}

// TestFrameDiff_StaticScene は差分ゼロのフレーム列が一度も発火しないことを検証する
func TestFrameDiff_StaticScene(t *testing.T) {
	d := NewFrameDiffDetector(FrameDiffConfig{Sensitivity: 0.001, DownscaleWidth: 64})

	for i := 0; i < 20; i++ {
		frame := makeFrame(t, 64, 48)
		_, fired, err := d.Detect(frame)
		if err != nil {
			t.Fatalf("Detect failed at frame %d: %v", i, err)
		}
		if fired {
			t.Fatalf("静止シーンで発火した (frame %d)", i)
		}
	}
}

// TestFrameDiff_MovingBlock は画面の5%を占めるブロックの出現で発火することを検証する
func TestFrameDiff_MovingBlock(t *testing.T) {
	d := NewFrameDiffDetector(FrameDiffConfig{Sensitivity: 0.01, DownscaleWidth: 100})

	// 参照を初期化
	if _, _, err := d.Detect(makeFrame(t, 100, 100)); err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// 5%の面積のブロック（100x100中の22x22 ≒ 4.8%）が出現
	event, fired, err := d.Detect(makeFrame(t, 100, 100, image.Rect(10, 10, 32, 32)))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if !fired {
		t.Fatal("ブロックの出現で発火しなかった")
	}

	if event.Score < 0.01 || event.Score > 0.2 {
		t.Errorf("スコアが想定範囲外: %g", event.Score)
	}

	if len(event.Regions) == 0 {
		t.Fatal("領域が報告されていない")
	}

	// 最大領域がブロックの位置とおおよそ一致すること（JPEG圧縮の滲みを許容）
	r := event.Regions[0]
	if r.X > 15 || r.Y > 15 || r.X+r.Width < 28 || r.Y+r.Height < 28 {
		t.Errorf("領域がブロックを覆っていない: %+v", r)
	}
}

// TestFrameDiff_BelowSensitivity は感度未満の変化で発火しないことを検証する
func TestFrameDiff_BelowSensitivity(t *testing.T) {
	d := NewFrameDiffDetector(FrameDiffConfig{Sensitivity: 0.5, DownscaleWidth: 64})

	if _, _, err := d.Detect(makeFrame(t, 64, 48)); err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// 5%程度の変化では感度0.5に届かない
	_, fired, err := d.Detect(makeFrame(t, 64, 48, image.Rect(0, 0, 10, 10)))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if fired {
		t.Error("感度未満の変化で発火した")
	}
}

// TestBackground_AdaptsToSlowChange は背景モデルが毎フレーム更新されることを検証する
func TestBackground_AdaptsToSlowChange(t *testing.T) {
	d := NewBackgroundDetector(BackgroundConfig{
		Sensitivity:    0.01,
		DownscaleWidth: 64,
		Alpha:          0.5, // テストでは速く追従させる
		NoShapeFilter:  true,
	})

	// 背景を初期化してからブロックを出し続ける
	if _, _, err := d.Detect(makeFrame(t, 64, 48)); err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	block := image.Rect(20, 10, 40, 30)
	_, fired, err := d.Detect(makeFrame(t, 64, 48, block))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if !fired {
		t.Fatal("ブロックの出現で発火しなかった")
	}

	// 同じブロックを出し続けると背景に取り込まれて発火しなくなる
	stillFiring := true
	for i := 0; i < 10 && stillFiring; i++ {
		_, stillFiring, err = d.Detect(makeFrame(t, 64, 48, block))
		if err != nil {
			t.Fatalf("Detect failed: %v", err)
		}
	}
	if stillFiring {
		t.Error("静止した物体が背景に取り込まれていない")
	}
}

// TestBackground_ShapeFilter は細長い領域が鳥らしくないとして除外されることを検証する
func TestBackground_ShapeFilter(t *testing.T) {
	newDetector := func(noFilter bool) *BackgroundDetector {
		return NewBackgroundDetector(BackgroundConfig{
			Sensitivity:    0.005,
			DownscaleWidth: 100,
			NoShapeFilter:  noFilter,
		})
	}

	// 横に細長いバー（アスペクト比 80/4 = 20）は鳥ではない
	bar := image.Rect(10, 48, 90, 52)

	withFilter := newDetector(false)
	if _, _, err := withFilter.Detect(makeFrame(t, 100, 100)); err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	_, fired, err := withFilter.Detect(makeFrame(t, 100, 100, bar))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if fired {
		t.Error("細長い領域が形状フィルタを通過した")
	}

	withoutFilter := newDetector(true)
	if _, _, err := withoutFilter.Detect(makeFrame(t, 100, 100)); err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	_, fired, err = withoutFilter.Detect(makeFrame(t, 100, 100, bar))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if !fired {
		t.Error("フィルタ無効時は発火するはず")
	}
}

func TestNew_Strategies(t *testing.T) {
	testCases := []struct {
		strategy  string
		expectErr bool
	}{
		{"frame_diff", false},
		{"background", false},
		{"mog2", true},
	}

	for _, tc := range testCases {
		t.Run(tc.strategy, func(t *testing.T) {
			d, err := New(tc.strategy, 0.02, 320)
			if tc.expectErr {
				if err == nil {
					t.Error("Expected error for unsupported strategy")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if d.Name() != tc.strategy {
				t.Errorf("Expected name %s, got %s", tc.strategy, d.Name())
			}
		})
	}
}

func TestRegionAspectRatio(t *testing.T) {
	r := Region{X: 0, Y: 0, Width: 50, Height: 100}
	if got := r.AspectRatio(); got != 0.5 {
		t.Errorf("Expected 0.5, got %g", got)
	}

	zero := Region{Width: 10, Height: 0}
	if got := zero.AspectRatio(); got != 0 {
		t.Errorf("高さ0のアスペクト比は0であるべき, got %g", got)
	}
}

func TestFindRegions(t *testing.T) {
	// 10x10のマスクに2つの成分を置く
	w, h := 10, 10
	mask := make([]bool, w*h)
	// 4x4の成分
	for y := 1; y < 5; y++ {
		for x := 1; x < 5; x++ {
			mask[y*w+x] = true
		}
	}
	// 1ピクセルのノイズ
	mask[9*w+9] = true

	regions := findRegions(mask, w, h, 1, 1, 4)
	if len(regions) != 1 {
		t.Fatalf("Expected 1 region (noise filtered), got %d", len(regions))
	}

	r := regions[0]
	if r.X != 1 || r.Y != 1 || r.Width != 4 || r.Height != 4 {
		t.Errorf("Unexpected region: %+v", r)
	}
}
