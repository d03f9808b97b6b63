package capture

import (
	"errors"
	"sync"
	"testing"
	"time"

	"torimi/internal/camera"
	"torimi/internal/config"
	"torimi/internal/motion"
)

// scriptedDetector はテスト用のDetector
// fireAtで指定したフレーム番号（1始まり）でだけ発火する
type scriptedDetector struct {
	mu     sync.Mutex
	count  int
	fireAt map[int]bool
}

func newScriptedDetector(fireAt ...int) *scriptedDetector {
	m := make(map[int]bool)
	for _, n := range fireAt {
		m[n] = true
	}
	return &scriptedDetector{fireAt: m}
}

func (d *scriptedDetector) Detect(frame camera.Frame) (motion.Event, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
	if d.fireAt[d.count] {
		return motion.Event{Timestamp: frame.Timestamp, Score: 0.5}, true, nil
	}
	return motion.Event{}, false, nil
}

func (d *scriptedDetector) Name() string { return "scripted" }

// recordSink はSink呼び出しを記録するテスト用実装
type recordSink struct {
	mu       sync.Mutex
	photos   int
	videos   int
	aborts   int
	photoErr error
}

func (s *recordSink) WritePhoto(_ *Session, _ int, _ camera.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.photoErr != nil {
		return s.photoErr
	}
	s.photos++
	return nil
}

func (s *recordSink) WriteVideo(_ *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos++
	return nil
}

func (s *recordSink) Abort(_ *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborts++
}

func (s *recordSink) counts() (photos, videos, aborts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.photos, s.videos, s.aborts
}

func testConfig() *config.Config {
	return &config.Config{
		Camera: config.CameraConfig{FPS: 50, Width: 100, Height: 100},
		Capture: config.CaptureConfig{
			Mode:               config.ModePhoto,
			PhotosPerDetection: 1,
			PhotoDelay:         time.Millisecond,
			Cooldown:           30 * time.Second,
		},
	}
}

func mockFrames(n int) []camera.Frame {
	frames := make([]camera.Frame, n)
	for i := range frames {
		frames[i] = camera.Frame{Width: 100, Height: 100, Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}}
	}
	return frames
}

func waitFatal(t *testing.T, r *Runner) error {
	t.Helper()
	select {
	case err := <-r.Fatal():
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("致命的エラーの通知がタイムアウトした")
		return nil
	}
}

// TestRunner_DisconnectSignaledOnce は切断が1度だけ通知されることを検証する
func TestRunner_DisconnectSignaledOnce(t *testing.T) {
	source := camera.NewMockSource(camera.Descriptor{Device: "/dev/video0"}, nil)
	sink := &recordSink{}
	r := NewRunner(source, newScriptedDetector(), testConfig(), sink)

	r.Start()
	err := waitFatal(t, r)
	if !errors.Is(err, camera.ErrDisconnected) {
		t.Fatalf("Expected ErrDisconnected, got %v", err)
	}

	// 2度目の通知はない
	select {
	case err := <-r.Fatal():
		t.Fatalf("致命的エラーが2度通知された: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	r.Stop()
	if source.CloseCount() != 1 {
		t.Errorf("Sourceは1度だけクローズされるはず, got %d", source.CloseCount())
	}
}

// TestRunner_RetryBoundExceeded は一時的エラーの連続がリトライ上限後に切断として扱われることを検証する
func TestRunner_RetryBoundExceeded(t *testing.T) {
	source := camera.NewMockSource(camera.Descriptor{Device: "/dev/video0"}, nil)
	source.SetReadError(errors.New("一時的な読み取りエラー"))
	sink := &recordSink{}
	r := NewRunner(source, newScriptedDetector(), testConfig(), sink)

	r.Start()
	err := waitFatal(t, r)
	if !errors.Is(err, camera.ErrDisconnected) {
		t.Fatalf("Expected ErrDisconnected, got %v", err)
	}
	r.Stop()

	status := r.Status()
	if status.ReadFailures < uint64(defaultMaxRetries) {
		t.Errorf("リトライ上限までの失敗が記録されるはず, got %d", status.ReadFailures)
	}
}

// TestRunner_TransientFailureRecovers は散発的な失敗ではパイプラインが停止しないことを検証する
func TestRunner_TransientFailureRecovers(t *testing.T) {
	source := camera.NewMockSource(camera.Descriptor{Device: "/dev/video0"}, mockFrames(30))
	source.SetFailEvery(10) // 10フレームごとに1回失敗する
	sink := &recordSink{}
	r := NewRunner(source, newScriptedDetector(), testConfig(), sink)

	r.Start()
	// フレームが尽きた時点でErrDisconnectedになる（それまでは回復し続ける）
	err := waitFatal(t, r)
	if !errors.Is(err, camera.ErrDisconnected) {
		t.Fatalf("Expected ErrDisconnected, got %v", err)
	}
	r.Stop()

	status := r.Status()
	if status.FramesRead < 25 {
		t.Errorf("散発的な失敗を挟んでも読み取りは継続するはず, got %d frames", status.FramesRead)
	}
}

// TestRunner_OneSessionPerTrigger は1回の検出で1セッションだけ開き、
// クールダウンが直後の再発火を抑止することを検証する
func TestRunner_OneSessionPerTrigger(t *testing.T) {
	source := camera.NewMockSource(camera.Descriptor{Device: "/dev/video0"}, mockFrames(40))
	sink := &recordSink{}

	// フレーム2で発火、その後クールダウン中のフレーム12で再発火
	detector := newScriptedDetector(2, 12)
	r := NewRunner(source, detector, testConfig(), sink)

	r.Start()
	waitFatal(t, r)
	r.Stop()

	photos, _, _ := sink.counts()
	if photos != 1 {
		t.Errorf("静止画は1枚だけ書き出されるはず, got %d", photos)
	}

	status := r.Status()
	if status.SessionsOpened != 1 {
		t.Errorf("セッションは1つだけ開くはず, got %d", status.SessionsOpened)
	}
	if status.SessionsDone != 1 {
		t.Errorf("セッションは1つ完了するはず, got %d", status.SessionsDone)
	}
	if status.EventsFired != 2 {
		t.Errorf("発火は2回記録されるはず, got %d", status.EventsFired)
	}
}

// TestRunner_SinkFailureAbortsSession は書き出し依頼の失敗でセッションが破棄されることを検証する
func TestRunner_SinkFailureAbortsSession(t *testing.T) {
	source := camera.NewMockSource(camera.Descriptor{Device: "/dev/video0"}, mockFrames(20))
	sink := &recordSink{photoErr: errors.New("キューが一杯です")}
	detector := newScriptedDetector(2)
	r := NewRunner(source, detector, testConfig(), sink)

	r.Start()
	waitFatal(t, r)
	r.Stop()

	_, _, aborts := sink.counts()
	if aborts != 1 {
		t.Errorf("セッションは1度破棄されるはず, got %d", aborts)
	}

	status := r.Status()
	if status.SessionsAborted != 1 {
		t.Errorf("破棄の記録が必要, got %d", status.SessionsAborted)
	}
	if status.SessionsDone != 0 {
		t.Errorf("完了したセッションはないはず, got %d", status.SessionsDone)
	}
}
