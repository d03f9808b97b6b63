package capture

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"torimi/internal/camera"
	"torimi/internal/config"
	"torimi/internal/motion"
)

// Sink はキャプチャ成果物の受け取り先（メディアライタ）
// 実装はブロックせずキューに積むこと。キューが溢れた場合はエラーを返す。
type Sink interface {
	// WritePhoto は静止画1枚の書き出しを依頼する (seqは1始まり)
	WritePhoto(session *Session, seq int, frame camera.Frame) error

	// WriteVideo はバッファ済みフレーム列の動画書き出しを依頼する
	WriteVideo(session *Session) error

	// Abort はセッションの成果物を破棄する
	Abort(session *Session)
}

// Status はパイプラインの稼働状況のスナップショット
type Status struct {
	Phase           string    `json:"phase"`
	FramesRead      uint64    `json:"frames_read"`
	ReadFailures    uint64    `json:"read_failures"`
	EventsFired     uint64    `json:"events_fired"`
	SessionsOpened  uint64    `json:"sessions_opened"`
	SessionsDone    uint64    `json:"sessions_done"`
	SessionsAborted uint64    `json:"sessions_aborted"`
	LastEventAt     time.Time `json:"last_event_at"`
}

const (
	// 一時的な読み取り失敗を許容する回数。超えたら切断とみなす。
	defaultMaxRetries = 5

	// リトライ間隔の基準。n回目の失敗では n*retryBackoff 待つ。
	retryBackoff = 200 * time.Millisecond
)

// Runner はフレーム取得ループ
// Sourceのライフサイクルを所有し、どの終了経路でも必ずCloseする。
type Runner struct {
	source   camera.Source
	detector motion.Detector
	ctrl     *Controller
	sink     Sink
	fps      int

	maxRetries int

	stopCh  chan struct{}
	wg      sync.WaitGroup
	fatalCh chan error
	once    sync.Once

	mu     sync.Mutex
	status Status
}

// NewRunner は新しいRunnerを作成する。Sourceの所有権はRunnerに移る。
func NewRunner(source camera.Source, detector motion.Detector, cfg *config.Config, sink Sink) *Runner {
	return &Runner{
		source:     source,
		detector:   detector,
		ctrl:       NewController(cfg.Capture),
		sink:       sink,
		fps:        cfg.Camera.FPS,
		maxRetries: defaultMaxRetries,
		stopCh:     make(chan struct{}),
		fatalCh:    make(chan error, 1),
		status:     Status{Phase: PhaseIdle.String()},
	}
}

// Start はループを開始する
func (r *Runner) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop はループを停止しSourceを解放する
func (r *Runner) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

// Fatal は回復不能なエラーを1度だけ通知するチャネルを返す
func (r *Runner) Fatal() <-chan error {
	return r.fatalCh
}

// Status は稼働状況のスナップショットを返す
// 状態機械はループのゴルーチンが所有するため、位相はmu越しの写しで見る
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// fail は回復不能なエラーを1度だけ通知する
func (r *Runner) fail(err error) {
	r.once.Do(func() {
		r.fatalCh <- err
	})
}

func (r *Runner) run() {
	defer r.wg.Done()
	defer func() {
		if err := r.source.Close(); err != nil {
			log.Printf("カメラのクローズに失敗: %v", err)
		}
	}()

	interval := time.Second / time.Duration(r.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	retries := 0

	for {
		select {
		case <-r.stopCh:
			r.abortIfCapturing()
			return
		case <-ticker.C:
			// 読み取りはフレーム間隔の2倍までしか待たない
			ctx, cancel := context.WithTimeout(context.Background(), 2*interval)
			frame, err := r.source.ReadFrame(ctx)
			cancel()

			if err != nil {
				r.countReadFailure()

				if errors.Is(err, camera.ErrDisconnected) {
					log.Printf("カメラが切断されました: %v", err)
					r.abortIfCapturing()
					r.fail(camera.ErrDisconnected)
					return
				}

				retries++
				if retries > r.maxRetries {
					log.Printf("読み取りリトライの上限に到達 (%d回): %v", r.maxRetries, err)
					r.abortIfCapturing()
					r.fail(camera.ErrDisconnected)
					return
				}

				log.Printf("フレーム読み取りに失敗 (%d/%d回目): %v", retries, r.maxRetries, err)
				if !r.sleep(time.Duration(retries) * retryBackoff) {
					return
				}
				continue
			}

			retries = 0
			r.step(frame)
		}
	}
}

// sleep は停止要求を受け付けながら待つ。停止された場合はfalseを返す。
func (r *Runner) sleep(d time.Duration) bool {
	select {
	case <-r.stopCh:
		r.abortIfCapturing()
		return false
	case <-time.After(d):
		return true
	}
}

// step はフレーム1枚分の検出と状態遷移を処理する
func (r *Runner) step(frame camera.Frame) {
	r.mu.Lock()
	r.status.FramesRead++
	r.mu.Unlock()

	event, fired, err := r.detector.Detect(frame)
	if err != nil {
		log.Printf("動き検出に失敗: %v", err)
		return
	}

	if fired {
		r.mu.Lock()
		r.status.EventsFired++
		r.status.LastEventAt = event.Timestamp
		r.mu.Unlock()
	}

	in := Input{
		Frame:  frame,
		Fired:  fired,
		Event:  event,
		Tuning: r.source.Tuning(),
	}
	r.apply(r.ctrl.Handle(in, time.Now()))
	r.syncPhase()
}

// syncPhase は状態機械の位相をステータスの写しに反映する
func (r *Runner) syncPhase() {
	phase := r.ctrl.State().Phase.String()
	r.mu.Lock()
	r.status.Phase = phase
	r.mu.Unlock()
}

// apply はActionを実行する。書き込み失敗はセッションを破棄してCooldownへ。
func (r *Runner) apply(actions []Action) {
	for _, a := range actions {
		switch a.Kind {
		case ActionOpenSession:
			log.Printf("キャプチャセッション開始: id=%s mode=%s score=%.3f",
				a.Session.ID, a.Session.Mode, a.Session.TriggerScore)
			r.mu.Lock()
			r.status.SessionsOpened++
			r.mu.Unlock()

		case ActionDeliverFrame:
			a.Session.Frames = append(a.Session.Frames, a.Frame)

		case ActionTakePhoto:
			if err := r.sink.WritePhoto(a.Session, a.Seq, a.Frame); err != nil {
				log.Printf("静止画の書き出し依頼に失敗: %v", err)
				r.abortSession(a.Session)
				return
			}

		case ActionFinishSession:
			if a.Session.Mode == config.ModeVideo {
				if err := r.sink.WriteVideo(a.Session); err != nil {
					log.Printf("動画の書き出し依頼に失敗: %v", err)
					r.abortSession(a.Session)
					return
				}
			}
			log.Printf("キャプチャセッション完了: id=%s", a.Session.ID)
			r.mu.Lock()
			r.status.SessionsDone++
			r.mu.Unlock()

		case ActionAbortSession:
			log.Printf("キャプチャセッションを破棄: id=%s", a.Session.ID)
			r.sink.Abort(a.Session)
			r.mu.Lock()
			r.status.SessionsAborted++
			r.mu.Unlock()
		}
	}
}

// abortSession はセッションを破棄する
// 状態機械がまだCapturingなら破棄入力を通し、既にCooldownへ遷移済みなら
// 成果物の破棄と記録だけを行う（完了と同じステップで書き込みが失敗した場合）。
func (r *Runner) abortSession(session *Session) {
	if r.ctrl.State().Phase == PhaseCapturing {
		r.apply(r.ctrl.Handle(Input{Abort: true}, time.Now()))
		r.syncPhase()
		return
	}

	r.sink.Abort(session)
	r.mu.Lock()
	r.status.SessionsAborted++
	r.mu.Unlock()
}

// abortIfCapturing は終了時にセッションが開いていれば破棄する
func (r *Runner) abortIfCapturing() {
	if state := r.ctrl.State(); state.Phase == PhaseCapturing {
		r.abortSession(state.Session)
	}
}

func (r *Runner) countReadFailure() {
	r.mu.Lock()
	r.status.ReadFailures++
	r.mu.Unlock()
}
