package capture

import (
	"time"

	"torimi/internal/camera"
	"torimi/internal/config"
	"torimi/internal/motion"
)

// Phase はキャプチャ判定の状態を表すタグ
type Phase int

const (
	// PhaseIdle は監視中（セッションなし）
	PhaseIdle Phase = iota
	// PhaseTriggered は動きを検出しセッション開始待ち
	PhaseTriggered
	// PhaseCapturing はセッションが開いており記録中
	PhaseCapturing
	// PhaseCooldown はセッション完了後の抑止期間
	PhaseCooldown
)

// String は状態名を返す
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseTriggered:
		return "triggered"
	case PhaseCapturing:
		return "capturing"
	case PhaseCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// State は状態機械の全状態。フラグの書き換えではなく値として差し替える。
type State struct {
	Phase   Phase
	Session *Session // Capturing中のみ非nil

	TriggeredAt   time.Time // Triggeredに入った時刻
	LastMotionAt  time.Time // 最後に動きを観測した時刻
	LastPhotoAt   time.Time // 最後に静止画を撮った時刻
	PhotosTaken   int       // このセッションで撮影した枚数
	CooldownUntil time.Time // この時刻までトリガーを抑止する

	// Triggeredに入る原因となったスコア（セッションに引き継ぐ）
	triggerScore float64
}

// Input は状態機械への1回分の入力
type Input struct {
	Frame  camera.Frame
	Fired  bool         // 検出器が発火したか
	Event  motion.Event // Firedがtrueのとき有効
	Tuning camera.Tuning

	// Abort は書き込み失敗などでセッションを破棄する指示
	Abort bool
}

// ActionKind はActionの種別
type ActionKind int

const (
	// ActionOpenSession はセッションの開始
	ActionOpenSession ActionKind = iota
	// ActionDeliverFrame はセッションのバッファへのフレーム追加（videoモード）
	ActionDeliverFrame
	// ActionTakePhoto は静止画の書き出し
	ActionTakePhoto
	// ActionFinishSession はセッションの正常完了
	ActionFinishSession
	// ActionAbortSession はセッションの破棄（成果物は残さない）
	ActionAbortSession
)

// Action は状態遷移に伴う副作用。Runnerが実行する。
type Action struct {
	Kind    ActionKind
	Session *Session
	Frame   camera.Frame
	Seq     int // ActionTakePhotoの連番 (1始まり)
}

// videoモードのバッファ上限。これを超えたら録画を打ち切る。
// 1920x1080のMJPEGで概ね数百MBに収まる量。
const maxBufferedFrames = 900

// Next は純粋な状態遷移関数
// 現在の状態と入力から次の状態と実行すべきActionを返す。
// 時刻は引数で渡されるためテストで自由に進められる。
func Next(state State, in Input, now time.Time, cfg config.CaptureConfig) (State, []Action) {
	switch state.Phase {
	case PhaseIdle:
		if in.Fired {
			state.Phase = PhaseTriggered
			state.TriggeredAt = now
			state.LastMotionAt = now
			state.triggerScore = in.Event.Score
		}
		return state, nil

	case PhaseTriggered:
		// セッションを開いてそのままCapturingの処理へ進む
		state.Session = newSession(cfg.Mode, in.Tuning, state.triggerScore, now)
		state.Phase = PhaseCapturing
		state.PhotosTaken = 0
		state.LastPhotoAt = time.Time{}
		actions := []Action{{Kind: ActionOpenSession, Session: state.Session}}
		return stepCapturing(state, in, now, cfg, actions)

	case PhaseCapturing:
		return stepCapturing(state, in, now, cfg, nil)

	case PhaseCooldown:
		if now.Before(state.CooldownUntil) {
			// 抑止期間中はトリガーを無視する
			return state, nil
		}
		state.Phase = PhaseIdle
		state.CooldownUntil = time.Time{}
		// 抑止が明けた直後の発火はそのまま受け付ける
		return Next(state, in, now, cfg)

	default:
		return state, nil
	}
}

// stepCapturing はCapturing中の1フレーム分の処理
func stepCapturing(state State, in Input, now time.Time, cfg config.CaptureConfig, actions []Action) (State, []Action) {
	session := state.Session

	if in.Abort {
		actions = append(actions, Action{Kind: ActionAbortSession, Session: session})
		return enterCooldown(state, now, cfg), actions
	}

	if in.Fired {
		state.LastMotionAt = now
	}

	switch cfg.Mode {
	case config.ModePhoto:
		// 撮影間隔を空けて規定枚数の静止画を撮る
		if state.PhotosTaken == 0 || now.Sub(state.LastPhotoAt) >= cfg.PhotoDelay {
			state.PhotosTaken++
			state.LastPhotoAt = now
			actions = append(actions, Action{
				Kind:    ActionTakePhoto,
				Session: session,
				Frame:   in.Frame,
				Seq:     state.PhotosTaken,
			})
		}
		if state.PhotosTaken >= cfg.PhotosPerDetection {
			actions = append(actions, Action{Kind: ActionFinishSession, Session: session})
			return enterCooldown(state, now, cfg), actions
		}
		return state, actions

	default: // config.ModeVideo
		actions = append(actions, Action{Kind: ActionDeliverFrame, Session: session, Frame: in.Frame})

		// クリップと別に代表静止画を1枚残す
		if state.PhotosTaken == 0 {
			state.PhotosTaken = 1
			state.LastPhotoAt = now
			actions = append(actions, Action{
				Kind:    ActionTakePhoto,
				Session: session,
				Frame:   in.Frame,
				Seq:     1,
			})
		}

		elapsed := session.Duration(now)
		quiet := now.Sub(state.LastMotionAt)
		bufferFull := len(session.Frames) >= maxBufferedFrames

		if (elapsed >= cfg.MinDuration && quiet >= cfg.QuietPeriod) || bufferFull {
			actions = append(actions, Action{Kind: ActionFinishSession, Session: session})
			return enterCooldown(state, now, cfg), actions
		}
		return state, actions
	}
}

// enterCooldown はセッションを閉じてCooldown状態を返す
func enterCooldown(state State, now time.Time, cfg config.CaptureConfig) State {
	state.Phase = PhaseCooldown
	state.Session = nil
	state.PhotosTaken = 0
	state.CooldownUntil = now.Add(cfg.Cooldown)
	return state
}

// Controller は状態機械の現在状態を保持するラッパー
type Controller struct {
	cfg   config.CaptureConfig
	state State
}

// NewController は新しいControllerを作成する
func NewController(cfg config.CaptureConfig) *Controller {
	return &Controller{cfg: cfg}
}

// State は現在の状態のコピーを返す
func (c *Controller) State() State {
	return c.state
}

// Handle は入力を1つ処理して実行すべきActionを返す
func (c *Controller) Handle(in Input, now time.Time) []Action {
	next, actions := Next(c.state, in, now, c.cfg)
	c.state = next
	return actions
}
