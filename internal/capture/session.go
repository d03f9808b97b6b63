package capture

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"torimi/internal/camera"
	"torimi/internal/config"
)

// Session は1回の検出に対応するキャプチャセッション
// カメラごとに同時に1つしか存在しない
type Session struct {
	ID        string             // セッションID (uuid)
	Mode      config.CaptureMode // photo | video
	StartedAt time.Time          // セッション開始時刻
	BaseName  string             // 成果物のファイル名の基部 (bird_YYYYMMDD_HHMMSS)
	Tuning    camera.Tuning      // 開始時点のチューニングスナップショット

	// videoモードで録画終了までバッファするフレーム列
	Frames []camera.Frame

	// 検出時の動きスコア（メタデータ用）
	TriggerScore float64
}

// newSession は新しいキャプチャセッションを作成する
func newSession(mode config.CaptureMode, tuning camera.Tuning, score float64, now time.Time) *Session {
	return &Session{
		ID:           uuid.NewString(),
		Mode:         mode,
		StartedAt:    now,
		BaseName:     fmt.Sprintf("bird_%s", now.Format("20060102_150405")),
		Tuning:       tuning,
		TriggerScore: score,
	}
}

// Duration はセッション開始からの経過時間を返す
func (s *Session) Duration(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}
