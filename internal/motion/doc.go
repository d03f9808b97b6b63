// Package motion フレーム列からの動き検出を担う
//
// # 責務
// - 連続フレームの差分による動きスコアの算出（0.0-1.0に正規化）
// - 閾値を超えた領域の連結成分解析とバウンディングボックスの報告
// - 参照フレーム／背景モデルの更新（動きの有無にかかわらず毎フレーム）
//
// # 仕様
// - Detector: アルゴリズムを差し替え可能にする共通インターフェース
// - FrameDiffDetector: 直前フレームとの絶対差分
// - BackgroundDetector: 指数移動平均による背景モデル＋鳥らしい形状のフィルタ
// - 起動直後の最初の1フレームは参照の初期化に使い、イベントは発火しない
// - 検出は縮小したグレースケール面で行う（Pi上のCPU負荷対策）
//
// ゆっくりした照明変化には追従し、急激なシーン変化は動きとして扱う。
package motion
