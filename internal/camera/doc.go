// Package camera カメラデバイスの検出・選択・フレーム取得を担う
//
// # 責務
// - 接続されたV4L2デバイスの列挙と種別判定（usb_webcam / pi_hq）
// - 設定されたカメラ種別と実デバイスの照合（見つからなければ起動失敗）
// - デバイス固有チューニング（ホワイトバランス・露出・ゲイン等）の検証と適用
// - ffmpeg経由でのフレーム取得（単発・ストリーミング）
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 起動時にカメラを確定させたい（勝手なフォールバックをさせたくない）
// - カメラ種別ごとの最適化を適用したい
// - タイムアウト付きでフレームを読み取りたい
//
// # 仕様
// - Discovery: /dev/video* の走査と v4l2-ctl による実名取得
// - Select: 種別不一致は致命的エラー、別種別の存在は警告として報告
// - Source: USBCameraSource / PiHQCameraSource の共通インターフェース
// - Tuning: 範囲外の値は適用前に InvalidTuningError で弾く（黙ってクランプしない）
//
// # 前提要件
//   - v4l-utils: カメラ名の取得とコントロール設定に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: フレームキャプチャに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
