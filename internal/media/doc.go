// Package media はキャプチャ成果物の永続化を担当する
//
// 責務:
// - 静止画のEXIFメタデータ埋め込みと書き出し
// - バッファ済みフレーム列のmp4への変換（ffmpeg使用）
// - 日付パーティション（YYYY-MM-DD）のディレクトリレイアウト
// - 一時ファイル経由のアトミックな書き込み
//
// 仕様:
// - 最終ファイル名で部分的に書かれたファイルが見えることはない
//   （.tmpに書いてfsync後にrenameする）
// - ブロッキングI/Oは専用ワーカーで行い、キューは有界
//   溢れたジョブは捨てて数を記録する
// - メタデータは撮影時刻・チューニングのスナップショット・動きスコアを
//   成果物のコンテナ（EXIF / mp4メタデータ）に埋め込む。ピクセルには描かない。
//
// 前提要件:
// - ffmpeg がインストールされていること（動画書き出し時のみ）
package media
