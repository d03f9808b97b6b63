// Package server は、通知とステータス確認のHTTPサーバーを管理します。
//
// ビューア（ギャラリー）は別プロセスであり、このサーバーは
// 新着メディアのプッシュ配信と稼働状況の確認だけを提供します。
//
// 責務:
//   - 新着メディア通知のSSE配信 (GET /events)
//   - パイプライン稼働状況の提供 (GET /api/status)
//   - ヘルスチェック (GET /health)
//
// 仕様:
//   - ginを使用
//   - 複数クライアントの同時購読をサポート
//   - グレースフルシャットダウンに対応
package server
