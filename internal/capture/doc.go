// Package capture はフレーム取得ループとキャプチャ判定の状態機械を提供する
//
// 責務:
// - 目標フレームレートでのフレーム取得（タイムアウト付き、無限ブロックしない）
// - 一時的な読み取り失敗の有界リトライと切断の確定判定
// - 動き検出イベントからのキャプチャ判定（Idle→Triggered→Capturing→Cooldown）
// - セッションの成果物をSink（メディアライタ）へ引き渡す
//
// 状態遷移は純粋関数Nextとして実装されており、時刻を引数に取るため
// タイマーを使わずにテストできる。副作用はActionとして返し、Runnerが実行する。
//
// 仕様:
// - 同時に開けるキャプチャセッションは1つのみ
// - Capturing中のエラーはセッションを破棄して直接Cooldownへ遷移する
// - Cooldown中のトリガーはすべて抑止される
package capture
