package camera

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDisconnected はカメラとの接続が回復不能に失われたことを表す
// パイプラインはこのエラーで停止し、再起動は外部のスーパーバイザーに委ねる
var ErrDisconnected = errors.New("カメラとの接続が失われました")

// NotFoundError は設定されたカメラ種別に一致するデバイスが見つからなかったことを表す
// 起動時の致命的エラー。検出された全デバイスの一覧を保持する。
type NotFoundError struct {
	Requested Type         // 要求された種別
	Available []Descriptor // 検出されたデバイス一覧
}

// Error はエラーメッセージを返す
func (e *NotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "カメラ種別 %q が見つかりません。", e.Requested)
	if len(e.Available) == 0 {
		b.WriteString("カメラが1台も検出されませんでした。接続を確認してください。")
		return b.String()
	}
	b.WriteString("検出されたデバイス:\n")
	b.WriteString(FormatDescriptors(e.Available))
	return b.String()
}

// InvalidTuningError はチューニング値が許容範囲外であることを表す
// 起動時の致命的エラー。黙ってクランプせず、設定ミスを可視化する。
type InvalidTuningError struct {
	Param string // パラメータ名
	Value int    // 指定された値
	Min   int    // 許容最小値
	Max   int    // 許容最大値
}

// Error はエラーメッセージを返す
func (e *InvalidTuningError) Error() string {
	return fmt.Sprintf("チューニング値が範囲外: %s=%d (許容範囲: %d〜%d)", e.Param, e.Value, e.Min, e.Max)
}

// MismatchWarning は設定外の種別のカメラも接続されていることを示す
// エラーではなく、呼び出し側がログに出すための情報。
type MismatchWarning struct {
	Requested Type         // 設定された種別
	Others    []Descriptor // 設定外の接続デバイス
}

// String はログ出力用の文言を返す
func (w *MismatchWarning) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "設定されていないカメラも検出されました（使用する種別: %s）:\n", w.Requested)
	for _, d := range w.Others {
		fmt.Fprintf(&b, "  - %s (種別: %s, パス: %s)\n", d.Name, d.Type, d.Device)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatDescriptors はデバイス一覧を表示用に整形する
func FormatDescriptors(descs []Descriptor) string {
	if len(descs) == 0 {
		return "  (なし)"
	}
	var b strings.Builder
	for _, d := range descs {
		mark := "NG"
		if d.Available {
			mark = "OK"
		}
		fmt.Fprintf(&b, "  [%s] %s (種別: %s, パス: %s)\n", mark, d.Name, d.Type, d.Device)
	}
	return strings.TrimRight(b.String(), "\n")
}
