package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"torimi/internal/camera"
)

// 動画1本の変換に許す最大時間
const muxTimeout = 2 * time.Minute

// muxVideo はバッファ済みフレーム列をmp4に変換してfinalPathに置く
// ffmpegのconcat入力でJPEG列をlibx264にエンコードする。
// 変換が中断された場合、最終パスにファイルは残らない。
func muxVideo(finalPath string, frames []camera.Frame, fps int, meta Metadata) error {
	sessionDir, err := os.MkdirTemp("", "torimi-mux-")
	if err != nil {
		return fmt.Errorf("一時ディレクトリの作成に失敗: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(sessionDir) // cleanup中のエラーは無視
	}()

	imageFiles, err := saveFramesAsImages(sessionDir, frames)
	if err != nil {
		return fmt.Errorf("フレーム画像の保存に失敗: %w", err)
	}
	if len(imageFiles) == 0 {
		return fmt.Errorf("変換対象のフレームがありません")
	}

	listFile := filepath.Join(sessionDir, "images.txt")
	if err := createImageList(listFile, imageFiles, fps); err != nil {
		return fmt.Errorf("画像リストの作成に失敗: %w", err)
	}

	tmpPath := finalPath + ".tmp"
	defer func() {
		_ = os.Remove(tmpPath) // 成功時は既にrename済み
	}()

	ctx, cancel := context.WithTimeout(context.Background(), muxTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-r", fmt.Sprintf("%d", fps),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-metadata", fmt.Sprintf("creation_time=%s", meta.CapturedAt.Format(time.RFC3339)),
		"-metadata", fmt.Sprintf("title=Bird detection capture (score %.3f)", meta.Score),
		"-metadata", fmt.Sprintf("comment=%s", tuningSummary(meta.Tuning)),
		"-f", "mp4", // 出力先は.tmp名のため形式を明示する
		"-y",
		tmpPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("動画の変換に失敗: %w (output: %s)", err, string(output))
	}

	// rename前にfsyncして中身を確定させる
	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("変換結果のオープンに失敗: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("変換結果のfsyncに失敗: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("変換結果のクローズに失敗: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("ファイルの置き換えに失敗: %w", err)
	}

	return nil
}

// saveFramesAsImages はフレームを一時画像ファイルとして保存する
func saveFramesAsImages(sessionDir string, frames []camera.Frame) ([]string, error) {
	imageFiles := make([]string, 0, len(frames))

	for i, frame := range frames {
		if len(frame.Data) == 0 {
			continue // 空のフレームはスキップ
		}

		filename := fmt.Sprintf("frame_%06d.jpg", i)
		path := filepath.Join(sessionDir, filename)

		if err := os.WriteFile(path, frame.Data, 0644); err != nil {
			return nil, fmt.Errorf("フレーム画像の保存に失敗 (%s): %w", filename, err)
		}

		imageFiles = append(imageFiles, path)
	}

	return imageFiles, nil
}

// createImageList はffmpegのconcat入力用リストを作成する
func createImageList(listFile string, imageFiles []string, fps int) error {
	duration := 1.0 / float64(fps)

	var content string
	for _, imageFile := range imageFiles {
		content += fmt.Sprintf("file '%s'\nduration %.4f\n", imageFile, duration)
	}

	// 最後のフレームは追加の表示時間なし
	if len(imageFiles) > 0 {
		content += fmt.Sprintf("file '%s'\n", imageFiles[len(imageFiles)-1])
	}

	return os.WriteFile(listFile, []byte(content), 0644)
}

// tuningSummary はmp4メタデータに埋めるチューニングの文字列表現を返す
func tuningSummary(t camera.Tuning) string {
	return fmt.Sprintf("awb_mode=%d exposure=%d gain=%d brightness=%d contrast=%d saturation=%d sharpness=%d",
		t.WhiteBalanceMode, t.Exposure, t.Gain, t.Brightness, t.Contrast, t.Saturation, t.Sharpness)
}

// ValidateFFmpeg はffmpegが利用可能かチェックする
// videoモードの起動時に呼び、なければ早期に失敗させる
func ValidateFFmpeg() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpegが見つかりません。インストールしてください: %w", err)
	}

	return nil
}
