package media

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"torimi/internal/camera"
	"torimi/internal/capture"
)

// Counters は書き込みワーカーの稼働状況
type Counters struct {
	PhotosWritten uint64 `json:"photos_written"`
	VideosWritten uint64 `json:"videos_written"`
	WriteFailures uint64 `json:"write_failures"`
	DroppedJobs   uint64 `json:"dropped_jobs"`
}

type jobKind int

const (
	jobPhoto jobKind = iota
	jobVideo
	jobAbort
)

type job struct {
	kind    jobKind
	session *capture.Session
	seq     int
	frame   camera.Frame
	frames  []camera.Frame
}

// 書き込みキューの深さ。photoバースト1回分+αで十分。
const queueDepth = 16

// Writer はメディア書き込みワーカー
// ブロッキングI/Oを取得ループから切り離す。capture.Sinkを実装する。
type Writer struct {
	root string // 出力先ルート
	fps  int    // 動画の出力フレームレート

	queue  chan job
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	counters Counters
	aborted  map[string]bool // 破棄済みセッションID
}

// NewWriter は新しいWriterを作成する
func NewWriter(root string, fps int) *Writer {
	return &Writer{
		root:    root,
		fps:     fps,
		queue:   make(chan job, queueDepth),
		stopCh:  make(chan struct{}),
		aborted: make(map[string]bool),
	}
}

// Start はワーカーを開始する
func (w *Writer) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop はキューに残ったジョブを処理してからワーカーを停止する
func (w *Writer) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

// Counters は稼働状況のスナップショットを返す
func (w *Writer) Counters() Counters {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counters
}

// WritePhoto は静止画1枚の書き出しをキューに積む
// キューが一杯の場合はジョブを捨ててエラーを返す
func (w *Writer) WritePhoto(session *capture.Session, seq int, frame camera.Frame) error {
	return w.enqueue(job{kind: jobPhoto, session: session, seq: seq, frame: frame})
}

// WriteVideo はバッファ済みフレーム列の動画書き出しをキューに積む
func (w *Writer) WriteVideo(session *capture.Session) error {
	// セッションのバッファはこの時点でWriterの所有に移る
	frames := session.Frames
	session.Frames = nil
	return w.enqueue(job{kind: jobVideo, session: session, frames: frames})
}

// Abort はセッションの成果物を破棄する
// キュー内の未処理ジョブはスキップされ、書き出し済みのファイルは削除される。
// 削除はワーカーのキュー経由で行う。ワーカーは1本なので、処理中だった
// 書き込みが後からrenameで成果物を残すことはない。
func (w *Writer) Abort(session *capture.Session) {
	w.mu.Lock()
	w.aborted[session.ID] = true
	w.mu.Unlock()

	select {
	case w.queue <- job{kind: jobAbort, session: session}:
	case <-w.stopCh:
		// 停止後はワーカーのドレインに乗らない可能性があるため直接削除する
		w.removeArtifacts(session)
	}
}

func (w *Writer) enqueue(j job) error {
	select {
	case w.queue <- j:
		return nil
	default:
		w.mu.Lock()
		w.counters.DroppedJobs++
		w.mu.Unlock()
		return fmt.Errorf("書き込みキューが一杯です (深さ%d)", queueDepth)
	}
}

func (w *Writer) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			// 残りのジョブは処理してから終了する
			for {
				select {
				case j := <-w.queue:
					w.process(j)
				default:
					return
				}
			}
		case j := <-w.queue:
			w.process(j)
		}
	}
}

func (w *Writer) process(j job) {
	if j.kind == jobAbort {
		w.removeArtifacts(j.session)
		return
	}

	w.mu.Lock()
	skip := w.aborted[j.session.ID]
	w.mu.Unlock()
	if skip {
		return
	}

	var err error
	switch j.kind {
	case jobPhoto:
		err = w.writePhoto(j)
	case jobVideo:
		err = w.writeVideo(j)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.counters.WriteFailures++
		log.Printf("メディアの書き込みに失敗: %v", err)
		return
	}
	switch j.kind {
	case jobPhoto:
		w.counters.PhotosWritten++
	case jobVideo:
		w.counters.VideosWritten++
	}
}

// dayDir はセッション開始日のディレクトリを返す（なければ作る）
func (w *Writer) dayDir(session *capture.Session) (string, error) {
	dir := filepath.Join(w.root, session.StartedAt.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("出力ディレクトリの作成に失敗: %w", err)
	}
	return dir, nil
}

func (w *Writer) writePhoto(j job) error {
	dir, err := w.dayDir(j.session)
	if err != nil {
		return err
	}

	data, err := embedEXIF(j.frame.Data, Metadata{
		CapturedAt: j.frame.Timestamp,
		Tuning:     j.session.Tuning,
		Score:      j.session.TriggerScore,
	})
	if err != nil {
		return fmt.Errorf("EXIFの埋め込みに失敗: %w", err)
	}

	name := fmt.Sprintf("%s_%d.jpg", j.session.BaseName, j.seq)
	return atomicWrite(filepath.Join(dir, name), data)
}

func (w *Writer) writeVideo(j job) error {
	dir, err := w.dayDir(j.session)
	if err != nil {
		return err
	}

	finalPath := filepath.Join(dir, j.session.BaseName+".mp4")
	return muxVideo(finalPath, j.frames, w.fps, Metadata{
		CapturedAt: j.session.StartedAt,
		Tuning:     j.session.Tuning,
		Score:      j.session.TriggerScore,
	})
}

// removeArtifacts はセッションの書き出し済みファイルを削除する
func (w *Writer) removeArtifacts(session *capture.Session) {
	dir := filepath.Join(w.root, session.StartedAt.Format("2006-01-02"))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return // ディレクトリがなければ破棄するものもない
	}

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), session.BaseName) {
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				log.Printf("破棄対象の削除に失敗 (%s): %v", path, err)
			}
		}
	}
}

// atomicWrite は一時ファイルに書いてfsync後にrenameする
// 最終ファイル名で部分的なファイルが見えることはない
func atomicWrite(path string, data []byte) error {
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("一時ファイルへの書き込みに失敗: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("一時ファイルのfsyncに失敗: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("一時ファイルのクローズに失敗: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ファイルの置き換えに失敗: %w", err)
	}

	return nil
}
