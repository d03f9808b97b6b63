// Package event は新しいメディアの到着をファイルシステム経由で検知して通知する
//
// 責務:
// - 出力ツリーの監視（日付ディレクトリは出現し次第ウォッチに追加）
// - 最終ファイル名のメディアだけを通知（.tmpとドット始まりは無視）
//
// ライタと独立に動くため、renameで現れた完全なファイルだけを観測する。
package event

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Kind は通知対象メディアの種別
type Kind string

const (
	// KindPhoto は静止画
	KindPhoto Kind = "photo"
	// KindVideo は動画
	KindVideo Kind = "video"
)

// Notification は新しいメディア1件の通知
type Notification struct {
	Path string    `json:"path"`
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`
}

// 通知チャネルの深さ。バーストはここで吸収する。
const notifyDepth = 64

// Emitter は出力ツリーを監視して新着メディアを通知する
type Emitter struct {
	root    string
	watcher *fsnotify.Watcher

	ch     chan Notification
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu             sync.Mutex
	seen           map[string]struct{}
	slowDeliveries uint64
}

// NewEmitter は出力ルートを監視するEmitterを作成する
// ルートと既存の日付ディレクトリをウォッチに追加する
func NewEmitter(root string) (*Emitter, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("出力ルートの作成に失敗: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ファイル監視の初期化に失敗: %w", err)
	}

	e := &Emitter{
		root:    root,
		watcher: watcher,
		ch:      make(chan Notification, notifyDepth),
		stopCh:  make(chan struct{}),
		seen:    make(map[string]struct{}),
	}

	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("出力ルートの監視に失敗: %w", err)
	}

	// 既存の日付ディレクトリも監視対象に入れる
	entries, err := os.ReadDir(root)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("出力ルートの読み取りに失敗: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := watcher.Add(filepath.Join(root, entry.Name())); err != nil {
				log.Printf("ディレクトリの監視に失敗 (%s): %v", entry.Name(), err)
			}
		}
	}

	return e, nil
}

// Start は監視ループを開始する
func (e *Emitter) Start() {
	e.wg.Add(1)
	go e.run()
}

// Stop は監視を停止する
func (e *Emitter) Stop() {
	close(e.stopCh)
	e.wg.Wait()
	e.watcher.Close()
}

// Notifications は新着メディアの通知チャネルを返す
func (e *Emitter) Notifications() <-chan Notification {
	return e.ch
}

// SlowDeliveries は購読側の詰まりで待たされた通知の数を返す
func (e *Emitter) SlowDeliveries() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slowDeliveries
}

func (e *Emitter) run() {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopCh:
			return
		case ev, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			e.handle(ev)
		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("ファイル監視エラー: %v", err)
		}
	}
}

// handle はファイルシステムイベント1件を処理する
// renameで最終名に置かれたファイルはCreateとして観測される
func (e *Emitter) handle(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create == 0 {
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return // rename競合などで消えた場合は無視
	}

	if info.IsDir() {
		// 新しい日付ディレクトリを監視対象に追加する
		if err := e.watcher.Add(ev.Name); err != nil {
			log.Printf("ディレクトリの監視に失敗 (%s): %v", ev.Name, err)
			return
		}
		// ウォッチ登録より先に置かれたファイルはイベントが来ないため
		// ここで拾い直す。1件も黙って落とさない。
		e.scanDir(ev.Name)
		return
	}

	e.notify(ev.Name)
}

// scanDir はディレクトリ内の既存メディアを通知する
func (e *Emitter) scanDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("ディレクトリの読み取りに失敗 (%s): %v", dir, err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		e.notify(filepath.Join(dir, entry.Name()))
	}
}

// notify は最終ファイル名のメディアを1度だけ通知する
// スキャンとイベントで同じファイルを二重に観測しても重複しない
func (e *Emitter) notify(path string) {
	kind, ok := mediaKind(path)
	if !ok {
		return
	}

	e.mu.Lock()
	if _, dup := e.seen[path]; dup {
		e.mu.Unlock()
		return
	}
	e.seen[path] = struct{}{}
	e.mu.Unlock()

	e.emit(Notification{
		Path: path,
		Kind: kind,
		Time: time.Now(),
	})
}

// emit は通知を送る。チャネルが詰まっていても黙って捨てず、待って届ける。
func (e *Emitter) emit(n Notification) {
	select {
	case e.ch <- n:
		return
	default:
	}

	e.mu.Lock()
	e.slowDeliveries++
	e.mu.Unlock()
	log.Printf("通知チャネルが詰まっています: %s", n.Path)

	select {
	case e.ch <- n:
	case <-e.stopCh:
	}
}

// mediaKind は最終ファイル名のメディアかどうかを判定する
// 一時ファイル（.tmp）とドット始まりの名前は対象外
func mediaKind(path string) (Kind, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") {
		return "", false
	}

	switch filepath.Ext(base) {
	case ".jpg", ".jpeg":
		return KindPhoto, true
	case ".mp4":
		return KindVideo, true
	default:
		return "", false
	}
}
