package event

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestEmitter(t *testing.T) (*Emitter, string) {
	t.Helper()
	root := t.TempDir()
	e, err := NewEmitter(root)
	if err != nil {
		t.Fatalf("NewEmitter failed: %v", err)
	}
	e.Start()
	t.Cleanup(e.Stop)
	return e, root
}

// writeViaRename はライタと同じ手順（.tmpに書いてrename）でファイルを置く
func writeViaRename(t *testing.T, path string) {
	t.Helper()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte("data"), 0644); err != nil {
		t.Fatalf("一時ファイルの書き込みに失敗: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("renameに失敗: %v", err)
	}
}

func expectNotification(t *testing.T, e *Emitter) Notification {
	t.Helper()
	select {
	case n := <-e.Notifications():
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("通知がタイムアウトした")
		return Notification{}
	}
}

func expectSilence(t *testing.T, e *Emitter, d time.Duration) {
	t.Helper()
	select {
	case n := <-e.Notifications():
		t.Fatalf("通知されないはずのファイルが通知された: %s", n.Path)
	case <-time.After(d):
	}
}

// TestEmitter_NotifiesFinalPhoto はrenameで現れた静止画が通知されることを検証する
func TestEmitter_NotifiesFinalPhoto(t *testing.T) {
	e, root := newTestEmitter(t)

	path := filepath.Join(root, "bird_20260829_063000_1.jpg")
	writeViaRename(t, path)

	n := expectNotification(t, e)
	if n.Path != path {
		t.Errorf("Expected %s, got %s", path, n.Path)
	}
	if n.Kind != KindPhoto {
		t.Errorf("Expected photo, got %s", n.Kind)
	}
}

// TestEmitter_NotifiesVideoInNewDayDir は後から現れた日付ディレクトリ内の動画も通知されることを検証する
func TestEmitter_NotifiesVideoInNewDayDir(t *testing.T) {
	e, root := newTestEmitter(t)

	dayDir := filepath.Join(root, "2026-08-29")
	if err := os.MkdirAll(dayDir, 0755); err != nil {
		t.Fatalf("日付ディレクトリの作成に失敗: %v", err)
	}

	path := filepath.Join(dayDir, "bird_20260829_063000.mp4")
	writeViaRename(t, path)

	n := expectNotification(t, e)
	if n.Path != path {
		t.Errorf("Expected %s, got %s", path, n.Path)
	}
	if n.Kind != KindVideo {
		t.Errorf("Expected video, got %s", n.Kind)
	}
}

// TestEmitter_NotifiesFirstArtifactInNewDayDir は日付ディレクトリの作成直後、
// ウォッチ登録が間に合う前にrenameで置かれた1枚目のファイルも通知されることを検証する。
// ライタは「ディレクトリ作成→.tmpに書く→即rename」で動くため、この競合は日付の
// 変わり目に毎回起きうる。
func TestEmitter_NotifiesFirstArtifactInNewDayDir(t *testing.T) {
	root := t.TempDir()
	e, err := NewEmitter(root)
	if err != nil {
		t.Fatalf("NewEmitter failed: %v", err)
	}

	// ループ起動前にディレクトリとファイルを置き、Createイベントの処理時点では
	// ファイルが確実に存在している状態を作る
	dayDir := filepath.Join(root, "2026-08-30")
	if err := os.MkdirAll(dayDir, 0755); err != nil {
		t.Fatalf("日付ディレクトリの作成に失敗: %v", err)
	}
	path := filepath.Join(dayDir, "bird_20260830_063000_1.jpg")
	writeViaRename(t, path)

	e.Start()
	t.Cleanup(e.Stop)

	n := expectNotification(t, e)
	if n.Path != path {
		t.Errorf("Expected %s, got %s", path, n.Path)
	}
	if n.Kind != KindPhoto {
		t.Errorf("Expected photo, got %s", n.Kind)
	}

	// スキャンとイベントの二重観測で同じファイルが重複通知されないこと
	expectSilence(t, e, 500*time.Millisecond)
}

// TestEmitter_IgnoresTempAndHiddenFiles は一時ファイルとドット始まりが無視されることを検証する
func TestEmitter_IgnoresTempAndHiddenFiles(t *testing.T) {
	e, root := newTestEmitter(t)

	if err := os.WriteFile(filepath.Join(root, "bird_via.jpg.tmp"), []byte("x"), 0644); err != nil {
		t.Fatalf("書き込みに失敗: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, ".hidden.jpg"), []byte("x"), 0644); err != nil {
		t.Fatalf("書き込みに失敗: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("書き込みに失敗: %v", err)
	}

	expectSilence(t, e, 500*time.Millisecond)
}

func TestMediaKind(t *testing.T) {
	testCases := []struct {
		name     string
		path     string
		kind     Kind
		expected bool
	}{
		{"静止画", "media/2026-08-29/bird_1.jpg", KindPhoto, true},
		{"動画", "media/2026-08-29/bird.mp4", KindVideo, true},
		{"一時ファイル", "media/bird_1.jpg.tmp", "", false},
		{"ドット始まり", "media/.bird_1.jpg", "", false},
		{"対象外の拡張子", "media/notes.txt", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			kind, ok := mediaKind(tc.path)
			if ok != tc.expected {
				t.Fatalf("Expected ok=%v, got %v", tc.expected, ok)
			}
			if ok && kind != tc.kind {
				t.Errorf("Expected %s, got %s", tc.kind, kind)
			}
		})
	}
}
