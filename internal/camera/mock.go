package camera

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockSource はテスト用のSource実装
// 事前に積んだフレームを順番に返し、尽きたら指定のエラーを返す
type MockSource struct {
	desc   Descriptor
	tuning Tuning

	mu        sync.Mutex
	frames    []Frame
	pos       int
	readErr   error // フレームが尽きた後に返すエラー
	failEvery int   // Nフレームごとに一時的エラーを挟む（0なら無効）
	reads     int
	closed    bool
	closes    int
}

// NewMockSource は新しいMockSourceを作成する
func NewMockSource(desc Descriptor, frames []Frame) *MockSource {
	return &MockSource{
		desc:    desc,
		frames:  frames,
		readErr: ErrDisconnected,
	}
}

// SetReadError はフレームが尽きた後に返すエラーを設定する
func (m *MockSource) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// SetFailEvery はNフレームごとに一時的な読み取りエラーを発生させる
func (m *MockSource) SetFailEvery(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failEvery = n
}

// Descriptor はモックのデバイス情報を返す
func (m *MockSource) Descriptor() Descriptor {
	return m.desc
}

// ReadFrame は積まれたフレームを順に返す
func (m *MockSource) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Frame{}, fmt.Errorf("モック: クローズ済みのソースから読み取ろうとしました")
	}

	m.reads++
	if m.failEvery > 0 && m.reads%m.failEvery == 0 {
		return Frame{}, fmt.Errorf("モック: 一時的な読み取りエラー")
	}

	if m.pos >= len(m.frames) {
		return Frame{}, m.readErr
	}

	frame := m.frames[m.pos]
	m.pos++
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now()
	}
	return frame, nil
}

// ApplyTuning はチューニングを検証して記録する
func (m *MockSource) ApplyTuning(_ context.Context, tuning Tuning) error {
	if err := tuning.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tuning = tuning
	return nil
}

// Tuning は記録されたチューニングを返す
func (m *MockSource) Tuning() Tuning {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tuning
}

// Close はソースをクローズ済みにする
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closes++
	return nil
}

// CloseCount はCloseが呼ばれた回数を返す（リーク検査用）
func (m *MockSource) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}
