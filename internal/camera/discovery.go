package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// Enumerate はシステム内の全カメラデバイスを列挙する
	// デバイスが1台もない場合は空のスライスを返す（エラーにはしない）
	Enumerate(ctx context.Context) []Descriptor
}

// LinuxDiscovery はLinux環境でのカメラデバイス検出を実装する
type LinuxDiscovery struct{}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() Discovery {
	return &LinuxDiscovery{}
}

// Enumerate はシステム内の全カメラデバイスを列挙する
func (d *LinuxDiscovery) Enumerate(ctx context.Context) []Descriptor {
	var descs []Descriptor

	// /dev/video* パターンでデバイスを検索
	matches, err := filepath.Glob("/dev/video*")
	if err != nil {
		return descs
	}

	// デバイス番号でソート
	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	for _, match := range matches {
		select {
		case <-ctx.Done():
			return descs
		default:
		}

		if !isV4L2Device(match) {
			continue
		}

		descs = append(descs, d.describe(ctx, match))
	}

	return descs
}

// describe はデバイスパスからDescriptorを組み立てる
func (d *LinuxDiscovery) describe(ctx context.Context, device string) Descriptor {
	name := getV4L2DeviceName(ctx, device)
	if name == "" {
		name = fmt.Sprintf("カメラ %d", extractDeviceNumber(device))
	}

	desc := Descriptor{
		Type:      classifyDevice(device, name),
		Device:    device,
		Name:      name,
		Available: isDeviceReadable(device),
	}

	desc.MaxWidth, desc.MaxHeight = probeMaxResolution(ctx, device)
	desc.Autofocus = probeAutofocus(ctx, device)

	return desc
}

// classifyDevice はデバイスパスと名前からカメラ種別を判定する
// libcameraが作るノードは /dev/video10 以降に並ぶため、番号10以上はPi HQ扱い
func classifyDevice(device, name string) Type {
	if extractDeviceNumber(device) >= 10 {
		return TypePiHQ
	}

	lower := strings.ToLower(name)
	for _, marker := range []string{"imx", "arducam", "ov5647", "hq", "csi", "mipi"} {
		if strings.Contains(lower, marker) {
			return TypePiHQ
		}
	}

	if strings.HasPrefix(device, "/dev/video") {
		return TypeUSBWebcam
	}

	return TypeGenericV4L2
}

// Select は列挙されたデバイスから設定された種別に一致するものを選ぶ
// 一致がなければ *NotFoundError。別種別のデバイスが存在する場合は
// 非致命的な *MismatchWarning を併せて返す（呼び出し側がログに出す）。
func Select(descs []Descriptor, requested Type) (Descriptor, *MismatchWarning, error) {
	var others []Descriptor
	var selected *Descriptor

	for i := range descs {
		if !descs[i].Available {
			continue
		}
		if descs[i].Type == requested {
			if selected == nil {
				selected = &descs[i]
			}
		} else {
			others = append(others, descs[i])
		}
	}

	if selected == nil {
		return Descriptor{}, nil, &NotFoundError{Requested: requested, Available: descs}
	}

	var warn *MismatchWarning
	if len(others) > 0 {
		warn = &MismatchWarning{Requested: requested, Others: others}
	}

	return *selected, warn, nil
}

// isV4L2Device はデバイスがV4L2デバイスかチェックする
func isV4L2Device(device string) bool {
	matched, _ := regexp.MatchString(`^/dev/video\d+$`, device)
	return matched
}

// isDeviceReadable はデバイスファイルの読み取り権限を確認する
func isDeviceReadable(device string) bool {
	if _, err := os.Stat(device); os.IsNotExist(err) {
		return false
	}

	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	defer func() {
		_ = file.Close()
	}()

	return true
}

// getV4L2DeviceName はv4l2-ctlを使って実際のデバイス名を取得する
func getV4L2DeviceName(ctx context.Context, device string) string {
	cmdCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "v4l2-ctl", "--device", device, "--info")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}

	// "Card type" の行からカメラ名を抽出
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Card type") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1])
			}
		}
	}

	return ""
}

// probeMaxResolution はサポートされる最大解像度を取得する
func probeMaxResolution(ctx context.Context, device string) (int, int) {
	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--list-formats-ext")
	output, err := cmd.Output()
	if err != nil {
		return 0, 0
	}

	// "Size: Discrete 1920x1080" 形式の行から最大値を拾う
	re := regexp.MustCompile(`Size: Discrete (\d+)x(\d+)`)
	maxW, maxH := 0, 0
	for _, m := range re.FindAllStringSubmatch(string(output), -1) {
		w, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		if w*h > maxW*maxH {
			maxW, maxH = w, h
		}
	}

	return maxW, maxH
}

// probeAutofocus はオートフォーカスコントロールの有無を確認する
func probeAutofocus(ctx context.Context, device string) bool {
	cmd := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--list-ctrls")
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(output), "focus_automatic_continuous") ||
		strings.Contains(string(output), "focus_auto")
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	re := regexp.MustCompile(`video(\d+)`)
	matches := re.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}

	return num
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	descs []Descriptor
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(descs []Descriptor) *MockDiscovery {
	return &MockDiscovery{descs: descs}
}

// Enumerate はモックデバイス一覧を返す
func (m *MockDiscovery) Enumerate(_ context.Context) []Descriptor {
	result := make([]Descriptor, len(m.descs))
	copy(result, m.descs)
	return result
}

// AddDevice はテスト用にデバイスを追加する
func (m *MockDiscovery) AddDevice(desc Descriptor) {
	m.descs = append(m.descs, desc)
}
