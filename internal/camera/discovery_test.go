package camera

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestClassifyDevice(t *testing.T) {
	testCases := []struct {
		name     string
		device   string
		card     string
		expected Type
	}{
		{"USBウェブカメラ", "/dev/video0", "HD Pro Webcam C922", TypeUSBWebcam},
		{"libcameraノードはPi HQ", "/dev/video10", "bcm2835-isp", TypePiHQ},
		{"番号19もPi HQ", "/dev/video19", "unicam", TypePiHQ},
		{"名前にimxを含む", "/dev/video0", "imx477 sensor", TypePiHQ},
		{"名前にarducamを含む", "/dev/video1", "Arducam 16MP", TypePiHQ},
		{"名前にcsiを含む", "/dev/video2", "CSI Camera Module", TypePiHQ},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyDevice(tc.device, tc.card)
			if got != tc.expected {
				t.Errorf("classifyDevice(%s, %s) = %s, expected %s", tc.device, tc.card, got, tc.expected)
			}
		})
	}
}

func TestSelect_Match(t *testing.T) {
	descs := []Descriptor{
		{Type: TypeUSBWebcam, Device: "/dev/video0", Name: "HD Pro Webcam C922", Available: true},
		{Type: TypePiHQ, Device: "/dev/video10", Name: "Pi HQ Camera", Available: true},
	}

	selected, warn, err := Select(descs, TypeUSBWebcam)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if selected.Device != "/dev/video0" {
		t.Errorf("Expected /dev/video0, got %s", selected.Device)
	}

	// 設定外のPi HQカメラについて警告が出ること
	if warn == nil {
		t.Fatal("Expected mismatch warning, got nil")
	}
	if len(warn.Others) != 1 || warn.Others[0].Type != TypePiHQ {
		t.Errorf("Expected warning about pi_hq, got %+v", warn.Others)
	}
}

// TestSelect_NotFound は usb_webcam を要求して pi_hq しかない場合の致命的エラーを検証する
func TestSelect_NotFound(t *testing.T) {
	descs := []Descriptor{
		{Type: TypePiHQ, Device: "/dev/video10", Name: "Pi HQ Camera", Available: true},
	}

	_, _, err := Select(descs, TypeUSBWebcam)
	if err == nil {
		t.Fatal("Expected NotFoundError, got nil")
	}

	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected *NotFoundError, got %T", err)
	}

	if notFound.Requested != TypeUSBWebcam {
		t.Errorf("Expected requested type usb_webcam, got %s", notFound.Requested)
	}

	// エラーメッセージに検出済みデバイスの一覧が含まれること
	msg := err.Error()
	if !strings.Contains(msg, "Pi HQ Camera") || !strings.Contains(msg, "/dev/video10") {
		t.Errorf("Error message should list available devices, got: %s", msg)
	}
}

func TestSelect_NoDevices(t *testing.T) {
	_, _, err := Select(nil, TypeUSBWebcam)

	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected *NotFoundError, got %T", err)
	}
	if len(notFound.Available) != 0 {
		t.Errorf("Expected empty available list, got %d entries", len(notFound.Available))
	}
}

func TestSelect_SkipsUnavailable(t *testing.T) {
	descs := []Descriptor{
		{Type: TypeUSBWebcam, Device: "/dev/video0", Name: "壊れたカメラ", Available: false},
		{Type: TypeUSBWebcam, Device: "/dev/video1", Name: "使えるカメラ", Available: true},
	}

	selected, _, err := Select(descs, TypeUSBWebcam)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if selected.Device != "/dev/video1" {
		t.Errorf("Expected /dev/video1, got %s", selected.Device)
	}
}

func TestMockDiscovery(t *testing.T) {
	mock := NewMockDiscovery([]Descriptor{
		{Type: TypeUSBWebcam, Device: "/dev/video0", Name: "テストカメラ 1", Available: true},
	})

	descs := mock.Enumerate(context.Background())
	if len(descs) != 1 {
		t.Fatalf("Expected 1 device, got %d", len(descs))
	}

	mock.AddDevice(Descriptor{Type: TypePiHQ, Device: "/dev/video10", Name: "テストカメラ 2", Available: true})
	descs = mock.Enumerate(context.Background())
	if len(descs) != 2 {
		t.Fatalf("Expected 2 devices after add, got %d", len(descs))
	}
}

func TestExtractDeviceNumber(t *testing.T) {
	if n := extractDeviceNumber("/dev/video12"); n != 12 {
		t.Errorf("Expected 12, got %d", n)
	}
	if n := extractDeviceNumber("/dev/video0"); n != 0 {
		t.Errorf("Expected 0, got %d", n)
	}
}
