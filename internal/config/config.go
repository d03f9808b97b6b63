package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// CaptureMode は検出時の記録方式を表す
type CaptureMode string

const (
	// ModePhoto は静止画バーストを保存するモード
	ModePhoto CaptureMode = "photo"
	// ModeVideo は短い動画クリップを保存するモード
	ModeVideo CaptureMode = "video"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Camera  CameraConfig  `yaml:"camera"`
	Detect  DetectConfig  `yaml:"detect"`
	Capture CaptureConfig `yaml:"capture"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	// Type は使用するカメラ種別（usb_webcam | pi_hq）。必須。
	// 未設定の場合は起動を中断する。別カメラへの自動フォールバックは行わない。
	Type string `yaml:"type"`

	FPS    int `yaml:"fps"`    // 目標フレームレート (fps)
	Width  int `yaml:"width"`  // キャプチャ幅
	Height int `yaml:"height"` // キャプチャ高さ

	// チューニング設定。-1 は未設定（デバイスのデフォルトを使用）を表す。
	WhiteBalanceMode int `yaml:"white_balance_mode"` // AWBモード (0-7, デフォルト: 7=曇天)
	Exposure         int `yaml:"exposure"`           // 露出時間 (マイクロ秒)
	Gain             int `yaml:"gain"`               // アナログゲイン
	Brightness       int `yaml:"brightness"`         // 明度 (0-255)
	Contrast         int `yaml:"contrast"`           // コントラスト (0-255)
	Saturation       int `yaml:"saturation"`         // 彩度 (0-255)
	Sharpness        int `yaml:"sharpness"`          // シャープネス (0-255)
}

// DetectConfig は動き検出の設定
type DetectConfig struct {
	// Sensitivity は発火させる動きスコアの下限 (0.0-1.0)
	Sensitivity float64 `yaml:"sensitivity"`

	// Strategy は検出アルゴリズム（frame_diff | background）
	Strategy string `yaml:"strategy"`

	// DownscaleWidth は検出用に縮小するフレーム幅。
	// フル解像度のまま差分を取るとPi上ではCPUが足りない。
	DownscaleWidth int `yaml:"downscale_width"`
}

// CaptureConfig はキャプチャ制御の設定
type CaptureConfig struct {
	Mode CaptureMode `yaml:"mode"` // photo | video

	// photo モード設定
	PhotosPerDetection int           `yaml:"photos_per_detection"` // 1検出あたりの枚数
	PhotoDelay         time.Duration `yaml:"photo_delay"`          // 撮影間隔

	// video モード設定
	MinDuration time.Duration `yaml:"min_duration"` // 最低録画時間
	QuietPeriod time.Duration `yaml:"quiet_period"` // 動きが止まってから録画終了までの猶予

	// Cooldown はキャプチャ完了後に次のセッションを抑止する期間
	Cooldown time.Duration `yaml:"cooldown"`
}

// StorageConfig はメディア保存の設定
type StorageConfig struct {
	OutputDir string `yaml:"output_dir"` // メディア出力先ルート
}

// ServerConfig は通知・ステータスHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号
}

// Load は環境変数から設定を読み込む
// 未設定の項目はデフォルト値で補う
func Load() (*Config, error) {
	cfg := &Config{
		Camera: CameraConfig{
			Type:             os.Getenv("CAMERA_TYPE"),
			FPS:              getEnvAsIntOrDefault("CAMERA_FPS", 30),
			Width:            getEnvAsIntOrDefault("CAMERA_WIDTH", 2560),
			Height:           getEnvAsIntOrDefault("CAMERA_HEIGHT", 1440),
			WhiteBalanceMode: getEnvAsIntOrDefault("CAMERA_AWB_MODE", 7),
			Exposure:         getEnvAsIntOrDefault("CAMERA_EXPOSURE", -1),
			Gain:             getEnvAsIntOrDefault("CAMERA_GAIN", -1),
			Brightness:       getEnvAsIntOrDefault("CAMERA_BRIGHTNESS", -1),
			Contrast:         getEnvAsIntOrDefault("CAMERA_CONTRAST", -1),
			Saturation:       getEnvAsIntOrDefault("CAMERA_SATURATION", -1),
			Sharpness:        getEnvAsIntOrDefault("CAMERA_SHARPNESS", -1),
		},
		Detect: DetectConfig{
			Sensitivity:    getEnvAsFloatOrDefault("DETECT_SENSITIVITY", 0.02),
			Strategy:       getEnvOrDefault("DETECT_STRATEGY", "background"),
			DownscaleWidth: getEnvAsIntOrDefault("DETECT_DOWNSCALE_WIDTH", 320),
		},
		Capture: CaptureConfig{
			Mode:               CaptureMode(getEnvOrDefault("CAPTURE_MODE", string(ModePhoto))),
			PhotosPerDetection: getEnvAsIntOrDefault("PHOTOS_PER_DETECTION", 3),
			PhotoDelay:         getEnvAsDurationOrDefault("PHOTO_DELAY", 2*time.Second),
			MinDuration:        getEnvAsDurationOrDefault("VIDEO_MIN_DURATION", 5*time.Second),
			QuietPeriod:        getEnvAsDurationOrDefault("VIDEO_QUIET_PERIOD", 2*time.Second),
			Cooldown:           getEnvAsDurationOrDefault("CAPTURE_COOLDOWN", 30*time.Second),
		},
		Storage: StorageConfig{
			OutputDir: getEnvOrDefault("OUTPUT_DIR", "media"),
		},
		Server: ServerConfig{
			Host: getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsIntOrDefault("PORT", 8080),
		},
	}

	// 動画モードでは検出と録画が同じストリームを共有するため解像度を落とす
	if cfg.Capture.Mode == ModeVideo && os.Getenv("CAMERA_WIDTH") == "" {
		cfg.Camera.Width = 1920
		cfg.Camera.Height = 1080
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if c.Camera.Type == "" {
		return fmt.Errorf("CAMERA_TYPE が設定されていません (usb_webcam または pi_hq を指定してください)")
	}

	if c.Camera.FPS <= 0 || c.Camera.FPS > 60 {
		return fmt.Errorf("無効なFPS値: %d", c.Camera.FPS)
	}

	if c.Camera.Width <= 0 || c.Camera.Width > 4096 {
		return fmt.Errorf("無効なキャプチャ幅: %d", c.Camera.Width)
	}

	if c.Camera.Height <= 0 || c.Camera.Height > 4096 {
		return fmt.Errorf("無効なキャプチャ高さ: %d", c.Camera.Height)
	}

	if c.Detect.Sensitivity <= 0 || c.Detect.Sensitivity > 1 {
		return fmt.Errorf("無効な検出感度: %g (0より大きく1以下で指定してください)", c.Detect.Sensitivity)
	}

	if c.Detect.DownscaleWidth <= 0 || c.Detect.DownscaleWidth > c.Camera.Width {
		return fmt.Errorf("無効な検出用縮小幅: %d", c.Detect.DownscaleWidth)
	}

	switch c.Capture.Mode {
	case ModePhoto, ModeVideo:
	default:
		return fmt.Errorf("無効なキャプチャモード: %s (photo または video)", c.Capture.Mode)
	}

	if c.Capture.PhotosPerDetection <= 0 {
		return fmt.Errorf("無効な撮影枚数: %d", c.Capture.PhotosPerDetection)
	}

	if c.Capture.MinDuration <= 0 {
		return fmt.Errorf("無効な最低録画時間: %v", c.Capture.MinDuration)
	}

	if c.Capture.Cooldown < 0 {
		return fmt.Errorf("無効なクールダウン時間: %v", c.Capture.Cooldown)
	}

	if c.Storage.OutputDir == "" {
		return fmt.Errorf("出力ディレクトリが設定されていません")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsFloatOrDefault は環境変数を浮動小数点数として取得する
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsDurationOrDefault は環境変数をtime.Durationとして取得する
// "30s" のような表記と秒数の整数表記の両方を受け付ける
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
