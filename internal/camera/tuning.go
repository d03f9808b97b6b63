package camera

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// Unset はチューニング項目が未設定であることを表す値
const Unset = -1

// AWBモードの値（libcameraのAwbMode列挙に対応）
const (
	AWBOff          = 0
	AWBAuto         = 1
	AWBIncandescent = 2
	AWBTungsten     = 3
	AWBFluorescent  = 4
	AWBIndoor       = 5
	AWBDaylight     = 6
	AWBCloudy       = 7
)

// Tuning はカメラのチューニングパラメータ
// Unset(-1) の項目はデバイスのデフォルトを使用する
type Tuning struct {
	WhiteBalanceMode int // AWBモード (0-7)
	Exposure         int // 露出時間 (マイクロ秒, 1-1000000)
	Gain             int // アナログゲイン (1-64)
	Brightness       int // 明度 (0-255)
	Contrast         int // コントラスト (0-255)
	Saturation       int // 彩度 (0-255)
	Sharpness        int // シャープネス (0-255)
}

// DefaultTuning はデフォルトのチューニングを返す
// 屋外の鳥を狙う前提でAWBは曇天(7)に固定する
func DefaultTuning() Tuning {
	return Tuning{
		WhiteBalanceMode: AWBCloudy,
		Exposure:         Unset,
		Gain:             Unset,
		Brightness:       Unset,
		Contrast:         Unset,
		Saturation:       Unset,
		Sharpness:        Unset,
	}
}

// tuningRange はパラメータごとの許容範囲
type tuningRange struct {
	param string
	value int
	min   int
	max   int
}

// Validate は全パラメータを範囲チェックする
// 範囲外の値は適用前に *InvalidTuningError で弾く。クランプはしない。
func (t Tuning) Validate() error {
	checks := []tuningRange{
		{"white_balance_mode", t.WhiteBalanceMode, AWBOff, AWBCloudy},
		{"exposure", t.Exposure, 1, 1000000},
		{"gain", t.Gain, 1, 64},
		{"brightness", t.Brightness, 0, 255},
		{"contrast", t.Contrast, 0, 255},
		{"saturation", t.Saturation, 0, 255},
		{"sharpness", t.Sharpness, 0, 255},
	}

	for _, c := range checks {
		// AWBモード以外は未設定を許容する
		if c.value == Unset && c.param != "white_balance_mode" {
			continue
		}
		if c.value < c.min || c.value > c.max {
			return &InvalidTuningError{Param: c.param, Value: c.value, Min: c.min, Max: c.max}
		}
	}

	return nil
}

// controls はv4l2-ctlに渡すコントロール名と値の組を返す
// 未設定の項目は含めない
func (t Tuning) controls() map[string]int {
	ctrls := map[string]int{
		"white_balance_auto_preset": t.WhiteBalanceMode,
	}
	if t.Exposure != Unset {
		// 手動露出に切り替えてから値を設定する
		ctrls["auto_exposure"] = 1
		ctrls["exposure_time_absolute"] = t.Exposure
	}
	if t.Gain != Unset {
		ctrls["gain"] = t.Gain
	}
	if t.Brightness != Unset {
		ctrls["brightness"] = t.Brightness
	}
	if t.Contrast != Unset {
		ctrls["contrast"] = t.Contrast
	}
	if t.Saturation != Unset {
		ctrls["saturation"] = t.Saturation
	}
	if t.Sharpness != Unset {
		ctrls["sharpness"] = t.Sharpness
	}
	return ctrls
}

// applyControls はv4l2-ctlでコントロールをデバイスに設定する
func applyControls(ctx context.Context, device string, ctrls map[string]int) error {
	for control, value := range ctrls {
		cmd := exec.CommandContext(ctx, "v4l2-ctl",
			"--device", device,
			"--set-ctrl", fmt.Sprintf("%s=%s", control, strconv.Itoa(value)))
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("コントロール %s の設定に失敗: %w", control, err)
		}
	}

	return nil
}

// FromConfig は設定値からTuningを組み立てる
func FromConfig(awbMode, exposure, gain, brightness, contrast, saturation, sharpness int) Tuning {
	return Tuning{
		WhiteBalanceMode: awbMode,
		Exposure:         exposure,
		Gain:             gain,
		Brightness:       brightness,
		Contrast:         contrast,
		Saturation:       saturation,
		Sharpness:        sharpness,
	}
}
