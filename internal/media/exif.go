package media

import (
	"bytes"
	"fmt"
	"time"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"

	"torimi/internal/camera"
)

// Metadata は成果物に埋め込む撮影情報
type Metadata struct {
	CapturedAt time.Time
	Tuning     camera.Tuning
	Score      float64 // 検出時の動きスコア
}

// ISO感度の標準1/3段ステップ値
// アナログゲインから換算したISOはこのいずれかに丸める
var standardISOValues = []uint16{
	100, 125, 160, 200, 250, 320, 400, 500, 640,
	800, 1000, 1250, 1600, 2000, 2500, 3200, 4000, 5000, 6400,
}

// gainToISO はアナログゲインをEXIFのISO感度に変換する
// ゲイン1.0 = ISO100として換算し、最も近い標準値に丸める
func gainToISO(gain int) uint16 {
	if gain == camera.Unset || gain <= 0 {
		return 0
	}

	iso := gain * 100
	nearest := standardISOValues[0]
	bestDiff := iso - int(nearest)
	if bestDiff < 0 {
		bestDiff = -bestDiff
	}

	for _, v := range standardISOValues[1:] {
		diff := iso - int(v)
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			nearest = v
		}
	}

	return nearest
}

// awbToLightSource はAWBモードをEXIFのLightSource値に変換する
func awbToLightSource(awbMode int) uint16 {
	switch awbMode {
	case camera.AWBIncandescent, camera.AWBTungsten, camera.AWBIndoor:
		return 3 // Tungsten
	case camera.AWBFluorescent:
		return 2 // Fluorescent
	case camera.AWBDaylight:
		return 1 // Daylight
	case camera.AWBCloudy:
		return 10 // Cloudy weather
	default:
		return 0 // Unknown
	}
}

// exifTimestamp はEXIFの日時表記 (YYYY:MM:DD HH:MM:SS) を返す
func exifTimestamp(t time.Time) string {
	return t.Format("2006:01:02 15:04:05")
}

// embedEXIF はJPEGデータにEXIF APP1セグメントを埋め込んで返す
// 撮影時刻・ISO・光源・撮影サマリを記録する
func embedEXIF(jpegData []byte, meta Metadata) ([]byte, error) {
	jmp := jpegstructure.NewJpegMediaParser()
	intfc, err := jmp.ParseBytes(jpegData)
	if err != nil {
		return nil, fmt.Errorf("JPEG構造の解析に失敗: %w", err)
	}
	sl := intfc.(*jpegstructure.SegmentList)

	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("IFDマッピングの作成に失敗: %w", err)
	}
	ti := exif.NewTagIndex()
	rootIb := exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)

	description := fmt.Sprintf("Bird detection capture (score %.3f)", meta.Score)
	if err := rootIb.SetStandardWithName("ImageDescription", description); err != nil {
		return nil, fmt.Errorf("ImageDescriptionの設定に失敗: %w", err)
	}
	if err := rootIb.SetStandardWithName("Software", "torimi"); err != nil {
		return nil, fmt.Errorf("Softwareの設定に失敗: %w", err)
	}
	if err := rootIb.SetStandardWithName("DateTime", exifTimestamp(meta.CapturedAt)); err != nil {
		return nil, fmt.Errorf("DateTimeの設定に失敗: %w", err)
	}

	exifIb, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD/Exif")
	if err != nil {
		return nil, fmt.Errorf("Exif IFDの作成に失敗: %w", err)
	}

	if err := exifIb.SetStandardWithName("DateTimeOriginal", exifTimestamp(meta.CapturedAt)); err != nil {
		return nil, fmt.Errorf("DateTimeOriginalの設定に失敗: %w", err)
	}

	lightSource := awbToLightSource(meta.Tuning.WhiteBalanceMode)
	if err := exifIb.SetStandardWithName("LightSource", []uint16{lightSource}); err != nil {
		return nil, fmt.Errorf("LightSourceの設定に失敗: %w", err)
	}

	if iso := gainToISO(meta.Tuning.Gain); iso > 0 {
		if err := exifIb.SetStandardWithName("ISOSpeedRatings", []uint16{iso}); err != nil {
			return nil, fmt.Errorf("ISOSpeedRatingsの設定に失敗: %w", err)
		}
	}

	if meta.Tuning.Exposure != camera.Unset {
		exposure := []exifcommon.Rational{{
			Numerator:   uint32(meta.Tuning.Exposure),
			Denominator: 1000000, // マイクロ秒 → 秒
		}}
		if err := exifIb.SetStandardWithName("ExposureTime", exposure); err != nil {
			return nil, fmt.Errorf("ExposureTimeの設定に失敗: %w", err)
		}
	}

	if err := sl.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("EXIFセグメントの設定に失敗: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := sl.Write(buf); err != nil {
		return nil, fmt.Errorf("JPEGの書き出しに失敗: %w", err)
	}

	return buf.Bytes(), nil
}
