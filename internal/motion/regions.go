package motion

import "sort"

// findRegions はバイナリマスクから8近傍の連結成分を抽出する
// minAreaピクセル未満の成分はノイズとして捨て、面積の大きい順に返す。
// scaleX/scaleYで縮小面の座標をキャプチャ解像度に戻す。
func findRegions(mask []bool, w, h int, scaleX, scaleY float64, minArea int) []Region {
	visited := make([]bool, len(mask))
	var regions []Region
	var stack []int

	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}

		// 反復版フラッドフィル（再帰だと大きな成分でスタックが深くなる）
		minX, minY := w, h
		maxX, maxY := 0, 0
		count := 0
		stack = stack[:0]
		stack = append(stack, start)
		visited[start] = true

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			count++

			x := idx % w
			y := idx / w
			if x < minX {
				minX = x
			}
			if y < minY {
				minY = y
			}
			if x > maxX {
				maxX = x
			}
			if y > maxY {
				maxY = y
			}

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					nidx := ny*w + nx
					if mask[nidx] && !visited[nidx] {
						visited[nidx] = true
						stack = append(stack, nidx)
					}
				}
			}
		}

		if count < minArea {
			continue
		}

		regions = append(regions, Region{
			X:      int(float64(minX) * scaleX),
			Y:      int(float64(minY) * scaleY),
			Width:  int(float64(maxX-minX+1) * scaleX),
			Height: int(float64(maxY-minY+1) * scaleY),
		})
	}

	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Area() > regions[j].Area()
	})

	return regions
}
