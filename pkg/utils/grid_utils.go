package utils

// FarmLayout 农场网格在屏幕上的布局
// 网格尺寸在首份快照到达后才确定，之前 Rows/Cols 为 0
type FarmLayout struct {
	OriginX  float64 // 网格左上角X坐标
	OriginY  float64 // 网格左上角Y坐标
	CellSize float64 // 每格边长
	Rows     int
	Cols     int
}

// NewFarmLayout 创建布局
func NewFarmLayout(originX, originY, cellSize float64) *FarmLayout {
	return &FarmLayout{OriginX: originX, OriginY: originY, CellSize: cellSize}
}

// Resize 设置网格行列数
func (l *FarmLayout) Resize(rows, cols int) {
	l.Rows = rows
	l.Cols = cols
}

// Size 返回网格占用的像素尺寸
func (l *FarmLayout) Size() (width, height float64) {
	return float64(l.Cols) * l.CellSize, float64(l.Rows) * l.CellSize
}

// ScreenToCell 将屏幕坐标转换为网格坐标
// 参数:
//   - x, y: 屏幕坐标
//
// 返回:
//   - row, col: 格子坐标
//   - isValid: 是否在网格范围内
func (l *FarmLayout) ScreenToCell(x, y float64) (row, col int, isValid bool) {
	if l.Rows <= 0 || l.Cols <= 0 || l.CellSize <= 0 {
		return 0, 0, false
	}

	width, height := l.Size()
	if x < l.OriginX || x >= l.OriginX+width || y < l.OriginY || y >= l.OriginY+height {
		return 0, 0, false
	}

	col = int((x - l.OriginX) / l.CellSize)
	row = int((y - l.OriginY) / l.CellSize)

	// 防止浮点误差越界
	col = min(max(col, 0), l.Cols-1)
	row = min(max(row, 0), l.Rows-1)

	return row, col, true
}

// CellOrigin 返回格子左上角的屏幕坐标
func (l *FarmLayout) CellOrigin(row, col int) (x, y float64) {
	return l.OriginX + float64(col)*l.CellSize, l.OriginY + float64(row)*l.CellSize
}

// CellCenter 返回格子中心的屏幕坐标
func (l *FarmLayout) CellCenter(row, col int) (centerX, centerY float64) {
	x, y := l.CellOrigin(row, col)
	return x + l.CellSize/2, y + l.CellSize/2
}
