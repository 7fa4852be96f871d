package geomagnetic

// Piecewise maps x through ordered (x, y) breakpoints with linear
// interpolation between them. Values outside the table take the nearest end.
func Piecewise(x float64, table [][2]float64) float64 {
	if len(table) == 0 {
		return 0
	}
	if x <= table[0][0] {
		return table[0][1]
	}
	last := table[len(table)-1]
	if x >= last[0] {
		return last[1]
	}
	for i := 1; i < len(table); i++ {
		x0, y0 := table[i-1][0], table[i-1][1]
		x1, y1 := table[i][0], table[i][1]
		if x <= x1 {
			if x1 == x0 {
				return y1
			}
			return y0 + (y1-y0)*(x-x0)/(x1-x0)
		}
	}
	return last[1]
}
