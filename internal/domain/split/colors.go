package split

// palette assigns stable colors to ranked series in selection order.
var palette = []string{
	"#e24a42",
	"#3366cc",
	"#22aa99",
	"#f5a623",
	"#8e44ad",
	"#16a085",
	"#d81b60",
	"#5e97f6",
	"#ff7043",
	"#9ccc65",
	"#26c6da",
	"#ab47bc",
	"#ffa726",
	"#66bb6a",
	"#ec407a",
	"#7e57c2",
	"#29b6f6",
	"#d4e157",
	"#8d6e63",
	"#78909c",
}

// SeriesColor returns the palette color for the i-th ranked series.
func SeriesColor(i int) string {
	if i < 0 {
		i = 0
	}
	return palette[i%len(palette)]
}
