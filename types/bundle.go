package types

// BundleCategory classifies an emitted script bundle.
type BundleCategory string

// Bundle categories. Every bundle falls into exactly one;
// CategoryFeature is the default.
const (
	CategoryMain     BundleCategory = "main"
	CategoryVendor   BundleCategory = "vendor"
	CategoryCritical BundleCategory = "critical"
	CategoryPage     BundleCategory = "page"
	CategoryFeature  BundleCategory = "feature"
)

// BundleCategories lists every category in report order.
func BundleCategories() []BundleCategory {
	return []BundleCategory{CategoryMain, CategoryVendor, CategoryCritical, CategoryPage, CategoryFeature}
}

// BundleRecord is one emitted script bundle checked against its budget.
// Recomputed every build.
type BundleRecord struct {
	Name           string         `json:"name"`
	Category       BundleCategory `json:"category"`
	Size           int64          `json:"size"`
	GzipSize       int64          `json:"gzip_size"`
	Budget         int64          `json:"budget"`
	GzipBudget     int64          `json:"gzip_budget"`
	Usage          float64        `json:"usage"`
	GzipUsage      float64        `json:"gzip_usage"`
	OverBudget     bool           `json:"over_budget"`
	OverGzipBudget bool           `json:"over_gzip_budget"`
}

// FileSize is the measured size of one emitted file.
type FileSize struct {
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	GzipSize   int64  `json:"gzipSize"`
	BrotliSize int64  `json:"brotliSize,omitempty"`
}

// BundleGroup aggregates the files of one output category (js, css, assets).
type BundleGroup struct {
	Files         []FileSize `json:"files"`
	TotalOriginal int64      `json:"totalOriginal"`
	TotalGzipped  int64      `json:"totalGzipped"`
	TotalBrotli   int64      `json:"totalBrotli,omitempty"`
}

// Add appends a file and updates the totals.
func (g *BundleGroup) Add(f FileSize) {
	g.Files = append(g.Files, f)
	g.TotalOriginal += f.Size
	g.TotalGzipped += f.GzipSize
	g.TotalBrotli += f.BrotliSize
}

// CompressionRatio returns 1 - gzip/raw, or 0 for an empty group.
func (g BundleGroup) CompressionRatio() float64 {
	if g.TotalOriginal == 0 {
		return 0
	}
	return 1 - float64(g.TotalGzipped)/float64(g.TotalOriginal)
}
