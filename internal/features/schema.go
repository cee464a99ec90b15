package features

import (
	"strconv"
	"strings"
	"sync"

	"github.com/spaolacci/murmur3"
)

// HeaderColumns precede the feature columns of a weekly vector.
var HeaderColumns = []string{"starttime", "endtime", "user", "ITAdmin"}

type countOnly struct {
	col    string
	values []int
}

// family is one activity channel of the weekly feature layout.
type family struct {
	name string
	// act selects rows by activity code; 0 selects all rows.
	act         int
	filterCol   string
	filterVals  []int
	filterNames []string
	stats       []string
	counts      []countOnly
}

var pcCounts = countOnly{col: "pc", values: []int{PCOwn, PCShared, PCOther, PCSupervisor}}

var families = []family{
	{name: "allact", counts: []countOnly{pcCounts}},
	{name: "logon", act: ActLogon, counts: []countOnly{pcCounts}},
	{name: "usb", act: ActConnect, stats: []string{"usb_dur"}, counts: []countOnly{pcCounts}},
	{
		name:        "file",
		act:         ActFile,
		filterCol:   "file_type",
		filterVals:  []int{1, 2, 3, 4, 5, 6},
		filterNames: []string{"otherf", "compf", "phof", "docf", "txtf", "exef"},
		stats:       []string{"file_len", "file_depth", "file_nwords"},
		counts:      []countOnly{{col: "disk", values: []int{0, 1}}, pcCounts},
	},
	{
		name:   "email",
		act:    ActEmail,
		stats:  []string{"n_des", "n_atts", "n_exdes", "n_bccdes", "email_size", "email_text_slen", "email_text_nwords"},
		counts: []countOnly{{col: "Xemail", values: []int{1}}, {col: "exbccmail", values: []int{1}}, pcCounts},
	},
	{
		name:        "http",
		act:         ActHTTP,
		filterCol:   "http_type",
		filterVals:  []int{1, 2, 3, 4, 5, 6},
		filterNames: []string{"otherf", "socnetf", "cloudf", "jobf", "leakf", "hackf"},
		stats:       []string{"url_len", "url_depth", "http_c_len", "http_c_nwords"},
		counts:      []countOnly{pcCounts},
	},
}

// scope restricts a family to a time-bucket range.
type scope struct {
	prefix string
	match  func(bucket int) bool
}

var scopes = []scope{
	{prefix: "", match: func(int) bool { return true }},
	{prefix: "workhour", match: func(b int) bool { return b == TimeWorkday }},
	{prefix: "afterhour", match: func(b int) bool { return b == TimeAfterHours }},
	{prefix: "weekend", match: func(b int) bool { return b >= TimeWeekend }},
}

var (
	schemaOnce   sync.Once
	featureNames []string
	schemaHash   string
)

func buildSchema() {
	_, featureNames = computeFeatures(nil)
	cols := append([]string{"starttime", "endtime", "ITAdmin"}, featureNames...)
	h := murmur3.New64()
	_, _ = h.Write([]byte(strings.Join(cols, ",")))
	schemaHash = strconv.FormatUint(h.Sum64(), 16)
}

// FeatureNames returns the week-mode feature column names in order. The slice must not be modified.
func FeatureNames() []string {
	schemaOnce.Do(buildSchema)
	return featureNames
}

// Columns returns the full weekly vector layout: header then features.
func Columns() []string {
	names := FeatureNames()
	out := make([]string, 0, len(HeaderColumns)+len(names))
	out = append(out, HeaderColumns...)
	return append(out, names...)
}

// ClassifierColumns is Columns without "user", the layout the classifier scores.
func ClassifierColumns() []string {
	names := FeatureNames()
	out := make([]string, 0, 3+len(names))
	out = append(out, "starttime", "endtime", "ITAdmin")
	return append(out, names...)
}

// SchemaVersion fingerprints ClassifierColumns with murmur3.
func SchemaVersion() string {
	schemaOnce.Do(buildSchema)
	return schemaHash
}

// computeFeatures evaluates every family and scope over rows in column order.
// With nil rows it only yields the names (and zero values).
func computeFeatures(rows []*EncodedRow) ([]float64, []string) {
	var (
		values []float64
		names  []string
	)
	for _, fam := range families {
		for _, sc := range scopes {
			selected := make([]*EncodedRow, 0, len(rows))
			for _, r := range rows {
				if (fam.act == 0 || r.Act == fam.act) && sc.match(r.Time) {
					selected = append(selected, r)
				}
			}
			v, n := subfeatures(selected, sc.prefix+fam.name, fam)
			values = append(values, v...)
			names = append(names, n...)
		}
	}
	return values, names
}

func subfeatures(rows []*EncodedRow, fname string, fam family) ([]float64, []string) {
	n, stats, statNames := statsFor(rows, fname, fam)
	values := append([]float64{n}, stats...)
	names := append([]string{"n_" + fname}, statNames...)

	for i, fv := range fam.filterVals {
		filtered := make([]*EncodedRow, 0, len(rows))
		for _, r := range rows {
			if v, _ := r.Column(fam.filterCol); int(v) == fv {
				filtered = append(filtered, r)
			}
		}
		fn, fstats, fnames := statsFor(filtered, fam.filterNames[i], fam)
		values = append(values, fn)
		values = append(values, fstats...)
		names = append(names, fname+"_n_"+fam.filterNames[i])
		for _, sub := range fnames {
			names = append(names, fname+"_"+sub)
		}
	}
	return values, names
}

// statsFor returns the row count, the mean of each stat column (0 when empty) and the per-value
// counts of each count-only column, with their names prefixed by fn.
func statsFor(rows []*EncodedRow, fn string, fam family) (float64, []float64, []string) {
	values := make([]float64, 0, len(fam.stats)+8)
	names := make([]string, 0, len(fam.stats)+8)
	for _, col := range fam.stats {
		mean := 0.0
		if len(rows) > 0 {
			sum := 0.0
			for _, r := range rows {
				v, _ := r.Column(col)
				sum += v
			}
			mean = sum / float64(len(rows))
		}
		values = append(values, mean)
		names = append(names, fn+"_mean_"+col)
	}
	for _, c := range fam.counts {
		for _, want := range c.values {
			count := 0
			for _, r := range rows {
				if v, _ := r.Column(c.col); int(v) == want {
					count++
				}
			}
			values = append(values, float64(count))
			names = append(names, fn+"_n-"+c.col+strconv.Itoa(want))
		}
	}
	return float64(len(rows)), values, names
}
