// Package funcmap provides the template helpers shared by the dashboard and
// landing renderers. Helpers are fail-soft: malformed input yields a zero
// value, never an error or panic mid-render.
package funcmap

import (
	"encoding/json"
	"fmt"
	"html/template"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"blik/config"
	"blik/core/store"
)

// Options fixes the deployment-dependent pieces at construction; helpers
// never read ambient state.
type Options struct {
	// StandaloneLanding serves the landing routes from the site root
	// instead of the /landing prefix.
	StandaloneLanding bool
}

func New(opts Options) template.FuncMap {
	return template.FuncMap{
		"landing_url":       landingURLFunc(opts.StandaloneLanding),
		"get_item":          getItem,
		"to_json":           toJSON,
		"mul":               mul,
		"subtract":          subtract,
		"add":               add,
		"average":           average,
		"others_average":    othersAverage,
		"percentage":        percentage,
		"count_value":       countValue,
		"get_rating_label":  getRatingLabel,
		"sort_by_frequency": sortByFrequency,
		"sort_categories":   sortCategories,
		"personalize":       personalize,
	}
}

// BillingContext is merged into every page render so templates can toggle
// plan buttons without reaching into configuration themselves.
func BillingContext(cfg config.StripeConfig) map[string]any {
	return map[string]any{
		"STRIPE_PRICE_ID_SAAS":       cfg.PriceIDSaaS,
		"STRIPE_PRICE_ID_ENTERPRISE": cfg.PriceIDEnterprise,
		"HAS_STRIPE_CONFIGURED":      cfg.Configured(),
	}
}

var landingRoutes = map[string]string{
	"index":         "",
	"open_source":   "open-source",
	"dreyfus_model": "dreyfus-model",
	"eu_tech":       "eu-tech",
	"privacy":       "privacy",
	"og_image":      "og-image.png",
	"robots":        "robots.txt",
	"sitemap":       "sitemap.xml",
}

// landingURLFunc resolves a landing route name to its path. Standalone mode
// serves the pages at the site root; inside the full app the same pages
// live under /landing. The route name itself never changes with the mode.
func landingURLFunc(standalone bool) func(string) string {
	return func(name string) string {
		path, ok := landingRoutes[name]
		if !ok {
			path = strings.ReplaceAll(name, "_", "-")
		}
		if standalone {
			return "/" + path
		}
		return "/landing/" + path
	}
}

// getItem looks a key up in a map-like container. A nil container or a
// missing key yields nil. Keys compare by their string form.
func getItem(container, key any) any {
	m, ok := toStringMap(container)
	if !ok {
		return nil
	}
	return m[fmt.Sprint(key)]
}

// toJSON encodes a value for embedding in a script block. Go's encoder
// escapes <, > and & so the output cannot break out of the tag. Marshal
// failure yields the JSON null literal.
func toJSON(v any) template.JS {
	raw, err := json.Marshal(v)
	if err != nil {
		return template.JS("null")
	}
	return template.JS(raw)
}

func mul(value, arg any) any {
	a, okA := toFloat(value)
	b, okB := toFloat(arg)
	if !okA || !okB {
		return 0
	}
	return a * b
}

func subtract(value, arg any) any {
	a, okA := toFloat(value)
	b, okB := toFloat(arg)
	if !okA || !okB {
		return 0
	}
	return a - b
}

// add sums numbers and concatenates strings, in that order of preference.
func add(value, arg any) any {
	a, okA := toFloat(value)
	b, okB := toFloat(arg)
	if okA && okB {
		return a + b
	}
	sa, okA := value.(string)
	sb, okB := arg.(string)
	if okA && okB {
		return sa + sb
	}
	return 0
}

// average returns the mean of a list, ignoring nil entries. An entry that
// is neither nil nor numeric poisons the whole list to 0, and an empty
// list is 0 as well.
func average(values any) any {
	xs, ok := toSlice(values)
	if !ok {
		return 0
	}
	var sum float64
	var n int
	for _, v := range xs {
		if v == nil {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			return 0
		}
		sum += f
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// othersAverage averages a category score map excluding exactly the self
// key.
func othersAverage(categories any) any {
	m, ok := toStringMap(categories)
	if !ok || len(m) == 0 {
		return 0
	}
	var sum float64
	var n int
	for k, v := range m {
		if k == store.CategorySelf || v == nil {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			return 0
		}
		sum += f
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// percentage rounds value/total to whole percent; a zero or non-numeric
// total is 0.
func percentage(value, total any) any {
	part, okA := toFloat(value)
	whole, okB := toFloat(total)
	if !okA || !okB || whole == 0 {
		return 0
	}
	return int(math.Round(part / whole * 100))
}

// countValue counts occurrences in a list. Numbers compare numerically, so
// 2 matches 2.0.
func countValue(list, value any) int {
	xs, ok := toSlice(list)
	if !ok {
		return 0
	}
	var n int
	for _, v := range xs {
		if valuesEqual(v, value) {
			n++
		}
	}
	return n
}

// getRatingLabel resolves a rating value against the labels table in a
// question's config. The config may arrive decoded or as its stored JSON
// string.
func getRatingLabel(questionConfig, rating any) string {
	if raw, ok := questionConfig.(string); ok {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return ""
		}
		questionConfig = decoded
	}
	cfg, ok := toStringMap(questionConfig)
	if !ok {
		return ""
	}
	labels, ok := toStringMap(cfg["labels"])
	if !ok {
		return ""
	}
	f, ok := toFloat(rating)
	if !ok {
		return ""
	}
	v, ok := labels[strconv.Itoa(int(f))]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Pair is an ordered key/value emitted by the sorting helpers, since Go
// templates cannot range a map in a chosen order.
type Pair struct {
	Key   string
	Value any
}

// sortByFrequency orders a value→count map by count, highest first, ties
// alphabetically. A plain list is tallied first, ties keeping first
// appearance.
func sortByFrequency(distribution any) []Pair {
	if m, ok := toStringMap(distribution); ok {
		pairs := make([]Pair, 0, len(m))
		for k, v := range m {
			pairs = append(pairs, Pair{Key: k, Value: v})
		}
		sort.SliceStable(pairs, func(i, j int) bool {
			fi, _ := toFloat(pairs[i].Value)
			fj, _ := toFloat(pairs[j].Value)
			if fi != fj {
				return fi > fj
			}
			return pairs[i].Key < pairs[j].Key
		})
		return pairs
	}
	xs, ok := toSlice(distribution)
	if !ok {
		return nil
	}
	counts := make(map[string]int)
	var order []string
	for _, v := range xs {
		k := fmt.Sprint(v)
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k]++
	}
	pairs := make([]Pair, 0, len(order))
	for _, k := range order {
		pairs = append(pairs, Pair{Key: k, Value: counts[k]})
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Value.(int) > pairs[j].Value.(int)
	})
	return pairs
}

// sortCategories orders a category map self, peer, manager, direct report,
// then anything else alphabetically.
func sortCategories(categories any) []Pair {
	m, ok := toStringMap(categories)
	if !ok || len(m) == 0 {
		return nil
	}
	known := make(map[string]bool, len(store.ReviewerCategories))
	out := make([]Pair, 0, len(m))
	for _, cat := range store.ReviewerCategories {
		known[cat] = true
		if v, present := m[cat]; present {
			out = append(out, Pair{Key: cat, Value: v})
		}
	}
	var rest []string
	for k := range m {
		if !known[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, Pair{Key: k, Value: m[k]})
	}
	return out
}

// personalize swaps the neutral "This person" wording for the reviewee's
// first name.
func personalize(text, name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return text
	}
	first := fields[0]
	text = strings.ReplaceAll(text, "This person", first)
	return strings.ReplaceAll(text, "this person", first)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func toSlice(v any) ([]any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case []any:
		return x, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toStringMap(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return x, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
	}
	return out, true
}

// valuesEqual compares like Python ==: strings only equal strings, numbers
// compare across numeric types.
func valuesEqual(a, b any) bool {
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	if _, ok := b.(string); ok {
		return false
	}
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}
