package funcmap

import (
	"html/template"
	"strings"
	"testing"

	"blik/config"
)

func TestLandingURLNamespace(t *testing.T) {
	standalone := landingURLFunc(true)
	mounted := landingURLFunc(false)

	if got := standalone("index"); got != "/" {
		t.Fatalf("standalone index = %q", got)
	}
	if got := mounted("index"); got != "/landing/" {
		t.Fatalf("mounted index = %q", got)
	}
	// toggling the mode changes only the prefix, never the route name
	if got := standalone("dreyfus_model"); got != "/dreyfus-model" {
		t.Fatalf("standalone dreyfus_model = %q", got)
	}
	if got := mounted("dreyfus_model"); got != "/landing/dreyfus-model" {
		t.Fatalf("mounted dreyfus_model = %q", got)
	}
	// unknown names still resolve to a dashed path
	if got := standalone("some_new_page"); got != "/some-new-page" {
		t.Fatalf("unknown route = %q", got)
	}
}

func TestGetItem(t *testing.T) {
	if got := getItem(nil, "x"); got != nil {
		t.Fatalf("getItem(nil) = %v", got)
	}
	if got := getItem(map[string]any{"x": 1}, "x"); got != 1 {
		t.Fatalf("getItem present = %v", got)
	}
	if got := getItem(map[string]any{"x": 1}, "y"); got != nil {
		t.Fatalf("getItem missing = %v", got)
	}
	// non-string keyed maps are reachable through their string form
	if got := getItem(map[int]string{3: "c"}, 3); got != "c" {
		t.Fatalf("getItem int key = %v", got)
	}
}

func TestToJSON(t *testing.T) {
	if got := toJSON(map[string]any{"a": 1}); got != template.JS(`{"a":1}`) {
		t.Fatalf("toJSON map = %q", got)
	}
	// unmarshalable input falls back to null, not an error
	if got := toJSON(func() {}); got != template.JS("null") {
		t.Fatalf("toJSON func = %q", got)
	}
	if got := toJSON("</script>"); strings.Contains(string(got), "</script>") {
		t.Fatalf("toJSON did not escape closing tag: %q", got)
	}
}

func TestMulFailsSoft(t *testing.T) {
	if got := mul(3, 2); got != 6.0 {
		t.Fatalf("mul(3,2) = %v", got)
	}
	if got := mul("abc", 2); got != 0 {
		t.Fatalf("mul(abc,2) = %v", got)
	}
	if got := mul("2.5", 2); got != 5.0 {
		t.Fatalf("mul(\"2.5\",2) = %v", got)
	}
}

func TestSubtract(t *testing.T) {
	if got := subtract(5, 2); got != 3.0 {
		t.Fatalf("subtract(5,2) = %v", got)
	}
	if got := subtract(nil, 2); got != 0 {
		t.Fatalf("subtract(nil,2) = %v", got)
	}
}

func TestAverage(t *testing.T) {
	if got := average([]any{}); got != 0 {
		t.Fatalf("average empty = %v", got)
	}
	if got := average([]any{2, 4, nil, 6}); got != 4.0 {
		t.Fatalf("average with nil = %v", got)
	}
	if got := average([]any{2, "x"}); got != 0 {
		t.Fatalf("average poisoned = %v", got)
	}
	if got := average("not a list"); got != 0 {
		t.Fatalf("average non-list = %v", got)
	}
	if got := average([]float64{1.5, 2.5}); got != 2.0 {
		t.Fatalf("average typed slice = %v", got)
	}
}

func TestOthersAverage(t *testing.T) {
	m := map[string]any{"self": 5, "peer": 3, "manager": 7}
	if got := othersAverage(m); got != 5.0 {
		t.Fatalf("othersAverage = %v", got)
	}
	if got := othersAverage(map[string]any{"self": 5}); got != 0 {
		t.Fatalf("othersAverage self-only = %v", got)
	}
	if got := othersAverage(nil); got != 0 {
		t.Fatalf("othersAverage nil = %v", got)
	}
}

func TestPercentage(t *testing.T) {
	if got := percentage(1, 3); got != 33 {
		t.Fatalf("percentage(1,3) = %v", got)
	}
	if got := percentage(5, 0); got != 0 {
		t.Fatalf("percentage zero total = %v", got)
	}
}

func TestCountValue(t *testing.T) {
	xs := []any{1, 2.0, "2", 2}
	if got := countValue(xs, 2); got != 2 {
		t.Fatalf("countValue numeric = %d", got)
	}
	if got := countValue(xs, "2"); got != 1 {
		t.Fatalf("countValue string = %d", got)
	}
	if got := countValue(nil, 2); got != 0 {
		t.Fatalf("countValue nil = %d", got)
	}
}

func TestGetRatingLabel(t *testing.T) {
	cfg := `{"labels": {"1": "Novice", "5": "Expert"}}`
	if got := getRatingLabel(cfg, 5); got != "Expert" {
		t.Fatalf("label from JSON string = %q", got)
	}
	decoded := map[string]any{"labels": map[string]any{"1": "Novice"}}
	if got := getRatingLabel(decoded, 1.0); got != "Novice" {
		t.Fatalf("label from decoded config = %q", got)
	}
	if got := getRatingLabel(cfg, 3); got != "" {
		t.Fatalf("missing label = %q", got)
	}
	if got := getRatingLabel("not json", 1); got != "" {
		t.Fatalf("bad config = %q", got)
	}
}

func TestSortByFrequency(t *testing.T) {
	pairs := sortByFrequency([]any{"b", "a", "b", "c", "a", "b"})
	if len(pairs) != 3 || pairs[0].Key != "b" {
		t.Fatalf("most frequent first: %v", pairs)
	}
	// ties keep first appearance
	tied := sortByFrequency([]any{"x", "y", "x", "y"})
	if tied[0].Key != "x" || tied[1].Key != "y" {
		t.Fatalf("tie order: %v", tied)
	}
}

func TestSortCategories(t *testing.T) {
	pairs := sortCategories(map[string]any{
		"direct_report": 1, "self": 2, "zeta": 3, "peer": 4, "alpha": 5,
	})
	var keys []string
	for _, p := range pairs {
		keys = append(keys, p.Key)
	}
	want := "self peer direct_report alpha zeta"
	if got := strings.Join(keys, " "); got != want {
		t.Fatalf("order = %q, want %q", got, want)
	}
}

func TestPersonalize(t *testing.T) {
	in := "This person communicates well. I trust this person."
	if got := personalize(in, "Nora Berg"); got != "Nora communicates well. I trust Nora." {
		t.Fatalf("personalize = %q", got)
	}
	if got := personalize(in, "  "); got != in {
		t.Fatalf("empty name should leave text alone: %q", got)
	}
}

func TestAdd(t *testing.T) {
	if got := add(1, 2); got != 3.0 {
		t.Fatalf("add numbers = %v", got)
	}
	if got := add("a", "b"); got != "ab" {
		t.Fatalf("add strings = %v", got)
	}
	if got := add("a", 1); got != 0 {
		t.Fatalf("add mixed = %v", got)
	}
}

func TestBillingContext(t *testing.T) {
	ctx := BillingContext(config.StripeConfig{PriceIDSaaS: "price_123"})
	if ctx["STRIPE_PRICE_ID_SAAS"] != "price_123" {
		t.Fatalf("saas price missing: %v", ctx)
	}
	if ctx["HAS_STRIPE_CONFIGURED"] != true {
		t.Fatalf("configured flag: %v", ctx)
	}
	empty := BillingContext(config.StripeConfig{})
	if empty["HAS_STRIPE_CONFIGURED"] != false {
		t.Fatalf("unconfigured flag: %v", empty)
	}
}

// The helpers have to survive template execution with hostile data.
func TestFuncMapRendersWithoutError(t *testing.T) {
	tmpl, err := template.New("t").Funcs(New(Options{})).Parse(
		`{{mul .bad 2}}|{{average .list}}|{{if get_item .missing "k"}}hit{{else}}miss{{end}}|{{landing_url "privacy"}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var sb strings.Builder
	data := map[string]any{"bad": "abc", "list": []any{2, 4, nil, 6}}
	if err := tmpl.Execute(&sb, data); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := sb.String(); got != "0|4|miss|/landing/privacy" {
		t.Fatalf("render = %q", got)
	}
}
