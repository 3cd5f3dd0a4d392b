package cluster

import (
	"reflect"
	"testing"
)

func locale(name string, kv ...string) Locale {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return Locale{Name: name, Values: m}
}

func TestCluster_IdenticalAcrossLocales(t *testing.T) {
	en := locale("en", "save", "Save", "saveFile", "Save", "open", "Open")
	zh := locale("zh", "save", "保存", "saveFile", "保存", "open", "打开")

	res := Cluster([]Locale{en, zh}, Options{})

	if len(res.Groups) != 1 {
		t.Fatalf("groups = %+v, want 1 group", res.Groups)
	}
	g := res.Groups[0]
	if g.Canonical != "save" {
		t.Errorf("canonical = %q, want save", g.Canonical)
	}
	if !reflect.DeepEqual(g.Keys, []string{"save", "saveFile"}) {
		t.Errorf("keys = %v", g.Keys)
	}
	if g.Reason != ReasonIdentical || g.Score != 1 {
		t.Errorf("reason = %s score = %v", g.Reason, g.Score)
	}
	if len(res.Disagreements) != 0 {
		t.Errorf("unexpected disagreements: %+v", res.Disagreements)
	}
}

func TestCluster_DisagreeingLocaleNotMerged(t *testing.T) {
	en := locale("en", "close", "Close", "closeDialog", "Close")
	zh := locale("zh", "close", "关闭", "closeDialog", "关闭对话框窗口")

	res := Cluster([]Locale{en, zh}, Options{})

	if len(res.Groups) != 0 {
		t.Fatalf("groups = %+v, want none", res.Groups)
	}
	want := []Disagreement{{Locale: "en", Keys: []string{"close", "closeDialog"}}}
	if !reflect.DeepEqual(res.Disagreements, want) {
		t.Errorf("disagreements = %+v, want %+v", res.Disagreements, want)
	}
}

func TestCluster_IdenticalEverywhereSurvivesSimilarNoise(t *testing.T) {
	// a and b are identical in both locales; c is similar to them only in en.
	en := locale("en", "a", "Delete item", "b", "Delete item", "c", "Delete items")
	de := locale("de", "a", "Löschen", "b", "Löschen", "c", "Eintrag entfernen")

	res := Cluster([]Locale{en, de}, Options{})

	if len(res.Groups) != 1 || !reflect.DeepEqual(res.Groups[0].Keys, []string{"a", "b"}) {
		t.Fatalf("groups = %+v, want [a b]", res.Groups)
	}
	if len(res.Disagreements) != 1 || res.Disagreements[0].Locale != "en" {
		t.Errorf("disagreements = %+v", res.Disagreements)
	}
}

func TestCluster_OrderIndependent(t *testing.T) {
	en := locale("en", "ok", "OK", "confirm", "OK", "yes", "OK", "cancel", "Cancel", "dismiss", "Cancel")
	zh := locale("zh", "ok", "确定", "confirm", "确定", "yes", "确定", "cancel", "取消", "dismiss", "取消")

	a := Cluster([]Locale{en, zh}, Options{})
	b := Cluster([]Locale{zh, en}, Options{})

	if !reflect.DeepEqual(a.Groups, b.Groups) {
		t.Errorf("grouping depends on locale order:\n%+v\n%+v", a.Groups, b.Groups)
	}
	if len(a.Groups) != 2 {
		t.Fatalf("groups = %+v", a.Groups)
	}
	if a.Groups[0].Canonical != "cancel" || a.Groups[1].Canonical != "ok" {
		t.Errorf("canonicals = %s, %s", a.Groups[0].Canonical, a.Groups[1].Canonical)
	}
}

func TestCluster_SimilarValues(t *testing.T) {
	en := locale("en", "loadFailed", "Failed to load file", "loadFileFailed", "Failed to load file.")
	zh := locale("zh", "loadFailed", "加载文件失败", "loadFileFailed", "加载文件失败。")

	res := Cluster([]Locale{en, zh}, Options{})
	if len(res.Groups) != 1 {
		t.Fatalf("groups = %+v", res.Groups)
	}
	g := res.Groups[0]
	if g.Reason != ReasonSimilar {
		t.Errorf("reason = %s, want similar", g.Reason)
	}
	if g.Score < DefaultThreshold || g.Score >= 1 {
		t.Errorf("score = %v", g.Score)
	}
}

func TestCluster_ThresholdConfigurable(t *testing.T) {
	en := locale("en", "a", "Save file", "b", "Save files")
	res := Cluster([]Locale{en}, Options{Threshold: 0.99})
	if len(res.Groups) != 0 {
		t.Errorf("groups = %+v, want none at 0.99", res.Groups)
	}
	res = Cluster([]Locale{en}, Options{Threshold: 0.9})
	if len(res.Groups) != 1 {
		t.Errorf("groups = %+v, want one at 0.9", res.Groups)
	}
}

func TestCluster_MissingKeyIsSingleton(t *testing.T) {
	en := locale("en", "a", "Same", "b", "Same")
	zh := locale("zh", "a", "同")

	res := Cluster([]Locale{en, zh}, Options{})
	if len(res.Groups) != 0 {
		t.Errorf("groups = %+v, want none", res.Groups)
	}
	if !reflect.DeepEqual(res.Keys, []string{"a", "b"}) {
		t.Errorf("keys = %v", res.Keys)
	}
}

func TestCluster_EmptyValuesNeverGrouped(t *testing.T) {
	en := locale("en", "a", "", "b", "")
	res := Cluster([]Locale{en}, Options{})
	if len(res.Groups) != 0 {
		t.Errorf("groups = %+v, want none", res.Groups)
	}
}

func TestChooseCanonical(t *testing.T) {
	tests := []struct {
		keys       []string
		unused     map[string]bool
		preferUsed bool
		want       string
	}{
		{[]string{"save_file_button", "save_file", "saveFileNow"}, nil, false, "saveFileNow"},
		{[]string{"saveFile", "save"}, nil, false, "save"},
		{[]string{"beta", "alfa"}, nil, false, "alfa"},
		{[]string{"ok", "confirm"}, map[string]bool{"ok": true}, true, "confirm"},
		{[]string{"ok", "confirm"}, map[string]bool{"ok": true}, false, "ok"},
	}
	for _, tc := range tests {
		if got := ChooseCanonical(tc.keys, tc.unused, tc.preferUsed); got != tc.want {
			t.Errorf("ChooseCanonical(%v) = %q, want %q", tc.keys, got, tc.want)
		}
	}
}

func TestGroupReplaced(t *testing.T) {
	g := Group{Canonical: "b", Keys: []string{"a", "b", "c"}}
	if got := g.Replaced(); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("Replaced() = %v", got)
	}
}
