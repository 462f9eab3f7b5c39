package voice

import "testing"

func TestBuiltinRegistry(t *testing.T) {
	r, err := Builtin("am_michael")
	if err != nil {
		t.Fatalf("Builtin 失败: %v", err)
	}
	if len(r.IDs()) != 25 {
		t.Errorf("期望 25 个内置音色，得到 %d", len(r.IDs()))
	}
	p, ok := r.Get("bf_emma")
	if !ok || p.Lang != "b" || p.Accent != "British" {
		t.Errorf("bf_emma = %+v, ok=%v", p, ok)
	}
	if r.Has("xx_unknown") {
		t.Error("不存在的音色不应返回 true")
	}
	if r.Default() != "am_michael" {
		t.Errorf("Default = %s", r.Default())
	}
}

func TestRegistryRejectsBadInput(t *testing.T) {
	if _, err := Builtin("nope"); err == nil {
		t.Error("默认音色不存在时应返回错误")
	}
	dup := []Profile{{ID: "a"}, {ID: "a"}}
	if _, err := NewRegistry(dup, "a"); err == nil {
		t.Error("重复 ID 应返回错误")
	}
}

func TestRegistryIsImmutable(t *testing.T) {
	r, _ := Builtin("am_michael")
	all := r.All()
	delete(all, "am_michael")
	ids := r.IDs()
	ids[0] = "mutated"

	if !r.Has("am_michael") {
		t.Error("修改 All() 的返回值不应影响注册表")
	}
	if r.IDs()[0] == "mutated" {
		t.Error("修改 IDs() 的返回值不应影响注册表")
	}
}

func TestPreviewText(t *testing.T) {
	r, _ := Builtin("am_michael")
	if got := r.PreviewText("hm_psi"); got == r.PreviewText("am_adam") {
		t.Error("印地语音色应使用印地语试听文本")
	}
	if got := r.PreviewText("unknown"); got != previewTexts["a"] {
		t.Errorf("未知音色应回退到英语文本，得到 %q", got)
	}
}

func TestBuiltinOverrides(t *testing.T) {
	sid := 40
	zero := 0
	r, err := Builtin("af_narrator",
		Override{ID: "af_narrator", Name: "Narrator", Lang: "b", SpeakerID: &sid},
		Override{ID: "am_michael", Style: "Audiobook"},
		Override{ID: "bf_emma", SpeakerID: &zero},
	)
	if err != nil {
		t.Fatal(err)
	}

	if n := len(r.IDs()); n != 26 {
		t.Errorf("len(IDs) = %d, want 26", n)
	}
	p, ok := r.Get("af_narrator")
	if !ok || p.Name != "Narrator" || p.Lang != "b" || p.SpeakerID != 40 {
		t.Errorf("af_narrator = %+v", p)
	}
	if r.PreviewText("af_narrator") != previewTexts["b"] {
		t.Errorf("PreviewText 应使用覆盖后的语言")
	}

	m, _ := r.Get("am_michael")
	if m.Style != "Audiobook" || m.Name != "Michael" || m.SpeakerID != 16 {
		t.Errorf("am_michael = %+v", m)
	}
	if e, _ := r.Get("bf_emma"); e.SpeakerID != 0 {
		t.Errorf("bf_emma SpeakerID = %d, want 0", e.SpeakerID)
	}

	// 内置表本身不受影响
	b, err := Builtin("am_michael")
	if err != nil {
		t.Fatal(err)
	}
	if orig, _ := b.Get("am_michael"); orig.Style != "Narrator" {
		t.Errorf("覆盖不应修改内置表: %+v", orig)
	}
}

func TestBuiltinOverridesRejectBadInput(t *testing.T) {
	neg := -1
	tests := []struct {
		name string
		o    Override
	}{
		{"empty id", Override{Name: "x"}},
		{"new without speaker", Override{ID: "xx_new"}},
		{"negative speaker", Override{ID: "am_adam", SpeakerID: &neg}},
	}
	for _, tt := range tests {
		if _, err := Builtin("am_michael", tt.o); err == nil {
			t.Errorf("%s: 期望错误", tt.name)
		}
	}
}
