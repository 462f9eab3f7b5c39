// Package voice 提供启动时构建、之后只读的音色注册表。
package voice

import (
	"fmt"
	"sort"
)

// Profile 描述一个可选音色。
type Profile struct {
	ID     string `json:"-"`
	Name   string `json:"name"`
	Gender string `json:"gender"`
	Accent string `json:"accent"`
	Style  string `json:"style"`
	// Lang Kokoro 语言代码：a=美式英语，b=英式英语，h=印地语。
	Lang string `json:"lang"`
	// SpeakerID 在 Kokoro 多语言模型 voices.bin 中的说话人编号。
	SpeakerID int `json:"-"`
}

// 各语言的试听文本。
var previewTexts = map[string]string{
	"a": "Hello! This is a sample of my voice.",
	"b": "Hello! This is a sample of my voice.",
	"h": "नमस्ते! यह मेरी आवाज़ का एक नमूना है।",
}

// builtinProfiles 内置音色表，SpeakerID 对应 kokoro-multi-lang-v1_0。
var builtinProfiles = []Profile{
	// 美式英语 - 女声
	{ID: "af_heart", Name: "Heart", Gender: "Female", Accent: "American", Style: "Warm & Friendly", Lang: "a", SpeakerID: 3},
	{ID: "af_bella", Name: "Bella", Gender: "Female", Accent: "American", Style: "Elegant", Lang: "a", SpeakerID: 2},
	{ID: "af_nicole", Name: "Nicole", Gender: "Female", Accent: "American", Style: "Professional", Lang: "a", SpeakerID: 6},
	{ID: "af_sarah", Name: "Sarah", Gender: "Female", Accent: "American", Style: "Casual", Lang: "a", SpeakerID: 9},
	{ID: "af_sky", Name: "Sky", Gender: "Female", Accent: "American", Style: "Bright", Lang: "a", SpeakerID: 10},
	// 美式英语 - 男声
	{ID: "am_adam", Name: "Adam", Gender: "Male", Accent: "American", Style: "Confident", Lang: "a", SpeakerID: 11},
	{ID: "am_michael", Name: "Michael", Gender: "Male", Accent: "American", Style: "Narrator", Lang: "a", SpeakerID: 16},
	{ID: "am_eric", Name: "Eric", Gender: "Male", Accent: "American", Style: "Deep", Lang: "a", SpeakerID: 13},
	{ID: "am_fenrir", Name: "Fenrir", Gender: "Male", Accent: "American", Style: "Dramatic", Lang: "a", SpeakerID: 14},
	{ID: "am_liam", Name: "Liam", Gender: "Male", Accent: "American", Style: "Youthful", Lang: "a", SpeakerID: 15},
	{ID: "am_onyx", Name: "Onyx", Gender: "Male", Accent: "American", Style: "Rich", Lang: "a", SpeakerID: 17},
	{ID: "am_puck", Name: "Puck", Gender: "Male", Accent: "American", Style: "Playful", Lang: "a", SpeakerID: 18},
	{ID: "am_santa", Name: "Santa", Gender: "Male", Accent: "American", Style: "Jolly", Lang: "a", SpeakerID: 19},
	// 英式英语 - 女声
	{ID: "bf_emma", Name: "Emma", Gender: "Female", Accent: "British", Style: "Refined", Lang: "b", SpeakerID: 21},
	{ID: "bf_isabella", Name: "Isabella", Gender: "Female", Accent: "British", Style: "Sophisticated", Lang: "b", SpeakerID: 22},
	{ID: "bf_alice", Name: "Alice", Gender: "Female", Accent: "British", Style: "Classic", Lang: "b", SpeakerID: 20},
	{ID: "bf_lily", Name: "Lily", Gender: "Female", Accent: "British", Style: "Gentle", Lang: "b", SpeakerID: 23},
	// 英式英语 - 男声
	{ID: "bm_george", Name: "George", Gender: "Male", Accent: "British", Style: "Distinguished", Lang: "b", SpeakerID: 26},
	{ID: "bm_lewis", Name: "Lewis", Gender: "Male", Accent: "British", Style: "Friendly", Lang: "b", SpeakerID: 27},
	{ID: "bm_daniel", Name: "Daniel", Gender: "Male", Accent: "British", Style: "Authoritative", Lang: "b", SpeakerID: 24},
	{ID: "bm_fable", Name: "Fable", Gender: "Male", Accent: "British", Style: "Storyteller", Lang: "b", SpeakerID: 25},
	// 印地语
	{ID: "hf_alpha", Name: "Alpha", Gender: "Female", Accent: "Hindi", Style: "Clear", Lang: "h", SpeakerID: 32},
	{ID: "hf_beta", Name: "Beta", Gender: "Female", Accent: "Hindi", Style: "Expressive", Lang: "h", SpeakerID: 33},
	{ID: "hm_omega", Name: "Omega", Gender: "Male", Accent: "Hindi", Style: "Deep", Lang: "h", SpeakerID: 34},
	{ID: "hm_psi", Name: "Psi", Gender: "Male", Accent: "Hindi", Style: "Narrator", Lang: "h", SpeakerID: 35},
}

// Registry 只读音色表。构建后不再修改，可并发读取。
type Registry struct {
	profiles map[string]Profile
	ids      []string
	def      string
}

// NewRegistry 由给定音色列表构建注册表；defaultID 必须存在于列表中。
func NewRegistry(profiles []Profile, defaultID string) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("音色 ID 不能为空")
		}
		if _, dup := r.profiles[p.ID]; dup {
			return nil, fmt.Errorf("重复的音色 ID: %s", p.ID)
		}
		r.profiles[p.ID] = p
		r.ids = append(r.ids, p.ID)
	}
	sort.Strings(r.ids)

	if _, ok := r.profiles[defaultID]; !ok {
		return nil, fmt.Errorf("默认音色不存在: %s", defaultID)
	}
	r.def = defaultID
	return r, nil
}

// Override 配置中对内置音色的覆盖或新增。空字段保留内置值。
type Override struct {
	ID     string
	Name   string
	Gender string
	Accent string
	Style  string
	Lang   string
	// SpeakerID 为 nil 时保留内置编号；新增音色必须指定。
	SpeakerID *int
}

// Builtin 返回内置 Kokoro 音色注册表，并按顺序应用 overrides。
func Builtin(defaultID string, overrides ...Override) (*Registry, error) {
	profiles, err := merge(builtinProfiles, overrides)
	if err != nil {
		return nil, err
	}
	return NewRegistry(profiles, defaultID)
}

func merge(base []Profile, overrides []Override) ([]Profile, error) {
	profiles := append([]Profile(nil), base...)
	index := make(map[string]int, len(profiles))
	for i, p := range profiles {
		index[p.ID] = i
	}

	for _, o := range overrides {
		if o.ID == "" {
			return nil, fmt.Errorf("音色 ID 不能为空")
		}
		i, ok := index[o.ID]
		if !ok {
			if o.SpeakerID == nil {
				return nil, fmt.Errorf("新增音色 %s 必须指定 speaker_id", o.ID)
			}
			profiles = append(profiles, Profile{ID: o.ID, Name: o.ID, Lang: "a"})
			i = len(profiles) - 1
			index[o.ID] = i
		}

		p := &profiles[i]
		setIf(&p.Name, o.Name)
		setIf(&p.Gender, o.Gender)
		setIf(&p.Accent, o.Accent)
		setIf(&p.Style, o.Style)
		setIf(&p.Lang, o.Lang)
		if o.SpeakerID != nil {
			if *o.SpeakerID < 0 {
				return nil, fmt.Errorf("音色 %s 的 speaker_id 不能为负数", o.ID)
			}
			p.SpeakerID = *o.SpeakerID
		}
	}
	return profiles, nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Get 按 ID 查找音色。
func (r *Registry) Get(id string) (Profile, bool) {
	p, ok := r.profiles[id]
	return p, ok
}

// Has 判断音色是否存在。
func (r *Registry) Has(id string) bool {
	_, ok := r.profiles[id]
	return ok
}

// IDs 返回按字典序排列的全部音色 ID。
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

// All 返回 ID → 音色的副本。
func (r *Registry) All() map[string]Profile {
	out := make(map[string]Profile, len(r.profiles))
	for k, v := range r.profiles {
		out[k] = v
	}
	return out
}

// Default 返回默认音色 ID。
func (r *Registry) Default() string {
	return r.def
}

// SpeakerIDs 返回 ID → 说话人编号映射，供本地模型引擎使用。
func (r *Registry) SpeakerIDs() map[string]int {
	out := make(map[string]int, len(r.profiles))
	for k, v := range r.profiles {
		out[k] = v.SpeakerID
	}
	return out
}

// PreviewText 返回音色所属语言的试听文本。
func (r *Registry) PreviewText(id string) string {
	p, ok := r.profiles[id]
	if ok {
		if text, ok := previewTexts[p.Lang]; ok {
			return text
		}
	}
	return previewTexts["a"]
}
