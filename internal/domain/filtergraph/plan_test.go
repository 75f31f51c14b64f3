package filtergraph

import (
	"slices"
	"strings"
	"testing"

	"github.com/forPelevin/cliper/internal/types"
)

func argAfter(args []string, flag string) []string {
	var out []string
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			out = append(out, args[i+1])
		}
	}
	return out
}

func basePlan() Plan {
	return Plan{
		Source:   "/in/video.mp4",
		Start:    10.5,
		Duration: 30.2,
		Aspect:   types.AspectVertical,
		Output:   "/out/video/1.mp4",
	}
}

func defaultStyle(t *testing.T) Style {
	t.Helper()
	st, ok := NewStyles(nil).Lookup("")
	if !ok {
		t.Fatal("default style missing")
	}
	return st
}

func TestBuild_StaticCropSinglePass(t *testing.T) {
	passes, err := Build(basePlan())
	if err != nil {
		t.Fatal(err)
	}
	if len(passes) != 1 {
		t.Fatalf("expected 1 pass, got %d", len(passes))
	}
	args := passes[0].Args
	if got := argAfter(args, "-filter_complex"); len(got) != 1 || got[0] != "[0:v]crop=ih*9/16:ih,scale=1080:1920[v]" {
		t.Fatalf("unexpected graph: %v", got)
	}
	if got := argAfter(args, "-ss"); !slices.Equal(got, []string{"10.500"}) {
		t.Fatalf("unexpected -ss: %v", got)
	}
	if got := argAfter(args, "-map"); !slices.Equal(got, []string{"[v]", "0:a:0?"}) {
		t.Fatalf("unexpected maps: %v", got)
	}
	if args[len(args)-1] != "/out/video/1.mp4" {
		t.Fatalf("output must be last arg, got %q", args[len(args)-1])
	}
}

func TestBuild_OriginalAspectNoFilters(t *testing.T) {
	p := basePlan()
	p.Aspect = types.AspectOriginal
	passes, err := Build(p)
	if err != nil {
		t.Fatal(err)
	}
	args := passes[0].Args
	if slices.Contains(args, "-filter_complex") {
		t.Fatalf("unexpected filter graph: %v", args)
	}
	if got := argAfter(args, "-map"); !slices.Equal(got, []string{"0:v:0", "0:a:0?"}) {
		t.Fatalf("unexpected maps: %v", got)
	}
}

func TestBuild_LogoAndSubtitlesSplit(t *testing.T) {
	p := basePlan()
	p.Logo = &LogoSpec{Path: "/assets/logo.png", Position: types.LogoTopRight, Scale: 0.1}
	p.Subtitles = &SubtitleSpec{Path: "/out/video/1.srt", Style: defaultStyle(t)}
	p.Pass1Output = "/out/video/1.pass1.mp4"

	passes, err := Build(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(passes) != 2 {
		t.Fatalf("expected 2 passes, got %d", len(passes))
	}

	p1 := passes[0].Args
	graph := argAfter(p1, "-filter_complex")[0]
	if strings.Contains(graph, "subtitles=") {
		t.Fatalf("pass 1 must not burn subtitles: %s", graph)
	}
	if !strings.Contains(graph, "[1:v]scale=-1:192[logo]") || !strings.Contains(graph, "overlay=W-w-20:20") {
		t.Fatalf("unexpected logo graph: %s", graph)
	}
	if !slices.Contains(p1, "-sn") {
		t.Fatalf("pass 1 must drop subtitle streams: %v", p1)
	}
	if passes[0].Output != p.Pass1Output || p1[len(p1)-1] != p.Pass1Output {
		t.Fatalf("pass 1 must write %s", p.Pass1Output)
	}

	p2 := passes[1].Args
	if got := argAfter(p2, "-i"); !slices.Equal(got, []string{p.Pass1Output}) {
		t.Fatalf("pass 2 must read pass-1 output only, got %v", got)
	}
	if got := argAfter(p2, "-c:a"); !slices.Equal(got, []string{"copy"}) {
		t.Fatalf("pass 2 must copy audio, got %v", got)
	}
	g2 := argAfter(p2, "-filter_complex")[0]
	if !strings.HasPrefix(g2, "[0:v]subtitles=/out/video/1.srt:force_style='FontName=Arial,FontSize=18") {
		t.Fatalf("unexpected pass 2 graph: %s", g2)
	}
	if strings.Contains(g2, "overlay") || strings.Contains(g2, "crop=") {
		t.Fatalf("pass 2 must only burn subtitles: %s", g2)
	}
}

func TestBuild_LogoAndSubtitlesCombined(t *testing.T) {
	p := basePlan()
	p.Logo = &LogoSpec{Path: "/assets/logo.png", Position: types.LogoBottomLeft, Scale: 0.1}
	p.Subtitles = &SubtitleSpec{Path: "/out/video/1.srt", Style: defaultStyle(t)}
	p.SubtitlePass = SubtitlePassCombined

	passes, err := Build(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(passes) != 1 {
		t.Fatalf("expected 1 pass, got %d", len(passes))
	}
	graph := argAfter(passes[0].Args, "-filter_complex")[0]
	if !strings.Contains(graph, "overlay=20:H-h-20,subtitles=") {
		t.Fatalf("expected subtitles after overlay: %s", graph)
	}
}

func TestBuild_SingleFeatureIsSinglePass(t *testing.T) {
	cases := map[string]func(p *Plan){
		"logo only": func(p *Plan) {
			p.Logo = &LogoSpec{Path: "/l.png", Position: types.LogoTopLeft, Scale: 0.2}
		},
		"subtitles only": func(p *Plan) {
			p.Subtitles = &SubtitleSpec{Path: "/s.srt", Style: Style{FontName: "Arial", FontSize: 10}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := basePlan()
			mutate(&p)
			passes, err := Build(p)
			if err != nil {
				t.Fatal(err)
			}
			if len(passes) != 1 {
				t.Fatalf("expected single pass, got %d", len(passes))
			}
		})
	}
}

func TestBuild_FaceTrackedTakesAudioFromSource(t *testing.T) {
	p := basePlan()
	p.Intermediate = "/out/video/1.reframed.mp4"
	p.Subtitles = &SubtitleSpec{Path: "/out/video/1.srt", Style: defaultStyle(t)}

	passes, err := Build(p)
	if err != nil {
		t.Fatal(err)
	}
	args := passes[0].Args
	if got := argAfter(args, "-i"); !slices.Equal(got, []string{p.Intermediate, p.Source}) {
		t.Fatalf("expected intermediate then source inputs, got %v", got)
	}
	if got := argAfter(args, "-t"); !slices.Equal(got, []string{"30.200", "30.200"}) {
		t.Fatalf("both inputs must be trimmed to the clip duration, got %v", got)
	}
	if got := argAfter(args, "-map"); !slices.Equal(got, []string{"[v]", "1:a:0?"}) {
		t.Fatalf("unexpected maps: %v", got)
	}
	graph := argAfter(args, "-filter_complex")[0]
	if strings.Contains(graph, "crop=") {
		t.Fatalf("face-tracked video must not be cropped again: %s", graph)
	}
}

func TestBuild_FaceTrackedLogoIndex(t *testing.T) {
	p := basePlan()
	p.Intermediate = "/tmp/1.reframed.mp4"
	p.Logo = &LogoSpec{Path: "/l.png", Position: types.LogoBottomRight, Scale: 0.1}

	passes, err := Build(p)
	if err != nil {
		t.Fatal(err)
	}
	graph := argAfter(passes[0].Args, "-filter_complex")[0]
	want := "[0:v]null[base];[2:v]scale=-1:192[logo];[base][logo]overlay=W-w-20:H-h-20[v]"
	if graph != want {
		t.Fatalf("graph = %s, want %s", graph, want)
	}
}

func TestBuild_Validation(t *testing.T) {
	cases := map[string]func(p *Plan){
		"no source":   func(p *Plan) { p.Source = "" },
		"no output":   func(p *Plan) { p.Output = "" },
		"no duration": func(p *Plan) { p.Duration = 0 },
		"split without pass1": func(p *Plan) {
			p.Logo = &LogoSpec{Path: "/l.png", Scale: 0.1}
			p.Subtitles = &SubtitleSpec{Path: "/s.srt"}
		},
		"logo on original without height": func(p *Plan) {
			p.Aspect = types.AspectOriginal
			p.Logo = &LogoSpec{Path: "/l.png", Scale: 0.1}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := basePlan()
			mutate(&p)
			if _, err := Build(p); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestAspectFilter(t *testing.T) {
	tests := map[types.AspectRatio]string{
		types.AspectVertical:  "crop=ih*9/16:ih,scale=1080:1920",
		types.AspectSquare:    "crop=ih:ih,scale=1080:1080",
		types.AspectLandscape: "scale=1920:1080",
		types.AspectOriginal:  "",
	}
	for in, want := range tests {
		if got := AspectFilter(in); got != want {
			t.Fatalf("AspectFilter(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestStyles(t *testing.T) {
	s := NewStyles(map[string]Style{"Brand": {FontName: "Inter", FontSize: 30}})

	small, ok := s.Lookup("small")
	if !ok {
		t.Fatal("small preset missing")
	}
	want := "FontName=Arial,FontSize=10,PrimaryColour=&H0000FFFF,OutlineColour=&H00000000,Outline=1,Shadow=1,Bold=0,Alignment=6,MarginV=100"
	if got := small.ForceStyle(); got != want {
		t.Fatalf("ForceStyle = %s\nwant %s", got, want)
	}

	if st, ok := s.Lookup("brand"); !ok || st.FontName != "Inter" {
		t.Fatalf("custom style lookup failed: %+v %v", st, ok)
	}
	if _, ok := s.Lookup("nope"); ok {
		t.Fatal("unknown style must not resolve")
	}
	if bold, _ := s.Lookup("bold"); !strings.Contains(bold.ForceStyle(), "Bold=-1") {
		t.Fatalf("bold preset must set Bold=-1: %s", bold.ForceStyle())
	}
	if !slices.Contains(s.Names(), "brand") || !slices.Contains(s.Names(), "tiktok") {
		t.Fatalf("names missing entries: %v", s.Names())
	}
}

func TestEscapeFilterPath(t *testing.T) {
	tests := map[string]string{
		"/tmp/a.srt":        "/tmp/a.srt",
		`C:\subs\a.srt`:     `C\:\\subs\\a.srt`,
		"/tmp/it's,[x].srt": `/tmp/it\'s\,\[x\].srt`,
	}
	for in, want := range tests {
		if got := escapeFilterPath(in); got != want {
			t.Fatalf("escapeFilterPath(%q) = %q, want %q", in, got, want)
		}
	}
}
