package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/iabetor/moritts/internal/audio"
	"github.com/iabetor/moritts/internal/config"
	"github.com/iabetor/moritts/internal/model"
	"github.com/iabetor/moritts/internal/tts"
	"github.com/iabetor/moritts/internal/ttserr"
	"github.com/iabetor/moritts/internal/voice"
)

type stubPhonemizer struct{}

func (stubPhonemizer) Phonemize(_ context.Context, text, _ string) (string, error) {
	return "həlˈoʊ wˈɜːld", nil
}

// stubSession 输出与 token 数成正比的正弦波，幅度故意超过 1。
type stubSession struct {
	gotSpeed float32
}

func (s *stubSession) Run(tokens []int64, style []float32, speed float32) ([]float32, error) {
	s.gotSpeed = speed
	n := len(tokens) * 600
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(1.7 * math.Sin(2*math.Pi*220*float64(i)/24000))
	}
	return out, nil
}

func (s *stubSession) Device() model.Device { return model.CPU }
func (s *stubSession) Close()               {}

type stubPlayer struct {
	played int
	rate   int
}

func (p *stubPlayer) Play(_ context.Context, samples []float32, rate int) error {
	p.played, p.rate = len(samples), rate
	return nil
}

func writeVoice(t *testing.T, dir, name string) {
	t.Helper()
	data := make([]float32, 2*256)
	for i := range data {
		data[i] = float32(i) / 512
	}
	raw, err := json.Marshal(map[string]interface{}{"dims": []int{2, 1, 256}, "data": data})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".json"), raw, 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestPipeline(t *testing.T, opts Options) (*Pipeline, *stubSession) {
	t.Helper()
	sess := &stubSession{}
	k, err := tts.NewKokoro(tts.Components{
		Phonemizer: stubPhonemizer{},
		Tokenizer:  tts.NewTokenizer(nil),
		Session:    sess,
	}, model.CPU, model.DefaultSampleRate, voice.DefaultWidth)
	if err != nil {
		t.Fatalf("NewKokoro: %v", err)
	}

	dir := t.TempDir()
	writeVoice(t, dir, "af_bella")
	opts.Voices = voice.NewLoader(dir, voice.DefaultWidth)
	p := New(k, opts)
	t.Cleanup(p.Close)
	return p, sess
}

func TestRun_EndToEnd(t *testing.T) {
	p, sess := newTestPipeline(t, Options{})
	output := filepath.Join(t.TempDir(), "out", "hello.wav")

	var stages []Stage
	p.State().SetOnChange(func(_, to Stage) { stages = append(stages, to) })

	out, err := p.Run(context.Background(), Request{
		Text: "Hello world", Voice: "af_bella", Lang: "a", Speed: 1.0, Output: output,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Phonemes != "həlˈoʊ wˈɜːld" {
		t.Errorf("Phonemes = %q", out.Phonemes)
	}
	if sess.gotSpeed != 1 {
		t.Errorf("model speed = %v, want 1", sess.gotSpeed)
	}

	samples, rate, err := audio.ReadWAV(output)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if rate != 24000 {
		t.Errorf("sample rate = %d, want 24000", rate)
	}
	if len(samples) == 0 || len(samples) != out.Samples {
		t.Errorf("wav has %d samples, outcome reports %d", len(samples), out.Samples)
	}
	// 16-bit 量化误差
	if peak := audio.Peak(samples); peak > audio.DefaultPeak+1e-3 {
		t.Errorf("peak = %v, want <= %v", peak, audio.DefaultPeak)
	}

	want := []Stage{StageLoading, StageSynthesizing, StageWriting, StageIdle}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage %d = %s, want %s", i, stages[i], want[i])
		}
	}
}

func TestRun_ResampleSpeed(t *testing.T) {
	p, sess := newTestPipeline(t, Options{})
	dir := t.TempDir()

	normal, err := p.Run(context.Background(), Request{Text: "Hello world", Voice: "af_bella", Lang: "a", Speed: 1, Output: filepath.Join(dir, "a.wav")})
	if err != nil {
		t.Fatal(err)
	}
	fast, err := p.Run(context.Background(), Request{Text: "Hello world", Voice: "af_bella", Lang: "a", Speed: 2, Output: filepath.Join(dir, "b.wav")})
	if err != nil {
		t.Fatal(err)
	}
	if fast.Samples != normal.Samples/2 {
		t.Errorf("speed 2 gave %d samples, want %d", fast.Samples, normal.Samples/2)
	}
	if sess.gotSpeed != 1 {
		t.Errorf("resample mode should pass speed 1 to the model, got %v", sess.gotSpeed)
	}
}

func TestRun_ModelSpeed(t *testing.T) {
	p, sess := newTestPipeline(t, Options{SpeedMode: config.SpeedModeModel})

	out, err := p.Run(context.Background(), Request{Text: "Hello world", Voice: "af_bella", Lang: "a", Speed: 1.5, Output: filepath.Join(t.TempDir(), "a.wav")})
	if err != nil {
		t.Fatal(err)
	}
	if sess.gotSpeed != 1.5 {
		t.Errorf("model speed = %v, want 1.5", sess.gotSpeed)
	}
	// 13 个音素加首尾填充，每个 token 600 样本，不再重采样
	if out.Samples != 15*600 {
		t.Errorf("samples = %d, want %d", out.Samples, 15*600)
	}
}

func TestRun_InvalidSpeed(t *testing.T) {
	p, _ := newTestPipeline(t, Options{})
	for _, speed := range []float64{0, -1, math.NaN()} {
		_, err := p.Run(context.Background(), Request{Text: "Hello", Voice: "af_bella", Lang: "a", Speed: speed, Output: "x.wav"})
		if !errors.Is(err, ttserr.ErrInvalidArgument) {
			t.Errorf("speed %v: expected ErrInvalidArgument, got %v", speed, err)
		}
	}
}

func TestRun_MissingVoice(t *testing.T) {
	p, _ := newTestPipeline(t, Options{})
	output := filepath.Join(t.TempDir(), "a.wav")
	_, err := p.Run(context.Background(), Request{Text: "Hello", Voice: "nobody", Lang: "a", Speed: 1, Output: output})
	if !errors.Is(err, ttserr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Error("output should not be written on failure")
	}
	if p.State().Current() != StageIdle {
		t.Errorf("stage after failure = %s, want Idle", p.State().Current())
	}
}

func TestRun_Play(t *testing.T) {
	player := &stubPlayer{}
	p, _ := newTestPipeline(t, Options{Player: player})

	out, err := p.Run(context.Background(), Request{Text: "Hello world", Voice: "af_bella", Lang: "a", Speed: 1, Output: filepath.Join(t.TempDir(), "a.wav"), Play: true})
	if err != nil {
		t.Fatal(err)
	}
	if player.played != out.Samples || player.rate != 24000 {
		t.Errorf("player got %d samples at %d Hz", player.played, player.rate)
	}
}
