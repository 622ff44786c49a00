package tts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/iabetor/moritts/internal/model"
	"github.com/iabetor/moritts/internal/ttserr"
	"github.com/iabetor/moritts/internal/voice"
)

type fakePhonemizer struct {
	ps      string
	err     error
	gotText string
	gotLang string
}

func (f *fakePhonemizer) Phonemize(_ context.Context, text, lang string) (string, error) {
	f.gotText, f.gotLang = text, lang
	return f.ps, f.err
}

type fakeSession struct {
	device    model.Device
	out       []float32
	err       error
	gotTokens []int64
	gotStyle  []float32
	gotSpeed  float32
	closed    bool
}

func (f *fakeSession) Run(tokens []int64, style []float32, speed float32) ([]float32, error) {
	f.gotTokens, f.gotStyle, f.gotSpeed = tokens, style, speed
	return f.out, f.err
}

func (f *fakeSession) Device() model.Device { return f.device }
func (f *fakeSession) Close()               { f.closed = true }

// bucketPack 每个桶的 embedding 都填充为桶号，便于断言选中的桶。
func bucketPack(width int) voice.Pack {
	p := make(voice.Pack)
	for n := voice.MinBucket; n <= voice.MaxBucket; n++ {
		e := make(voice.Embedding, width)
		for i := range e {
			e[i] = float32(n)
		}
		p[n] = e
	}
	return p
}

func newTestKokoro(t *testing.T, ps string, out []float32) (*Kokoro, *fakePhonemizer, *fakeSession) {
	t.Helper()
	ph := &fakePhonemizer{ps: ps}
	sess := &fakeSession{device: model.CPU, out: out}
	k, err := NewKokoro(Components{Phonemizer: ph, Tokenizer: NewTokenizer(nil), Session: sess},
		model.CPU, 0, 0)
	if err != nil {
		t.Fatalf("NewKokoro: %v", err)
	}
	return k, ph, sess
}

func TestNewKokoro_DeviceMismatch(t *testing.T) {
	sess := &fakeSession{device: model.CPU}
	_, err := NewKokoro(Components{Phonemizer: &fakePhonemizer{}, Tokenizer: NewTokenizer(nil), Session: sess},
		model.CUDA, 0, 0)
	if !errors.Is(err, ttserr.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestNewKokoro_MissingComponent(t *testing.T) {
	_, err := NewKokoro(Components{Tokenizer: NewTokenizer(nil)}, model.CPU, 0, 0)
	if !errors.Is(err, ttserr.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestKokoro_Synthesize(t *testing.T) {
	k, ph, sess := newTestKokoro(t, "həlˈoʊ", []float32{0.1, -0.2, 0.3})

	res, err := k.Synthesize(context.Background(), "Hello", bucketPack(voice.DefaultWidth), "a", 1.0)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if ph.gotLang != "a" || ph.gotText != "Hello" {
		t.Errorf("phonemizer got (%q, %q)", ph.gotText, ph.gotLang)
	}
	if res.SampleRate != model.DefaultSampleRate {
		t.Errorf("SampleRate = %d, want %d", res.SampleRate, model.DefaultSampleRate)
	}
	if res.Phonemes != "həlˈoʊ" {
		t.Errorf("Phonemes = %q", res.Phonemes)
	}
	if len(res.Samples) != 3 {
		t.Errorf("got %d samples, want 3", len(res.Samples))
	}

	// 6 个音素加首尾填充
	if len(sess.gotTokens) != 8 {
		t.Fatalf("session got %d tokens, want 8", len(sess.gotTokens))
	}
	if sess.gotTokens[0] != 0 || sess.gotTokens[7] != 0 {
		t.Errorf("tokens not padded: %v", sess.gotTokens)
	}
	if len(sess.gotStyle) != voice.DefaultWidth || sess.gotStyle[0] != 6 {
		t.Errorf("style from wrong bucket: len=%d first=%v", len(sess.gotStyle), sess.gotStyle[0])
	}
	if sess.gotSpeed != 1.0 {
		t.Errorf("speed = %v, want 1", sess.gotSpeed)
	}
}

func TestKokoro_Truncates(t *testing.T) {
	k, _, sess := newTestKokoro(t, strings.Repeat("a", 600), []float32{0.5})

	res, err := k.Synthesize(context.Background(), "long text", bucketPack(voice.DefaultWidth), "a", 1.0)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(sess.gotTokens) != MaxTokens+2 {
		t.Errorf("session got %d tokens, want %d", len(sess.gotTokens), MaxTokens+2)
	}
	if sess.gotStyle[0] != float32(voice.MaxBucket) {
		t.Errorf("style bucket = %v, want %d", sess.gotStyle[0], voice.MaxBucket)
	}
	if len([]rune(res.Phonemes)) != MaxTokens {
		t.Errorf("phonemes length = %d, want %d", len([]rune(res.Phonemes)), MaxTokens)
	}
}

func TestKokoro_ShapeMismatch(t *testing.T) {
	k, _, _ := newTestKokoro(t, "a", []float32{0.5})
	_, err := k.Synthesize(context.Background(), "a", bucketPack(10), "a", 1.0)
	if !errors.Is(err, ttserr.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestKokoro_EmptyOutput(t *testing.T) {
	k, _, _ := newTestKokoro(t, "a", nil)
	_, err := k.Synthesize(context.Background(), "a", bucketPack(voice.DefaultWidth), "a", 1.0)
	if !errors.Is(err, ttserr.ErrGenerationFailed) {
		t.Errorf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestKokoro_NoTokens(t *testing.T) {
	k, _, _ := newTestKokoro(t, "###", []float32{0.5})
	_, err := k.Synthesize(context.Background(), "a", bucketPack(voice.DefaultWidth), "a", 1.0)
	if !errors.Is(err, ttserr.ErrGenerationFailed) {
		t.Errorf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestKokoro_InvalidArguments(t *testing.T) {
	k, _, _ := newTestKokoro(t, "a", []float32{0.5})
	pack := bucketPack(voice.DefaultWidth)

	if _, err := k.Synthesize(context.Background(), "  \n ", pack, "a", 1.0); !errors.Is(err, ttserr.ErrInvalidArgument) {
		t.Errorf("empty text: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := k.Synthesize(context.Background(), "a", pack, "a", 0); !errors.Is(err, ttserr.ErrInvalidArgument) {
		t.Errorf("zero speed: expected ErrInvalidArgument, got %v", err)
	}
}

func TestKokoro_PhonemizerError(t *testing.T) {
	k, ph, sess := newTestKokoro(t, "", []float32{0.5})
	ph.err = errors.New("boom")
	if _, err := k.Synthesize(context.Background(), "a", bucketPack(voice.DefaultWidth), "a", 1.0); err == nil {
		t.Error("expected phonemizer error")
	}
	if sess.gotTokens != nil {
		t.Error("session should not run after phonemizer failure")
	}
}

func TestKokoro_Close(t *testing.T) {
	k, _, sess := newTestKokoro(t, "a", nil)
	k.Close()
	if !sess.closed {
		t.Error("session not closed")
	}
}
