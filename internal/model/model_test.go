package model

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/iabetor/moritts/internal/ttserr"
)

const kokoroConfigJSON = `{
  "decoder": {
    "type": "istftnet",
    "resblock_kernel_sizes": [3, 7, 11],
    "upsample_rates": [10, 6],
    "upsample_initial_channel": 512,
    "resblock_dilation_sizes": [[1, 3, 5], [1, 3, 5], [1, 3, 5]],
    "upsample_kernel_sizes": [20, 12],
    "gen_istft_n_fft": 20,
    "gen_istft_hop_size": 5
  },
  "dim_in": 64,
  "dropout": 0.2,
  "hidden_dim": 512,
  "max_dur": 50,
  "multispeaker": true,
  "n_layer": 3,
  "n_mels": 80,
  "n_token": 178,
  "style_dim": 128
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadKokoroConfig(t *testing.T) {
	cfg, err := LoadKokoroConfig(writeFile(t, "config.json", kokoroConfigJSON))
	if err != nil {
		t.Fatalf("LoadKokoroConfig failed: %v", err)
	}
	if cfg.HiddenDim != 512 || cfg.NLayer != 3 || cfg.NToken != 178 || cfg.StyleDim != 128 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Decoder.GenIstftHopSize != 5 || len(cfg.Decoder.ResblockDilationSizes) != 3 {
		t.Errorf("unexpected decoder config: %+v", cfg.Decoder)
	}
	if cfg.SampleRate != DefaultSampleRate {
		t.Errorf("expected default sample rate, got %d", cfg.SampleRate)
	}
}

func TestLoadKokoroConfig_Missing(t *testing.T) {
	_, err := LoadKokoroConfig(filepath.Join(t.TempDir(), "config.json"))
	if !errors.Is(err, ttserr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadKokoroConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"no style dim":   `{"n_token": 10}`,
		"no tokens":      `{"style_dim": 256}`,
		"vocab overflow": `{"n_token": 2, "style_dim": 4, "vocab": {"a": 5}}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadKokoroConfig(writeFile(t, "config.json", content))
			if !errors.Is(err, ttserr.ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestParseDevice(t *testing.T) {
	tests := map[string]Device{"": CPU, "CPU": CPU, "cuda": CUDA, "gpu": CUDA}
	for in, want := range tests {
		got, err := ParseDevice(in)
		if err != nil || got != want {
			t.Errorf("ParseDevice(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseDevice("tpu"); err == nil {
		t.Error("expected error for unsupported device")
	}
	if CUDA.Provider() != "cuda" || CPU.Provider() != "cpu" {
		t.Error("unexpected provider names")
	}
}

func TestFetcher_ResolveLocal(t *testing.T) {
	f := &Fetcher{CacheDir: t.TempDir()}
	path := writeFile(t, "model.onnx", "onnx")

	got, err := f.Resolve(context.Background(), path)
	if err != nil || got != path {
		t.Fatalf("Resolve(local) = %q, %v", got, err)
	}

	_, err = f.Resolve(context.Background(), path+".missing")
	if !errors.Is(err, ttserr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetcher_DownloadsOnce(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fa/male/model.onnx" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("weights"))
	}))
	defer srv.Close()

	var progress bytes.Buffer
	f := &Fetcher{CacheDir: t.TempDir(), Client: srv.Client(), Progress: &progress}

	for i := 0; i < 2; i++ {
		path, err := f.Resolve(context.Background(), srv.URL+"/fa/male/model.onnx")
		if err != nil {
			t.Fatalf("Resolve(remote) failed: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil || string(data) != "weights" {
			t.Fatalf("unexpected cached content %q, %v", data, err)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("expected a single download, got %d", n)
	}

	entries, _ := filepath.Glob(filepath.Join(f.CacheDir, "*", "fa", "male", ".*.part"))
	if len(entries) != 0 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestFetcher_RemoteNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := &Fetcher{CacheDir: t.TempDir(), Client: srv.Client()}
	_, err := f.Resolve(context.Background(), srv.URL+"/missing.onnx")
	if !errors.Is(err, ttserr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetcher_URLWithoutFile(t *testing.T) {
	f := &Fetcher{CacheDir: t.TempDir()}
	_, err := f.Resolve(context.Background(), "https://example.com/")
	if !errors.Is(err, ttserr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestIsRemote(t *testing.T) {
	if !IsRemote("https://huggingface.co/x/model.onnx") || IsRemote("models/x.onnx") {
		t.Error("IsRemote misclassified locations")
	}
}
