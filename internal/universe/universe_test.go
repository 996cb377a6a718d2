package universe

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad(t *testing.T) {
	content := "aapl\nMSFT\n\n  tsla  \nAAPL\nbrk.b\n"
	path := writeTempFile(t, content)

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := []string{"AAPL", "MSFT", "TSLA", "BRK.B"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %v, want %v", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name    string
		tickers []string
		size    int
		want    [][]string
	}{
		{
			name:    "even split",
			tickers: []string{"A", "B", "C", "D"},
			size:    2,
			want:    [][]string{{"A", "B"}, {"C", "D"}},
		},
		{
			name:    "short last chunk",
			tickers: []string{"A", "B", "C"},
			size:    2,
			want:    [][]string{{"A", "B"}, {"C"}},
		},
		{
			name:    "chunk larger than input",
			tickers: []string{"A", "B"},
			size:    10,
			want:    [][]string{{"A", "B"}},
		},
		{
			name:    "empty input",
			tickers: nil,
			size:    2,
			want:    nil,
		},
		{
			name:    "invalid size",
			tickers: []string{"A"},
			size:    0,
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Chunk(tt.tickers, tt.size)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Chunk() = %v, want %v", got, tt.want)
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickers.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
