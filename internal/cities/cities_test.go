package cities

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefault_ValidAndUnique(t *testing.T) {
	src, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	got, err := src.Cities(context.Background())
	if err != nil {
		t.Fatalf("Cities() error = %v", err)
	}
	if len(got) != 50 {
		t.Errorf("len(Cities()) = %d, want 50", len(got))
	}
}

// TestStaticSource_DedupesCaseInsensitively verifies order is kept and the first spelling wins.
func TestStaticSource_DedupesCaseInsensitively(t *testing.T) {
	src, err := NewStaticSource([]string{" Tianjin", "Moscow", "tianjin", "MOSCOW ", "Nizhny Novgorod"})
	if err != nil {
		t.Fatalf("NewStaticSource() error = %v", err)
	}
	got, _ := src.Cities(context.Background())
	want := []string{"Tianjin", "Moscow", "Nizhny Novgorod"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Cities() = %v, want %v", got, want)
	}
}

func TestStaticSource_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input []string
	}{
		{"empty list", nil},
		{"blank name", []string{"Tianjin", "  "}},
		{"bad chars", []string{"Tianjin<script>"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewStaticSource(tt.input); !errors.Is(err, ErrRetrieval) {
				t.Errorf("NewStaticSource() error = %v, want ErrRetrieval", err)
			}
		})
	}
}

func TestStaticSource_CanceledContext(t *testing.T) {
	src, _ := NewStaticSource([]string{"Tianjin"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Cities(ctx); !errors.Is(err, ErrRetrieval) {
		t.Errorf("Cities() error = %v, want ErrRetrieval", err)
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cities.yaml")
	if err := os.WriteFile(path, []byte("cities:\n  - Tianjin\n  - Xi'an\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	src := NewFileSource(path)
	got, err := src.Cities(context.Background())
	if err != nil {
		t.Fatalf("Cities() error = %v", err)
	}
	if want := []string{"Tianjin", "Xi'an"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Cities() = %v, want %v", got, want)
	}

	// Edits are picked up by the next call.
	if err := os.WriteFile(path, []byte("cities: [Moscow]\n"), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	got, _ = src.Cities(context.Background())
	if want := []string{"Moscow"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Cities() after edit = %v, want %v", got, want)
	}
}

func TestFileSource_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("cities: [[["), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, path := range []string{filepath.Join(dir, "missing.yaml"), bad} {
		if _, err := NewFileSource(path).Cities(context.Background()); !errors.Is(err, ErrRetrieval) {
			t.Errorf("Cities(%s) error = %v, want ErrRetrieval", filepath.Base(path), err)
		}
	}
}

func TestNew_PicksSource(t *testing.T) {
	if src, _ := New("cities.yaml", []string{"Tianjin"}); reflect.TypeOf(src) != reflect.TypeOf(&FileSource{}) {
		t.Errorf("New(path, list) = %T, want *FileSource", src)
	}
	src, err := New("", []string{"Tianjin"})
	if err != nil {
		t.Fatalf("New(list) error = %v", err)
	}
	if got, _ := src.Cities(context.Background()); len(got) != 1 {
		t.Errorf("New(list).Cities() = %v, want one city", got)
	}
	src, err = New("", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got, _ := src.Cities(context.Background()); len(got) != 50 {
		t.Errorf("New().Cities() returned %d cities, want default 50", len(got))
	}
}
