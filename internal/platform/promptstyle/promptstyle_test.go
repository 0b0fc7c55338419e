package promptstyle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/vidlens-backend/internal/pkg/logger"
)

func TestDefaultsAreComplete(t *testing.T) {
	s := Defaults()
	if len(s.Genres) != 16 {
		t.Fatalf("want 16 genres, got %d", len(s.Genres))
	}
	if len(s.ExpressionStyles) != 6 {
		t.Fatalf("want 6 expression styles, got %d", len(s.ExpressionStyles))
	}
	if s.Genres[0] != "2D-animation" || s.Genres[len(s.Genres)-1] != "viral" {
		t.Fatalf("genre list out of order: %v", s.Genres)
	}
}

func TestDefaultsReturnsCopies(t *testing.T) {
	a := Defaults()
	a.Genres[0] = "mutated"
	b := Defaults()
	if b.Genres[0] != "2D-animation" {
		t.Fatalf("default slice was mutated via a returned copy")
	}
}

func TestLoadWithoutPathUsesDefaults(t *testing.T) {
	t.Setenv("PROMPT_STYLE_PATH", "")
	s := Load(logger.NewNop())
	if len(s.Genres) != 16 || len(s.ExpressionStyles) != 6 {
		t.Fatalf("expected defaults, got %d/%d", len(s.Genres), len(s.ExpressionStyles))
	}
}

func TestLoadOverridesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "style.yaml")
	content := "genres:\n  - brand-film\n  - TVC\nexpression_styles:\n  - live-action\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}
	t.Setenv("PROMPT_STYLE_PATH", path)

	s := Load(logger.NewNop())
	if len(s.Genres) != 2 || s.Genres[0] != "brand-film" {
		t.Fatalf("genres not overridden: %v", s.Genres)
	}
	if len(s.ExpressionStyles) != 1 || s.ExpressionStyles[0] != "live-action" {
		t.Fatalf("expression styles not overridden: %v", s.ExpressionStyles)
	}
}

func TestLoadPartialOverrideKeepsOtherDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "style.yaml")
	if err := os.WriteFile(path, []byte("genres:\n  - vlog\n"), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}
	t.Setenv("PROMPT_STYLE_PATH", path)

	s := Load(logger.NewNop())
	if len(s.Genres) != 1 || s.Genres[0] != "vlog" {
		t.Fatalf("genres not overridden: %v", s.Genres)
	}
	if len(s.ExpressionStyles) != 6 {
		t.Fatalf("expression styles should stay default, got %v", s.ExpressionStyles)
	}
}

func TestLoadInvalidYAMLFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "style.yaml")
	if err := os.WriteFile(path, []byte(":: not yaml ::"), 0o644); err != nil {
		t.Fatalf("write override: %v", err)
	}
	t.Setenv("PROMPT_STYLE_PATH", path)

	s := Load(logger.NewNop())
	if len(s.Genres) != 16 || len(s.ExpressionStyles) != 6 {
		t.Fatalf("expected defaults after invalid yaml, got %d/%d", len(s.Genres), len(s.ExpressionStyles))
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	t.Setenv("PROMPT_STYLE_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	s := Load(logger.NewNop())
	if len(s.Genres) != 16 {
		t.Fatalf("expected defaults for missing file, got %v", s.Genres)
	}
}
