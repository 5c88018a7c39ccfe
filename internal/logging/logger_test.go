package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetState() {
	CloseAll()
	logsDir = ""
	settings = Settings{}
	logLevel = LevelInfo
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	resetState()
	defer resetState()

	tempDir := t.TempDir()
	if err := Initialize(tempDir, Settings{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot,
		CategoryBuild,
		CategoryRender,
		CategoryHarvest,
		CategoryOBIS,
		CategoryBrowser,
		CategoryWatch,
		CategoryPublish,
		CategoryStore,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	Build("Convenience build log")
	Harvest("Convenience harvest log")
	OBIS("Convenience obis log")
	Watch("Convenience watch log")

	CloseAll()

	logsPath := filepath.Join(tempDir, ".catalog", "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	for _, cat := range categories {
		found := false
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), "_"+string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(logsPath, entry.Name()))
				if err != nil {
					t.Errorf("Failed to read log file for %s: %v", cat, err)
					continue
				}
				if !strings.Contains(string(content), "[DEBUG]") {
					t.Errorf("Log file for %s is missing debug lines", cat)
				}
				break
			}
		}
		if !found {
			t.Errorf("No log file found for category: %s", cat)
		}
	}
}

// TestDebugModeDisabled tests that no logs are created when debug_mode is false
func TestDebugModeDisabled(t *testing.T) {
	resetState()
	defer resetState()

	tempDir := t.TempDir()
	if err := Initialize(tempDir, Settings{DebugMode: false}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	Get(CategoryBuild).Info("should not be written")
	Harvest("should not be written either")
	CloseAll()

	if _, err := os.Stat(filepath.Join(tempDir, ".catalog", "logs")); !os.IsNotExist(err) {
		t.Errorf("logs directory should not exist in production mode, stat err=%v", err)
	}
}

func TestCategoryFilter(t *testing.T) {
	resetState()
	defer resetState()

	tempDir := t.TempDir()
	err := Initialize(tempDir, Settings{
		DebugMode:  true,
		Categories: map[string]bool{"harvest": false},
	})
	if err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsCategoryEnabled(CategoryHarvest) {
		t.Error("harvest should be disabled")
	}
	if !IsCategoryEnabled(CategoryBuild) {
		t.Error("build should default to enabled")
	}
}

func TestJSONFormat(t *testing.T) {
	resetState()
	defer resetState()

	tempDir := t.TempDir()
	if err := Initialize(tempDir, Settings{DebugMode: true, JSONFormat: true}); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	Get(CategoryRender).StructuredLog("info", "page written", map[string]interface{}{"path": "index.html"})
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(tempDir, ".catalog", "logs"))
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_render.log") {
			data, _ := os.ReadFile(filepath.Join(tempDir, ".catalog", "logs", e.Name()))
			if !strings.Contains(string(data), `"cat":"render"`) || !strings.Contains(string(data), `"path":"index.html"`) {
				t.Errorf("expected structured JSON entry, got %s", data)
			}
			return
		}
	}
	t.Fatal("render log not found")
}

func TestInitializeRequiresWorkspace(t *testing.T) {
	if err := Initialize("", Settings{}); err == nil {
		t.Fatal("expected error for empty workspace")
	}
}
