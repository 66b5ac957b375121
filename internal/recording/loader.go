package recording

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"breathing-analytics/internal/models"
)

// ResultSuffix суффикс файлов с результатами анализа
const ResultSuffix = ".analysis.json"

// Decode читает документ записи и нормализует имена landmark-ов
func Decode(r io.Reader) (models.Recording, error) {
	var rec models.Recording
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return rec, fmt.Errorf("failed to decode recording: %w", err)
	}
	Normalize(&rec)
	return rec, nil
}

// Load читает документ записи из файла
func Load(path string) (models.Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Recording{}, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	rec, err := Decode(f)
	if err != nil {
		return rec, fmt.Errorf("%s: %w", path, err)
	}
	if rec.SessionID == "" {
		rec.SessionID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return rec, nil
}

// Normalize приводит имена landmark-ов к каноническому виду
func Normalize(rec *models.Recording) {
	for i, frame := range rec.Frames {
		if len(frame.Landmarks) == 0 {
			continue
		}
		normalized := make(map[string]models.Landmark, len(frame.Landmarks))
		for name, lm := range frame.Landmarks {
			normalized[models.NormalizeLandmarkName(name)] = lm
		}
		rec.Frames[i].Landmarks = normalized
	}
}

// Files возвращает записи в каталоге, пропуская файлы результатов
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ResultSuffix) {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// ResultPath путь файла результата рядом с записью
func ResultPath(recordingPath string) string {
	return strings.TrimSuffix(recordingPath, filepath.Ext(recordingPath)) + ResultSuffix
}

// WriteResult сохраняет результат анализа в JSON
func WriteResult(path string, result models.AnalysisResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
