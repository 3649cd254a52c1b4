// Package progress derives status updates from unstructured extraction
// tool output. Parse is pure: same line and counter always yield the
// same delta and nothing else is touched.
package progress

import (
	"math"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/mediafetch/fetchd/internal/model"
)

// reCounter matches the exact "N of M" counter the tool prints when it
// knows the total, e.g. "[.] 3 of 10".
var reCounter = regexp.MustCompile(`\b(\d+) of (\d+)\b`)

// mediaExts are file suffixes counted by the unknown-total heuristic.
var mediaExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
	".mp4": {}, ".mkv": {}, ".webm": {}, ".mov": {}, ".avi": {}, ".flv": {},
	".mp3": {}, ".m4a": {}, ".aac": {}, ".ogg": {}, ".opus": {}, ".wav": {},
}

// heuristicCap keeps estimated progress below 100 so completion is only
// ever claimed once the process actually exits.
const heuristicCap = 90

// Parse inspects one line of tool output and the running file counter
// and returns the new counter plus a partial job update. Recognized
// patterns, in priority order: the exact "N of M" counter, a produced
// media file path, and finalize/merge stage markers. Anything else
// yields an empty patch. Malformed input never panics.
func Parse(line string, files int) (int, model.Patch) {
	line = strings.TrimSpace(line)
	if line == "" {
		return files, model.Patch{}
	}

	if m := reCounter.FindStringSubmatch(line); m != nil {
		n, errN := strconv.Atoi(m[1])
		total, errM := strconv.Atoi(m[2])
		if errN == nil && errM == nil && total > 0 && n <= total {
			pct := int(math.RoundToEven(float64(n) / float64(total) * 100))
			return n, patch(model.StatusDownloading, pct,
				"Downloaded "+m[1]+" of "+m[2]+" files",
				&n, &total)
		}
	}

	if name, ok := mediaFile(line); ok {
		files++
		pct := 10 + files*5
		if pct > heuristicCap {
			pct = heuristicCap
		}
		return files, patch(model.StatusDownloading, pct,
			"Downloading "+name, &files, nil)
	}

	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "[merger]") || strings.Contains(lower, "merging"):
		return files, patch(model.StatusDownloading, 99, "Merging formats...", nil, nil)
	case strings.Contains(lower, "[fixup") || strings.Contains(lower, "finalizing") ||
		strings.Contains(lower, "post-process") || strings.Contains(lower, "postprocess"):
		return files, patch(model.StatusDownloading, 98, "Finalizing files...", nil, nil)
	}

	return files, model.Patch{}
}

// Files extracts the produced file paths from buffered tool output, in
// the order they were reported.
func Files(lines []string) []string {
	var files []string
	for _, line := range lines {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}
		last := fields[len(fields)-1]
		if _, ok := mediaExts[strings.ToLower(path.Ext(last))]; ok {
			files = append(files, last)
		}
	}
	return files
}

// mediaFile reports whether the line ends in a recognized media file
// path and returns its base name.
func mediaFile(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}
	last := fields[len(fields)-1]
	ext := strings.ToLower(path.Ext(last))
	if _, ok := mediaExts[ext]; !ok {
		return "", false
	}
	return path.Base(last), true
}

func patch(status model.Status, pct int, msg string, files, total *int) model.Patch {
	return model.Patch{
		Status:          &status,
		Progress:        &pct,
		Message:         &msg,
		FilesDownloaded: files,
		TotalFiles:      total,
	}
}
