// package formatter exports stored suggestions to CSV, Markdown, plain text, or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/desertthunder/curatarr/internal/models"
	"github.com/desertthunder/curatarr/internal/shared"
)

// Format is an export format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatJSON     Format = "json"
)

// ParseFormat accepts the format names and their file extensions.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "text", "txt", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, s)
	}
}

// Extension returns the file extension of f without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatText:
		return "txt"
	default:
		return string(f)
	}
}

// Summary counts an export by media type and status.
type Summary struct {
	Title       string    `json:"title"`
	Total       int       `json:"total"`
	Movies      int       `json:"movies"`
	Series      int       `json:"series"`
	Requested   int       `json:"requested"`
	Ignored     int       `json:"ignored"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Summarize counts suggestions.
func Summarize(title string, suggestions []*models.Suggestion, now time.Time) Summary {
	s := Summary{Title: title, Total: len(suggestions), GeneratedAt: now.UTC()}
	for _, sg := range suggestions {
		switch sg.MediaType {
		case models.MediaMovie:
			s.Movies++
		case models.MediaTV:
			s.Series++
		}
		if sg.Requested {
			s.Requested++
		}
		if sg.Ignored {
			s.Ignored++
		}
	}
	return s
}

func rtScore(sg *models.Suggestion) string {
	if sg.RTScore == nil {
		return ""
	}
	return strconv.Itoa(*sg.RTScore)
}

func origin(sg *models.Suggestion) string {
	if sg.OriginSearchID == nil {
		return ""
	}
	return strconv.FormatInt(*sg.OriginSearchID, 10)
}

// ExportToCSV writes one row per suggestion with a header row.
func ExportToCSV(suggestions []*models.Suggestion) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Type", "Description", "Similarity", "RT Score", "RT URL", "Requested", "Ignored", "Search", "Created"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, sg := range suggestions {
		record := []string{
			strconv.FormatInt(sg.ID, 10),
			sg.Title,
			sg.MediaType.String(),
			sg.Description,
			sg.Similarity,
			rtScore(sg),
			sg.RTURL,
			strconv.FormatBool(sg.Requested),
			strconv.FormatBool(sg.Ignored),
			origin(sg),
			sg.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportToMarkdown groups suggestions into Movies and TV sections.
func ExportToMarkdown(title string, suggestions []*models.Suggestion) ([]byte, error) {
	var buf bytes.Buffer
	summary := Summarize(title, suggestions, time.Now())

	fmt.Fprintf(&buf, "# %s\n\n", title)
	fmt.Fprintf(&buf, "**Suggestions**: %d (%d movies, %d series)\n", summary.Total, summary.Movies, summary.Series)
	fmt.Fprintf(&buf, "**Requested**: %d\n\n", summary.Requested)

	sections := []struct {
		heading string
		kind    models.MediaType
	}{
		{"Movies", models.MediaMovie},
		{"TV", models.MediaTV},
	}
	for _, section := range sections {
		var n int
		for _, sg := range suggestions {
			if sg.MediaType != section.kind {
				continue
			}
			if n == 0 {
				fmt.Fprintf(&buf, "## %s\n\n", section.heading)
			}
			n++

			name := sg.Title
			if sg.RTURL != "" {
				name = fmt.Sprintf("[%s](%s)", sg.Title, sg.RTURL)
			}
			line := fmt.Sprintf("%d. **%s**", n, name)
			if score := rtScore(sg); score != "" {
				line += fmt.Sprintf(" (RT %s%%)", score)
			}
			if sg.Requested {
				line += " *requested*"
			}
			buf.WriteString(line + "\n")
			if sg.Description != "" {
				fmt.Fprintf(&buf, "   %s\n", sg.Description)
			}
			if sg.Similarity != "" {
				fmt.Fprintf(&buf, "   _%s_\n", sg.Similarity)
			}
		}
		if n > 0 {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

// ExportToText writes a numbered list of suggestions.
func ExportToText(title string, suggestions []*models.Suggestion) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s\n", title)
	fmt.Fprintf(&buf, "Suggestions: %d\n\n", len(suggestions))

	for i, sg := range suggestions {
		fmt.Fprintf(&buf, "%d. %s [%s]", i+1, sg.Title, sg.MediaType)
		if sg.Requested {
			buf.WriteString(" (requested)")
		}
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// ExportToJSON writes the summary and the suggestions as one document.
func ExportToJSON(title string, suggestions []*models.Suggestion) ([]byte, error) {
	if suggestions == nil {
		suggestions = []*models.Suggestion{}
	}
	doc := struct {
		Summary     Summary              `json:"summary"`
		Suggestions []*models.Suggestion `json:"suggestions"`
	}{Summarize(title, suggestions, time.Now()), suggestions}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// Export renders suggestions in format.
func Export(format Format, title string, suggestions []*models.Suggestion) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(suggestions)
	case FormatMarkdown:
		return ExportToMarkdown(title, suggestions)
	case FormatText:
		return ExportToText(title, suggestions)
	case FormatJSON:
		return ExportToJSON(title, suggestions)
	default:
		return nil, fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidArgument, format)
	}
}

// ExportResult lists the files written by [WriteExport].
type ExportResult struct {
	File        string
	SummaryFile string
}

// WriteExport writes suggestions to path, defaulting to suggestions.<ext> in the working directory.
//
// CSV exports also write {base}_summary.json beside the CSV file, since CSV has no room for the counts.
func WriteExport(format Format, title string, suggestions []*models.Suggestion, path string) (*ExportResult, error) {
	if path == "" {
		path = "suggestions." + format.Extension()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := Export(format, title, suggestions)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write export file: %w", err)
	}

	result := &ExportResult{File: path}
	if format != FormatCSV {
		return result, nil
	}

	summary, err := json.MarshalIndent(Summarize(title, suggestions, time.Now()), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}
	result.SummaryFile = strings.TrimSuffix(path, filepath.Ext(path)) + "_summary.json"
	if err := os.WriteFile(result.SummaryFile, summary, 0644); err != nil {
		return nil, fmt.Errorf("failed to write summary file: %w", err)
	}
	return result, nil
}
