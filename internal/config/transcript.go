package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iotlab-io/labwatch/internal/models"
)

const transcriptExt = ".log"

// WriteTranscript saves a finished run's scanner output with a YAML header.
// The ID is derived from the start time and the experiment ID.
func WriteTranscript(t models.Transcript, startedAt time.Time, output []string) (*models.Transcript, error) {
	if err := EnsureTranscriptsDir(); err != nil {
		return nil, fmt.Errorf("failed to ensure transcripts dir: %w", err)
	}
	dir, err := GlobalTranscriptsDir()
	if err != nil {
		return nil, err
	}

	if t.Kind == "" {
		t.Kind = "single"
	}
	if t.EndedAt == "" {
		t.EndedAt = time.Now().UTC().Format(time.RFC3339)
	}
	t.StartedAt = startedAt.UTC().Format(time.RFC3339)
	t.ID = startedAt.UTC().Format("2006-01-02T15-04-05") + "-" + t.Kind
	if t.ExperimentID != "" {
		t.ID += "-" + sanitizeID(t.ExperimentID)
	}

	header, err := yaml.Marshal(&t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transcript header: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n")
	for _, line := range output {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if err := writeFileAtomic(filepath.Join(dir, t.ID+transcriptExt), []byte(b.String())); err != nil {
		return nil, err
	}
	return &t, nil
}

func sanitizeID(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

// ListTranscripts returns the metadata of all saved transcripts (newest first).
func ListTranscripts() ([]*models.Transcript, error) {
	dir, err := GlobalTranscriptsDir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []*models.Transcript
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), transcriptExt) {
			continue
		}
		t, err := readTranscriptHeader(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt > out[j].StartedAt
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// ReadTranscript reads a transcript and returns its metadata and body.
func ReadTranscript(id string) (*models.Transcript, string, error) {
	dir, err := GlobalTranscriptsDir()
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(filepath.Join(dir, id+transcriptExt))
	if err != nil {
		return nil, "", fmt.Errorf("transcript not found: %w", err)
	}

	t, body, err := parseTranscript(string(data))
	if err != nil {
		return nil, "", err
	}
	if t.ID == "" {
		t.ID = id
	}
	return t, body, nil
}

func readTranscriptHeader(path string) (*models.Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var header []string
	inHeader := false
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "---" {
			if !inHeader {
				inHeader = true
				continue
			}
			closed = true
			break
		}
		if inHeader {
			header = append(header, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !closed {
		return nil, fmt.Errorf("invalid transcript format")
	}

	t := &models.Transcript{}
	if err := yaml.Unmarshal([]byte(strings.Join(header, "\n")), t); err != nil {
		return nil, fmt.Errorf("invalid transcript header: %w", err)
	}
	if t.ID == "" {
		t.ID = strings.TrimSuffix(filepath.Base(path), transcriptExt)
	}
	return t, nil
}

func parseTranscript(content string) (*models.Transcript, string, error) {
	rest, ok := strings.CutPrefix(content, "---\n")
	if !ok {
		return nil, "", fmt.Errorf("invalid transcript format")
	}
	header, body, ok := strings.Cut(rest, "\n---\n")
	if !ok {
		return nil, "", fmt.Errorf("invalid transcript format")
	}

	t := &models.Transcript{}
	if err := yaml.Unmarshal([]byte(header), t); err != nil {
		return nil, "", fmt.Errorf("invalid transcript header: %w", err)
	}
	return t, body, nil
}
