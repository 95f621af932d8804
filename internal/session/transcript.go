package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// TranscriptHeader is the first line of an exported transcript.
type TranscriptHeader struct {
	InterviewID string    `json:"interview_id"`
	Date        time.Time `json:"date"`
	// Duration is the wall time from session creation to the export (or to
	// the end of the session, if it ended).
	Duration   string            `json:"duration"`
	TotalTurns int               `json:"total_turns"`
	Status     Status            `json:"status"`
	Languages  Languages         `json:"languages"`
	Job        any               `json:"job,omitempty"`
	Candidate  any               `json:"candidate,omitempty"`
	Providers  map[string]string `json:"providers,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ExportInfo carries the parts of the transcript header that the session does
// not know about.
type ExportInfo struct {
	Job       any
	Candidate any
	// Providers maps stage name to the primary provider of its ranking.
	Providers map[string]string
}

// WriteTranscript writes s as JSON Lines: a [TranscriptHeader] followed by
// one [Turn] per line in index order.
func WriteTranscript(w io.Writer, s *Session, info ExportInfo) error {
	snap := s.Snapshot()
	end := snap.EndedAt
	if end.IsZero() {
		end = s.now()
	}
	hdr := TranscriptHeader{
		InterviewID: s.ID(),
		Date:        s.CreatedAt(),
		Duration:    end.Sub(s.CreatedAt()).Round(time.Second).String(),
		TotalTurns:  len(snap.Turns),
		Status:      snap.Status,
		Languages:   s.Languages(),
		Job:         info.Job,
		Candidate:   info.Candidate,
		Providers:   info.Providers,
		Metadata:    s.Metadata(),
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(hdr); err != nil {
		return fmt.Errorf("session: write transcript header: %w", err)
	}
	for _, t := range snap.Turns {
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("session: write transcript turn %d: %w", t.Index, err)
		}
	}
	return bw.Flush()
}

// ExportTranscript writes the transcript of s to a new file in dir and
// returns its path.
func ExportTranscript(dir string, s *Session, info ExportInfo) (path string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("session: export transcript: %w", err)
	}
	name := fmt.Sprintf("interview_%s_%s.jsonl", s.CreatedAt().Format("20060102_150405"), s.ID())
	path = filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("session: export transcript: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("session: export transcript: %w", cerr)
		}
	}()
	if err := WriteTranscript(f, s, info); err != nil {
		return "", err
	}
	return path, nil
}

// ReadTranscript parses a transcript written by [WriteTranscript].
func ReadTranscript(r io.Reader) (TranscriptHeader, []Turn, error) {
	dec := json.NewDecoder(r)
	var hdr TranscriptHeader
	if err := dec.Decode(&hdr); err != nil {
		return hdr, nil, fmt.Errorf("session: read transcript header: %w", err)
	}
	var turns []Turn
	for dec.More() {
		var t Turn
		if err := dec.Decode(&t); err != nil {
			return hdr, turns, fmt.Errorf("session: read transcript turn %d: %w", len(turns)+1, err)
		}
		turns = append(turns, t)
	}
	return hdr, turns, nil
}
