package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

// sessionInput is the file format read by process and cluster. Field names
// match the HTTP ingestion payloads.
type sessionInput struct {
	Roster     []models.RosterEntry     `json:"roster,omitempty"`
	Utterances []models.Utterance       `json:"utterances"`
	Embeddings []models.CachedEmbedding `json:"embeddings,omitempty"`
	Events     []models.SpeakerEvent    `json:"events,omitempty"`
	Turns      []models.DiarizationTurn `json:"turns,omitempty"`
	Memos      []models.Memo            `json:"memos,omitempty"`
}

// readInput reads path, or stdin when path is "-".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func readSessionInput(path string, stdin io.Reader) (*sessionInput, error) {
	data, err := readInput(path, stdin)
	if err != nil {
		return nil, err
	}
	var in sessionInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	return &in, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
