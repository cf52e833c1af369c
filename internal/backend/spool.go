package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const manifestFile = "request.yaml"

// manifest is the on-disk form of a spooled submission.
type manifest struct {
	Receipt    Receipt    `yaml:"receipt"`
	Submission Submission `yaml:"submission"`
	PhotoFiles []string   `yaml:"photo_files"`
}

// Spool is a local backend that writes each submission into its own directory
// under Dir for a dispatcher to pick up. A submission directory appears
// atomically: it is assembled under a temp name, then renamed.
type Spool struct {
	Dir string
}

// NewSpool creates a spool rooted at dir.
func NewSpool(dir string) *Spool {
	return &Spool{Dir: dir}
}

// Submit writes the manifest and photo payloads, then commits the directory.
func (s *Spool) Submit(ctx context.Context, sub *Submission) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("spool submit: %w", err)
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}

	receipt := newReceipt()
	finalDir := filepath.Join(s.Dir, receipt.ID)
	tempDir := filepath.Join(s.Dir, "."+receipt.ID+".tmp")

	if err := s.write(tempDir, receipt, sub); err != nil {
		_ = os.RemoveAll(tempDir) // Best effort cleanup, ignore error
		return nil, err
	}

	if err := os.Rename(tempDir, finalDir); err != nil {
		if rmErr := os.RemoveAll(tempDir); rmErr != nil {
			slog.Warn("spool cleanup failed", "dir", tempDir, "error", rmErr)
		}
		return nil, fmt.Errorf("commit spooled submission: %w", err)
	}

	return receipt, nil
}

func (s *Spool) write(dir string, receipt *Receipt, sub *Submission) error {
	if err := os.MkdirAll(filepath.Join(dir, "photos"), 0755); err != nil {
		return fmt.Errorf("create submission directory: %w", err)
	}

	m := manifest{Receipt: *receipt, Submission: *sub}
	for _, p := range sub.Form.Photos {
		name := filepath.Join("photos", p.ID+filepath.Ext(filepath.Base(p.Name)))
		if err := os.WriteFile(filepath.Join(dir, name), p.Data, 0644); err != nil {
			return fmt.Errorf("write photo %s: %w", p.ID, err)
		}
		m.PhotoFiles = append(m.PhotoFiles, name)
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Load reads a committed submission back, photo payloads included.
func (s *Spool) Load(id string) (*Receipt, *Submission, error) {
	dir := filepath.Join(s.Dir, filepath.Base(id))
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, nil, fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, nil, fmt.Errorf("parse manifest: %w", err)
	}

	for i := range m.Submission.Form.Photos {
		if i >= len(m.PhotoFiles) {
			break
		}
		payload, err := os.ReadFile(filepath.Join(dir, m.PhotoFiles[i]))
		if err != nil {
			return nil, nil, fmt.Errorf("read photo %s: %w", m.Submission.Form.Photos[i].ID, err)
		}
		m.Submission.Form.Photos[i].Data = payload
	}

	return &m.Receipt, &m.Submission, nil
}
