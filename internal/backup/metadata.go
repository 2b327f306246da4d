package backup

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"gopkg.in/yaml.v3"
)

// ManifestFilename is written at the top of each run directory.
const ManifestFilename = "manifest.yaml"

// Metadata describes one saved file.
type Metadata struct {
	Path       string    `yaml:"path"`        // Relative path in the destination
	BackupPath string    `yaml:"backup_path"` // Path inside the backup filesystem
	CreatedAt  time.Time `yaml:"created_at"`  // When the backup was taken
	ModifiedAt time.Time `yaml:"modified_at"` // Modification time of the saved copy
	Hash       string    `yaml:"hash"`        // SHA256 of the content
	Size       int64     `yaml:"size"`
}

// Manifest lists the files saved by one run. It is written for people
// inspecting the backup directory; bkup never reads it back during a sync.
type Manifest struct {
	RunID       string     `yaml:"run_id"`
	Source      string     `yaml:"source,omitempty"`
	Destination string     `yaml:"destination,omitempty"`
	Files       []Metadata `yaml:"files"`
}

// WriteManifest writes the run manifest. Nothing is written when no file was
// saved.
func (s *Store) WriteManifest(source, destination string) error {
	records := s.Records()
	if len(records) == 0 {
		return nil
	}

	data, err := yaml.Marshal(&Manifest{
		RunID:       s.runID,
		Source:      source,
		Destination: destination,
		Files:       records,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	// #nosec G306 - manifest is metadata and can be group-readable
	if err := util.WriteFile(s.fs, path.Join(s.runID, ManifestFilename), data, BackupFilePerm); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest reads the manifest of a run.
func (s *Store) ReadManifest(runID string) (*Manifest, error) {
	data, err := util.ReadFile(s.fs, path.Join(runID, ManifestFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %q has no manifest", runID)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}
