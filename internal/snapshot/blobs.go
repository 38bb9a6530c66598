package snapshot

import (
	"encoding/json"
	"fmt"
)

// Blobs serializes the snapshot into the named text blobs stored in a
// backup. Settings and packages become indented JSON under their fixed
// blob names; user files are stored verbatim under their already
// sanitized names. Absent categories contribute nothing.
func (s *Snapshot) Blobs() (map[string]string, error) {
	blobs := make(map[string]string)

	if s.Settings != nil {
		raw := make(map[string]any, len(s.Settings))
		for sel, tree := range s.Settings {
			raw[sel] = tree.Interface()
		}

		data, err := json.MarshalIndent(raw, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("serializing settings: %w", err)
		}

		blobs[SettingsBlob] = string(data) + "\n"
	}

	if s.Packages != nil {
		data, err := json.MarshalIndent(s.Packages, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("serializing packages: %w", err)
		}

		blobs[PackagesBlob] = string(data) + "\n"
	}

	for name, file := range s.Files {
		blobs[name] = file.Content
	}

	return blobs, nil
}
