// Package export publie les tables d'un rapport : fichiers JSON horodatés et exchange AMQP.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"retail-analytics/pkg/models"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("retail")

// ExportJSON écrit data en JSON indenté dans filename, en créant le dossier si besoin.
func ExportJSON(filename string, data any) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}

	log.Debugf("export: %s", filename)
	return nil
}

func TimestampedFilename(baseDir, name string, t time.Time) string {
	return filepath.Join(baseDir, fmt.Sprintf("%s_%s.json", name, t.UTC().Format("20060102_150405")))
}

// WriteArtifacts écrit une table par fichier et retourne les chemins dans l'ordre des artefacts.
func WriteArtifacts(dir string, artifacts []models.Artifact, t time.Time) ([]string, error) {
	paths := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		path := TimestampedFilename(dir, a.Name, t)
		if err := ExportJSON(path, a.Records); err != nil {
			return paths, fmt.Errorf("artifact %s: %w", a.Name, err)
		}
		paths = append(paths, path)
	}
	log.Infof("export: %d tables écrites dans %s", len(paths), dir)
	return paths, nil
}
