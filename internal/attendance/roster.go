package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kozaktomas/attendance/internal/database"
	"gopkg.in/yaml.v3"
)

// Roster is a YAML list of students:
//
//	students:
//	  - matric: "1234"
//	    name: John Doe
type Roster struct {
	Students []database.Student `yaml:"students"`
}

// ReadRoster parses a roster.
func ReadRoster(r io.Reader) (*Roster, error) {
	var roster Roster
	if err := yaml.NewDecoder(r).Decode(&roster); err != nil {
		if errors.Is(err, io.EOF) {
			return &roster, nil
		}
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}
	return &roster, nil
}

// LoadRoster reads a roster file.
func LoadRoster(path string) (*Roster, error) {
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("failed to open roster: %w", err)
	}
	defer f.Close()
	return ReadRoster(f)
}

// ImportRoster registers every student of the roster, returning how many
// were newly inserted. Existing students keep their names.
func (s *Service) ImportRoster(ctx context.Context, roster *Roster) (int, error) {
	inserted := 0
	for _, st := range roster.Students {
		ok, err := s.ledger.RegisterStudent(ctx, st.Matric, st.Name)
		if err != nil {
			return inserted, fmt.Errorf("registering %s: %w", st.Matric, err)
		}
		if ok {
			inserted++
		}
	}
	s.logger.Info("imported roster", "students", len(roster.Students), "inserted", inserted)
	return inserted, nil
}

// SeedRoster imports the roster at path only when no student is registered
// yet. An empty path is a no-op.
func (s *Service) SeedRoster(ctx context.Context, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	count, err := s.ledger.CountStudents(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}
	roster, err := LoadRoster(path)
	if err != nil {
		return 0, err
	}
	return s.ImportRoster(ctx, roster)
}
