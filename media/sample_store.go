package media

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/facette/natsort"
)

const (
	samplePrefix = "face_"
	sampleExt    = ".png"
)

// ErrSampleNotFound is returned by Get for a (person, seq) that has no stored sample.
var ErrSampleNotFound = errors.New("face sample not found")

// DirSampleStore keeps gallery samples as <root>/<person>/face_<seq>.png.
type DirSampleStore struct {
	root string
}

func NewDirSampleStore(root string) (*DirSampleStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid gallery path '%s': %w", root, err)
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create gallery directory '%s': %w", absRoot, err)
	}
	log.Printf("media.samples: using gallery directory %s", absRoot)
	return &DirSampleStore{root: absRoot}, nil
}

func (s *DirSampleStore) personDir(person string) (string, error) {
	if person == "" || filepath.Base(person) != person || person == "." || person == ".." {
		return "", fmt.Errorf("invalid person directory name '%s'", person)
	}
	return within(s.root, person)
}

func sampleFilename(seq int) string {
	return samplePrefix + strconv.Itoa(seq) + sampleExt
}

// parseSampleFilename returns the sequence number encoded in a face_<seq>.png name.
func parseSampleFilename(name string) (int, bool) {
	if !strings.HasPrefix(name, samplePrefix) || !strings.HasSuffix(name, sampleExt) {
		return 0, false
	}
	seq, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, samplePrefix), sampleExt))
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}

func (s *DirSampleStore) Get(person string, seq int) ([]byte, error) {
	dir, err := s.personDir(person)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, sampleFilename(seq)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s #%d", ErrSampleNotFound, person, seq)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sample %s #%d: %w", person, seq, err)
	}
	return data, nil
}

// Put writes the sample atomically; an existing file for the same seq is replaced.
func (s *DirSampleStore) Put(person string, seq int, data []byte) error {
	if seq <= 0 {
		return fmt.Errorf("invalid sample sequence %d", seq)
	}
	dir, err := s.personDir(person)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", person, err)
	}
	return writeFileAtomic(filepath.Join(dir, sampleFilename(seq)), bytes.NewReader(data))
}

// ListPersons returns the names of all person directories in natural order.
func (s *DirSampleStore) ListPersons() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list gallery directory '%s': %w", s.root, err)
	}
	var persons []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			persons = append(persons, e.Name())
		}
	}
	natsort.Sort(persons)
	return persons, nil
}

// ListSequences returns the stored sequence numbers for person in ascending
// order. files that do not follow the face_<seq>.png pattern are ignored.
func (s *DirSampleStore) ListSequences(person string) ([]int, error) {
	dir, err := s.personDir(person)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list samples for %s: %w", person, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	natsort.Sort(names)

	var seqs []int
	for _, name := range names {
		if seq, ok := parseSampleFilename(name); ok {
			seqs = append(seqs, seq)
		}
	}
	return seqs, nil
}
