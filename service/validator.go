package service

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Validator confirms that a rendition landed completely on disk.
type Validator struct {
	Tiers []Tier
}

func NewValidator(tiers []Tier) *Validator {
	return &Validator{Tiers: tiers}
}

// Check reads the tier playlist (tier 0 selects the master) and verifies every
// referenced file exists inside outputDir.
func (v *Validator) Check(outputDir, baseName string, tier int) error {
	name := MasterPlaylistName(baseName)
	if tier > 0 {
		name = TierPlaylistName(baseName, tier)
	}

	data, err := os.ReadFile(filepath.Join(outputDir, name))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	refs := playlistReferences(data)
	if len(refs) == 0 {
		return fmt.Errorf("%s: no segment references", name)
	}

	for _, ref := range refs {
		target := filepath.Join(outputDir, filepath.FromSlash(ref))
		rel, err := filepath.Rel(outputDir, target)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%s: reference %q escapes the rendition directory", name, ref)
		}
		if _, err := os.Stat(target); err != nil {
			return fmt.Errorf("%s: missing segment %s: %w", name, ref, err)
		}
	}
	return nil
}

func (v *Validator) Validate(outputDir, baseName string, tier int) bool {
	return v.Check(outputDir, baseName, tier) == nil
}

// ValidateAll checks every tier playlist and the master.
func (v *Validator) ValidateAll(outputDir, baseName string) error {
	var errs []error
	for _, t := range v.Tiers {
		if err := v.Check(outputDir, baseName, t.Height); err != nil {
			errs = append(errs, err)
		}
	}
	if err := v.Check(outputDir, baseName, 0); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrValidationFailure}, errs...)...)
	}
	return nil
}

func playlistReferences(data []byte) []string {
	var refs []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		refs = append(refs, line)
	}
	return refs
}
