package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"bharatvista/pkg/model"
	"bharatvista/pkg/narration"
	"bharatvista/pkg/store"
)

// Catalogue is the read side of the monument catalogue the checks inspect.
type Catalogue interface {
	All() []*model.Monument
	States() []model.Region
}

// CatalogueCheck fails when the catalogue is empty or a monument names a state that
// has no region record. It also reports monuments that cannot be narrated at all.
func CatalogueCheck(c Catalogue) Probe {
	return Probe{
		Name:     "Catalogue",
		Critical: true,
		Check: func(ctx context.Context) error {
			all := c.All()
			if len(all) == 0 {
				return errors.New("catalogue is empty")
			}
			states := make(map[string]bool)
			for _, r := range c.States() {
				states[r.Name] = true
			}
			var errs []error
			for _, m := range all {
				if !states[m.State] {
					errs = append(errs, fmt.Errorf("monument %q: unknown state %q", m.ID, m.State))
				}
			}
			return errors.Join(errs...)
		},
	}
}

// NarrationCoverageCheck reports monuments with neither an audio clip nor text.
func NarrationCoverageCheck(c Catalogue) Probe {
	return Probe{
		Name: "Narration coverage",
		Check: func(ctx context.Context) error {
			var missing []string
			for _, m := range c.All() {
				if !m.Narration.Available() {
					missing = append(missing, m.ID)
				}
			}
			if len(missing) > 0 {
				return fmt.Errorf("%d monuments without narration: %s", len(missing), strings.Join(missing, ", "))
			}
			return nil
		},
	}
}

// SpeechCheck verifies that the speech engine can synthesize and knows at least one
// voice. Without it, text-only monuments are unavailable, so it is not critical.
func SpeechCheck(e narration.SpeechEngine) Probe {
	return Probe{
		Name: "Speech synthesis",
		Check: func(ctx context.Context) error {
			if e == nil || !e.Available() {
				return errors.New("speech synthesis is not configured")
			}
			voices, err := e.Voices(ctx)
			if err != nil {
				return fmt.Errorf("failed to list voices: %w", err)
			}
			if len(voices) == 0 {
				return errors.New("no voices available")
			}
			return nil
		},
	}
}

// StoreCheck round-trips a state value through the persistent store.
func StoreCheck(st store.StateStore) Probe {
	const key = "probe_last_startup"
	return Probe{
		Name:     "State store",
		Critical: true,
		Check: func(ctx context.Context) error {
			if err := st.SetState(ctx, key, "ok"); err != nil {
				return err
			}
			if v, ok := st.GetState(ctx, key); !ok || v != "ok" {
				return errors.New("state value did not round-trip")
			}
			return st.DeleteState(ctx, key)
		},
	}
}

// AssetsDirCheck warns when the bundled audio directory is missing.
func AssetsDirCheck(dir string) Probe {
	return Probe{
		Name: "Audio assets",
		Check: func(ctx context.Context) error {
			if dir == "" {
				return nil
			}
			fi, err := os.Stat(dir)
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			return nil
		},
	}
}
