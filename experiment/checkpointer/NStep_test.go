package checkpointer

import (
	"fmt"
	"testing"
)

// countingSaver records the filenames it was asked to save to
type countingSaver struct {
	saves []string
	fail  bool
}

func (c *countingSaver) Save(filename string) error {
	if c.fail {
		return fmt.Errorf("save failed")
	}
	c.saves = append(c.saves, filename)
	return nil
}

func TestNStepSavesOnInterval(t *testing.T) {
	saver := &countingSaver{}
	c, err := NewNStep(3, saver, "checkpoint.bin")
	if err != nil {
		t.Fatalf("could not create checkpointer: %v", err)
	}

	for step := 1; step <= 9; step++ {
		if err := c.Checkpoint(step); err != nil {
			t.Fatalf("could not checkpoint step %d: %v", step, err)
		}
	}

	if len(saver.saves) != 3 {
		t.Fatalf("expected 3 saves over 9 steps, got %v", len(saver.saves))
	}
	for _, filename := range saver.saves {
		if filename != "checkpoint.bin" {
			t.Errorf("expected every save to overwrite checkpoint.bin, "+
				"got %v", filename)
		}
	}
}

func TestNStepSkipsStepZero(t *testing.T) {
	saver := &countingSaver{}
	c, err := NewNStep(3, saver, "checkpoint.bin")
	if err != nil {
		t.Fatalf("could not create checkpointer: %v", err)
	}

	if err := c.Checkpoint(0); err != nil {
		t.Fatalf("could not checkpoint step 0: %v", err)
	}
	if len(saver.saves) != 0 {
		t.Error("expected no save before the first step")
	}
}

func TestNStepPropagatesSaveErrors(t *testing.T) {
	c, err := NewNStep(1, &countingSaver{fail: true}, "checkpoint.bin")
	if err != nil {
		t.Fatalf("could not create checkpointer: %v", err)
	}

	if err := c.Checkpoint(1); err == nil {
		t.Error("expected the save error to propagate")
	}
}

func TestNewNStepRejectsNonPositiveInterval(t *testing.T) {
	if _, err := NewNStep(0, &countingSaver{}, "checkpoint.bin"); err == nil {
		t.Error("expected an error for an interval of 0")
	}
}
