package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// StepClean is the name of the clean step.
const StepClean = "clean"

// Clean returns a collaborator that empties and recreates dir.
// It refuses to clean the filesystem root or the working directory.
func Clean(dir string) FuncCollaborator {
	return FuncCollaborator{
		Name: StepClean,
		Fn: func(context.Context) (string, error) {
			abs, err := filepath.Abs(dir)
			if err != nil {
				return "", fmt.Errorf("resolve %s: %w", dir, err)
			}
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			if dir == "" || abs == filepath.Dir(abs) || abs == wd {
				return "", fmt.Errorf("refusing to clean %q", dir)
			}
			if err := os.RemoveAll(abs); err != nil {
				return "", fmt.Errorf("remove %s: %w", abs, err)
			}
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return "", fmt.Errorf("create %s: %w", abs, err)
			}
			return "cleaned " + dir, nil
		},
	}
}
