package scaffold

import (
	"fmt"
	"os"
)

// CheckExisting checks if emend.yml or standards/ directory already exist
// Returns an error if they do, nil otherwise
func CheckExisting() error {
	var existingFiles []string

	// Check for emend.yml
	if _, err := os.Stat("emend.yml"); err == nil {
		existingFiles = append(existingFiles, "emend.yml")
	}

	// Check for standards/ directory
	if info, err := os.Stat("standards"); err == nil && info.IsDir() {
		existingFiles = append(existingFiles, "standards/")
	}

	if len(existingFiles) > 0 {
		errMsg := "project already initialized\n\nFound existing"
		if len(existingFiles) == 1 {
			errMsg += fmt.Sprintf(": %s", existingFiles[0])
		} else {
			errMsg += " files:\n"
			for _, file := range existingFiles {
				errMsg += fmt.Sprintf("  - %s\n", file)
			}
		}
		errMsg += "\nUse 'emend init --force' to reinitialize (this will overwrite existing configuration)"

		return fmt.Errorf("%s", errMsg)
	}

	return nil
}
