package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/emendhq/emend/internal/config"
	"github.com/emendhq/emend/internal/ingest"
)

//go:embed templates/*
var templatesFS embed.FS

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize creates the Emend project structure
// If force is true, it will remove existing emend.yml and standards/ directory
func Initialize(force bool) error {
	// Handle --force flag
	if force {
		if err := handleForce(); err != nil {
			return err
		}
	}

	// Get template files
	files, err := getTemplateFiles()
	if err != nil {
		return err
	}

	// Create directories
	if err := createDirectories(); err != nil {
		return err
	}

	// Write files
	if err := writeFiles(files); err != nil {
		return err
	}

	// Validate created files
	if err := validateCreatedFiles(); err != nil {
		return err
	}

	return nil
}

// handleForce removes existing files if --force was specified
func handleForce() error {
	// Remove emend.yml if it exists
	if _, err := os.Stat("emend.yml"); err == nil {
		fmt.Println("⚠️  Removing existing emend.yml...")
		if err := os.Remove("emend.yml"); err != nil {
			return fmt.Errorf("failed to remove emend.yml: %w", err)
		}
	}

	// Remove standards/ directory if it exists
	if info, err := os.Stat("standards"); err == nil && info.IsDir() {
		fmt.Println("⚠️  Removing existing standards/ directory...")
		if err := os.RemoveAll("standards"); err != nil {
			return fmt.Errorf("failed to remove standards/ directory: %w", err)
		}
	}

	return nil
}

// getTemplateFiles reads and processes all template files
func getTemplateFiles() ([]FileInfo, error) {
	files := []FileInfo{}

	// emend.yml
	emendYml, err := templatesFS.ReadFile("templates/emend.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read emend.yml template: %w", err)
	}
	files = append(files, FileInfo{
		Path:        "emend.yml",
		Content:     emendYml,
		Permissions: 0644,
	})

	// standards/example-standard.txt
	standard, err := templatesFS.ReadFile("templates/example-standard.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read example standard template: %w", err)
	}
	files = append(files, FileInfo{
		Path:        filepath.Join("standards", "example-standard.txt"),
		Content:     standard,
		Permissions: 0644,
	})

	return files, nil
}

// createDirectories creates the necessary directory structure
func createDirectories() error {
	dirs := []string{
		"standards",
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// writeFiles writes all template files to disk
func writeFiles(files []FileInfo) error {
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return nil
}

// validateCreatedFiles validates that created files are correct
func validateCreatedFiles() error {
	// emend.yml must pass the same strict load the CLI performs
	if _, err := config.Load("emend.yml"); err != nil {
		return fmt.Errorf("created emend.yml failed validation: %w", err)
	}

	// The example standard must split into sections
	content, err := os.ReadFile(filepath.Join("standards", "example-standard.txt"))
	if err != nil {
		return fmt.Errorf("failed to read created example standard: %w", err)
	}
	if _, err := ingest.Scan("example", string(content)); err != nil {
		return fmt.Errorf("created example standard failed to scan: %w", err)
	}

	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess() {
	fmt.Println("\n✅ Successfully initialized Emend project!")
	fmt.Println("\nCreated:")
	fmt.Println("  ✓ emend.yml")
	fmt.Println("  ✓ standards/example-standard.txt")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Point capability.endpoint in emend.yml at your content service")
	fmt.Println("  2. Run 'emend up' to start an instance")
	fmt.Println("  3. Run 'emend ingest --standard FAS-28 standards/example-standard.txt'")
	fmt.Println("\nFor more information, visit: https://github.com/emendhq/emend")
}
