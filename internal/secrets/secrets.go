// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API credentials from a directory of plain-text
// files. Each file is one secret: the filename is the key and the
// trimmed contents are the value.
//
// Supported key files: ncbi-api-key, contact-email.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Secrets holds the credential set the pipeline understands.
type Secrets struct {
	// NCBIAPIKey raises NCBI E-utilities rate limits when present.
	NCBIAPIKey string

	// ContactEmail is appended to the User-Agent for polite-pool
	// identification with the registries.
	ContactEmail string
}

// Load reads all files in dir. A missing directory yields an empty
// Secrets; unreadable files produce a stderr warning but do not abort.
func Load(dir string) (Secrets, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return Secrets{}, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	var s Secrets
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", entry.Name(), err)
			continue
		}
		value := strings.TrimSpace(string(data))
		if value == "" {
			continue
		}
		switch entry.Name() {
		case "ncbi-api-key":
			s.NCBIAPIKey = value
		case "contact-email":
			s.ContactEmail = value
		}
	}
	return s, nil
}
