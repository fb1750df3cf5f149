package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// ServerDefinition represents a game server configuration
type ServerDefinition struct {
	Name             string   `json:"name" yaml:"name"`
	Description      string   `json:"description,omitempty" yaml:"description,omitempty"`
	WorkingDirectory string   `json:"working_directory,omitempty" yaml:"working_directory,omitempty"`
	LaunchCommand    string   `json:"launch_command,omitempty" yaml:"launch_command,omitempty"`
	ExtraArgs        []string `json:"extra_args,omitempty" yaml:"extra_args,omitempty"`
}

type serversFile struct {
	Servers []ServerDefinition `yaml:"servers"`
}

// ServersPath returns the location of servers.yaml inside configDir.
func ServersPath(configDir string) string {
	return filepath.Join(configDir, "servers.yaml")
}

// LoadServers loads server definitions from YAML file
func LoadServers(configDir string) ([]ServerDefinition, error) {
	data, err := os.ReadFile(ServersPath(configDir))
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty list if file doesn't exist
			return []ServerDefinition{}, nil
		}
		return nil, fmt.Errorf("failed to read servers file: %w", err)
	}

	var file serversFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse servers file: %w", err)
	}

	seen := make(map[string]bool, len(file.Servers))
	for i := range file.Servers {
		if err := ValidateServerDefinition(&file.Servers[i]); err != nil {
			return nil, fmt.Errorf("invalid server definition at index %d: %w", i, err)
		}
		if seen[file.Servers[i].Name] {
			return nil, fmt.Errorf("duplicate server name %q at index %d", file.Servers[i].Name, i)
		}
		seen[file.Servers[i].Name] = true
	}

	return file.Servers, nil
}

// SaveServers saves server definitions to YAML file
func SaveServers(configDir string, servers []ServerDefinition) error {
	data, err := yaml.Marshal(serversFile{Servers: servers})
	if err != nil {
		return fmt.Errorf("failed to marshal servers: %w", err)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(ServersPath(configDir), data, 0644); err != nil {
		return fmt.Errorf("failed to write servers file: %w", err)
	}

	return nil
}

func ValidateServerDefinition(server *ServerDefinition) error {
	server.Name = strings.TrimSpace(server.Name)
	if server.Name == "" {
		return fmt.Errorf("server name is required")
	}
	if !isValidName(server.Name) {
		return fmt.Errorf("server name may only contain letters, digits, '-' and '_'")
	}
	if server.WorkingDirectory != "" && !isValidPath(server.WorkingDirectory) {
		return fmt.Errorf("server working_directory contains invalid characters")
	}
	for _, arg := range server.ExtraArgs {
		if !isValidArgs(arg) {
			return fmt.Errorf("server extra_args contains invalid characters")
		}
	}

	return nil
}

func isValidName(s string) bool {
	for _, r := range s {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

func isValidPath(s string) bool {
	// Block shell metacharacters that could allow command injection
	dangerous := ";|&$`()<>\"'\n"
	return !strings.ContainsAny(s, dangerous)
}

func isValidArgs(s string) bool {
	// Arguments might contain some punctuation but definitely not command separators
	dangerous := ";|&`$()<>\\\n"
	return !strings.ContainsAny(s, dangerous)
}
