package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// apiKeyEnv is read by the config loader as an llm.api_key override.
const apiKeyEnv = "CHAT_RECAP_API_KEY"

// CredentialScope determines where credentials are persisted.
type CredentialScope string

const (
	ScopeProject CredentialScope = "project" // Write to project .env
	ScopeGlobal  CredentialScope = "global"  // Write to ~/.config/chat-recap/.env
)

type initOptions struct {
	template string
	path     string
	apiKey   string
	scope    string
	list     bool
}

func newInitCmd() *cobra.Command {
	var opts initOptions
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config and optionally store an API key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if opts.list {
				names, err := listEmbeddedConfigs()
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			data, err := getEmbeddedConfig(opts.template)
			if err != nil {
				return fmt.Errorf("unknown template %q (see init --list)", opts.template)
			}
			written, err := writeIfNotExists(opts.path, data)
			if err != nil {
				return err
			}
			if written {
				fmt.Fprintf(out, "Wrote %s from template %s\n", opts.path, opts.template)
			} else {
				fmt.Fprintf(out, "%s already exists, left unchanged\n", opts.path)
			}

			if opts.apiKey != "" {
				envPath, err := persistCredential(apiKeyEnv, opts.apiKey, CredentialScope(opts.scope))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Stored %s in %s\n", apiKeyEnv, envPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.template, "template", "t", defaultConfigName, "embedded config template")
	cmd.Flags().StringVarP(&opts.path, "path", "p", appName+".yaml", "where to write the config")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "API key to store in an .env file")
	cmd.Flags().StringVar(&opts.scope, "scope", string(ScopeProject), "where to store the key: project or global")
	cmd.Flags().BoolVarP(&opts.list, "list", "l", false, "list embedded templates")
	return cmd
}

// writeIfNotExists writes data to path unless a file is already there.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return false, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// =============================================================================
// CREDENTIAL PERSISTENCE
// =============================================================================

// persistCredential saves a credential based on the specified scope and
// returns the file it was written to.
func persistCredential(key, value string, scope CredentialScope) (string, error) {
	switch scope {
	case ScopeProject, "":
		return ".env", appendToEnvFile(".env", key, value)
	case ScopeGlobal:
		dir := configDir()
		if dir == "" {
			return "", fmt.Errorf("could not determine home directory, credential not persisted")
		}
		globalEnv := filepath.Join(dir, ".env")
		return globalEnv, appendToEnvFile(globalEnv, key, value)
	default:
		return "", fmt.Errorf("unknown scope %q (want %s or %s)", scope, ScopeProject, ScopeGlobal)
	}
}

// appendToEnvFile appends or updates a key=value pair in an .env file.
func appendToEnvFile(envPath, key, value string) error {
	dir := filepath.Dir(envPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("could not create directory %s: %w", dir, err)
	}

	var lines []string
	found := false

	file, err := os.Open(envPath)
	if err == nil {
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				found = true
			} else {
				lines = append(lines, line)
			}
		}
		file.Close()
	}

	if !found {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}

	output := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(envPath, []byte(output), 0600); err != nil {
		return fmt.Errorf("could not write to %s: %w", envPath, err)
	}
	return nil
}
