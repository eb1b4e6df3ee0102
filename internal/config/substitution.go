package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Variable substitution patterns
var envVarPattern = regexp.MustCompile(`\$\{env://([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// parseVariableWithDefault extracts variable name and default value
// Works for both ${var:-default} and ${env://var:-default} patterns
func parseVariableWithDefault(varPart string) (varName, defaultValue string, hasDefault bool) {
	// Handle the case where varPart is like "VAR:-default" or just "VAR"
	if strings.Contains(varPart, ":-") {
		parts := strings.SplitN(varPart, ":-", 2)
		return parts[0], parts[1], true
	}
	return varPart, "", false
}

// SubstituteConfigEnvVars replaces ${env://VAR} and ${env://VAR:-default}
// references with environment variables before a config file's contents
// reach viper. Any of LoadFile's fields - approval_mode, allowed_tools,
// temp_dir, the thresholds block - can carry one of these references in
// place of a literal value. If a variable is not set and has a default
// value, the default is used. Returns an error naming every required
// variable (one without a default) that isn't set.
func SubstituteConfigEnvVars(content string) (string, error) {
	var errors []string

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		// Extract the variable part from ${env://VAR:-default}
		// Remove ${env:// prefix and } suffix
		varPart := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${env://")

		varName, defaultValue, hasDefault := parseVariableWithDefault(varPart)

		if envValue := os.Getenv(varName); envValue != "" {
			return envValue
		}

		if hasDefault {
			return defaultValue
		}

		errors = append(errors, fmt.Sprintf("required environment variable %s not set in %s", varName, match))
		return match // Keep original if error
	})

	if len(errors) > 0 {
		return "", fmt.Errorf("config env substitution failed: %s", strings.Join(errors, ", "))
	}

	return result, nil
}

// HasEnvVars checks if content contains environment variable patterns (${env://...}).
// This is useful for determining if substitution is needed before processing.
func HasEnvVars(content string) bool {
	return envVarPattern.MatchString(content)
}
