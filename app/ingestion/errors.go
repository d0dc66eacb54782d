package ingestion

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports a single field failing schema validation.
type ValidationError struct {
	Message string
	Field   string
	Value   any
}

func (e *ValidationError) Error() string {
	if e.Field != "" && e.Value != nil {
		return fmt.Sprintf("%s (field=%q, value=%v)", e.Message, e.Field, e.Value)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s (field=%q)", e.Message, e.Field)
	}
	return e.Message
}

// ParseError reports a format-level failure at a specific line.
type ParseError struct {
	Message     string
	LineNumber  int // 0 means unset
	LineContent string
}

func (e *ParseError) Error() string {
	content := e.LineContent
	if len(content) > 100 {
		content = content[:100] + "..."
	}
	switch {
	case e.LineNumber > 0 && content != "":
		return fmt.Sprintf("%s (line %d: %q)", e.Message, e.LineNumber, content)
	case e.LineNumber > 0:
		return fmt.Sprintf("%s (line %d)", e.Message, e.LineNumber)
	default:
		return e.Message
	}
}

// ProviderNotFoundError reports a registry lookup miss.
type ProviderNotFoundError struct {
	ProviderName        string
	AvailableProviders []string
}

func (e *ProviderNotFoundError) Error() string {
	if len(e.AvailableProviders) == 0 {
		return fmt.Sprintf("unknown provider: %q. no providers registered", e.ProviderName)
	}
	avail := make([]string, len(e.AvailableProviders))
	copy(avail, e.AvailableProviders)
	sort.Strings(avail)
	return fmt.Sprintf("unknown provider: %q. available providers: %s", e.ProviderName, strings.Join(avail, ", "))
}

// SourceValidationError reports a source descriptor failing pre-flight checks.
type SourceValidationError struct {
	Message    string
	SourceType string
	Reason     string
}

func (e *SourceValidationError) Error() string {
	parts := []string{e.Message}
	if e.Message == "" {
		parts = nil
	}
	if e.SourceType != "" {
		parts = append(parts, fmt.Sprintf("source_type=%q", e.SourceType))
	}
	if e.Reason != "" {
		parts = append(parts, "reason: "+e.Reason)
	}
	if len(parts) == 0 {
		return "source validation failed"
	}
	return strings.Join(parts, " - ")
}

// SecurityValidationError reports a path or input failing safety checks,
// covering both path-traversal rejection and generic security validation.
type SecurityValidationError struct {
	Message string
	Path    string
}

func (e *SecurityValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("security validation failed: %s (path=%q)", e.Message, e.Path)
	}
	return fmt.Sprintf("security validation failed: %s", e.Message)
}
