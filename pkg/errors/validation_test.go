package errors

import (
	"strings"
	"testing"
)

func TestValidateModuleName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "os", false},
		{"dotted", "xml.etree.ElementTree", false},
		{"underscore", "_ssl", false},
		{"wildcard", "encodings.*", false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 300), true},
		{"leading digit", "1abc", true},
		{"dash", "my-module", true},
		{"double dot", "a..b", true},
		{"trailing dot", "pkg.", true},
		{"slash", "pkg/mod", true},
		{"star in middle", "a.*.b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateModuleName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateModuleName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidModuleName) {
				t.Errorf("ValidateModuleName(%q) code = %v, want %v", tt.input, GetCode(err), ErrCodeInvalidModuleName)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty root", "", false},
		{"file", "icon.icns", false},
		{"nested", "data/images/logo.png", false},
		{"dotdot in name", "a..b/c", false},

		{"absolute", "/etc/passwd", true},
		{"traversal", "../outside", true},
		{"nested traversal", "a/../../b", true},
		{"backslash", "a\\b", true},
		{"null byte", "a\x00b", true},
		{"newline", "a\nb", true},
		{"too long", strings.Repeat("a", 600), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTargetName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "MyApp", false},
		{"spaces", "My App", false},

		{"empty", "", true},
		{"slash", "a/b", true},
		{"hidden", ".MyApp", true},
		{"control", "My\x01App", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTargetName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTargetName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
