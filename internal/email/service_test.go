package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderConfirmationTemplate(t *testing.T) {
	data := ConfirmationData{
		AppName:         "Inkwell",
		UserName:        "Test User",
		ConfirmationURL: "https://example.com/register/confirmation/abc123",
	}

	html, err := renderTemplate(confirmationEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Inkwell") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Test User") {
		t.Error("template should contain user name")
	}
	if !strings.Contains(html, "https://example.com/register/confirmation/abc123") {
		t.Error("template should contain confirmation URL")
	}
}

func TestRenderVerificationCodeTemplate(t *testing.T) {
	data := VerificationCodeData{
		AppName:  "Inkwell",
		UserName: "Test User",
		Code:     "482913",
		Reason:   "reset your password",
	}

	html, err := renderTemplate(verificationCodeEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "482913") {
		t.Error("template should contain the code")
	}
	if !strings.Contains(html, "reset your password") {
		t.Error("template should contain the reason")
	}
	if !strings.Contains(html, "15 minutes") {
		t.Error("template should mention expiration time")
	}
}
