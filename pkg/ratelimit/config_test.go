package ratelimit

import (
	"testing"
	"time"
)

func TestCategory_Validate(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		wantErr  bool
	}{
		{name: "valid", category: Category{Name: "auth", Window: 15 * time.Minute, MaxRequests: 5}},
		{name: "empty name", category: Category{Name: " ", Window: time.Minute, MaxRequests: 5}, wantErr: true},
		{name: "zero window", category: Category{Name: "auth", MaxRequests: 5}, wantErr: true},
		{name: "negative max", category: Category{Name: "auth", Window: time.Minute, MaxRequests: -1}, wantErr: true},
		{name: "zero max", category: Category{Name: "auth", Window: time.Minute}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.category.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateIdleThreshold(t *testing.T) {
	categories := []Category{
		{Name: "public-read", Window: time.Minute, MaxRequests: 100},
		{Name: "posts-regular-user", Window: time.Hour, MaxRequests: 1},
	}

	tests := []struct {
		name    string
		idle    time.Duration
		wantErr bool
	}{
		{name: "equal to longest window", idle: time.Hour},
		{name: "longer than longest window", idle: 2 * time.Hour},
		{name: "shorter than longest window", idle: 30 * time.Minute, wantErr: true},
		{name: "zero", idle: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdleThreshold(tt.idle, categories)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdleThreshold() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if got := LongestWindow(categories); got != time.Hour {
		t.Errorf("LongestWindow() = %v, want 1h", got)
	}
}

func TestKeyHelpers(t *testing.T) {
	if got := (Key{Client: "1.2.3.4", Category: "auth"}).String(); got != "auth:1.2.3.4" {
		t.Errorf("Key.String() = %q", got)
	}
	if got := SubjectClient("uid-1"); got != "subject:uid-1" {
		t.Errorf("SubjectClient() = %q", got)
	}
}
