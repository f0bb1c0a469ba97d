package logger

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestSetupLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "defaults", cfg: Config{}},
		{name: "json debug", cfg: Config{Level: "debug", FormatJSON: true, Service: "scanner"}},
		{name: "rotation", cfg: Config{Level: "info", Rotation: Rotation{File: filepath.Join(t.TempDir(), "w.log"), MaxSize: 1}}},
		{name: "bad level", cfg: Config{Level: "loud"}, wantErr: ErrUnknownLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := SetupLogger(&tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SetupLogger() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SetupLogger() unexpected error: %v", err)
			}
			log.Info("hello")
		})
	}
}
