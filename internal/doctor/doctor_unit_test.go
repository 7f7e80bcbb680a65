package doctor

import (
	"testing"
)

func TestParseMajorMinor(t *testing.T) {
	tests := []struct {
		name      string
		ver       string
		wantMajor int
		wantMinor int
		wantErr   bool
	}{
		{"simple", "1.23", 1, 23, false},
		{"with patch", "1.23.2", 1, 23, false},
		{"v prefix", "v1.20.1", 1, 20, false},
		{"single number", "1", 0, 0, true},
		{"empty", "", 0, 0, true},
		{"bad major", "abc.11", 0, 0, true},
		{"bad minor", "1.xyz", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			major, minor, err := parseMajorMinor(tt.ver)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseMajorMinor(%q) = (%d,%d,nil); want error", tt.ver, major, minor)
				}

				return
			}

			if err != nil {
				t.Fatalf("parseMajorMinor(%q) error: %v", tt.ver, err)
			}

			if major != tt.wantMajor || minor != tt.wantMinor {
				t.Fatalf("parseMajorMinor(%q) = (%d,%d); want (%d,%d)",
					tt.ver, major, minor, tt.wantMajor, tt.wantMinor)
			}
		})
	}
}

func TestCheckRuntimeVersion(t *testing.T) {
	tests := []struct {
		name    string
		ver     string
		api     uint32
		wantErr bool
	}{
		{"exact", "1.23.0", 23, false},
		{"newer", "1.24.1", 23, false},
		{"older", "1.22.0", 23, true},
		{"major 2", "2.0.0", 23, true},
		{"garbage", "abc", 23, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkRuntimeVersion(tt.ver, tt.api)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkRuntimeVersion(%q, %d) = %v; wantErr=%v", tt.ver, tt.api, err, tt.wantErr)
			}
		})
	}
}
