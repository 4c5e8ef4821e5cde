package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "defaults",
			want: []string{"run", "--machine"},
		},
		{
			name: "device and target",
			opts: Options{DeviceID: "macos", Target: "lib/main_dev.dart"},
			want: []string{"run", "--machine", "-d", "macos", "-t", "lib/main_dev.dart"},
		},
		{
			name: "mode flavor and defines",
			opts: Options{
				Mode:        ModeProfile,
				Flavor:      "staging",
				DartDefines: map[string]string{"API_URL": "https://staging", "DEBUG_MENU": "true"},
				ExtraArgs:   []string{"--no-pub"},
			},
			want: []string{
				"run", "--machine", "--profile", "--flavor", "staging",
				"--dart-define", "API_URL=https://staging",
				"--dart-define", "DEBUG_MENU=true",
				"--no-pub",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildArgs(tt.opts))
		})
	}
}

func TestParseMode(t *testing.T) {
	m, ok := ParseMode("")
	assert.True(t, ok)
	assert.Equal(t, ModeDebug, m)

	m, ok = ParseMode("Release")
	assert.True(t, ok)
	assert.Equal(t, ModeRelease, m)

	_, ok = ParseMode("jit")
	assert.False(t, ok)
}
