package transfer_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/italolelis/transloader/internal/transfer"
	"github.com/stretchr/testify/assert"
)

func TestFormatRate(t *testing.T) {
	tests := []struct {
		bytesPerSec int64
		want        string
	}{
		{0, "0 B/s"},
		{512, "512 B/s"},
		{1023, "1023 B/s"},
		{2048, "2.00 KB/s"},
		{1536, "1.50 KB/s"},
		{5 * 1024 * 1024, "5.00 MB/s"},
		{3 * 1024 * 1024 * 1024, "3.00 GB/s"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, transfer.FormatRate(tt.bytesPerSec))
		})
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0s"},
		{45, "45s"},
		{59, "59s"},
		{60, "1m 0s"},
		{125, "2m 5s"},
		{3599, "59m 59s"},
		{3600, "1h 0m"},
		{7384, "2h 3m"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, transfer.FormatETA(tt.seconds))
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"spaces to underscores", "my file.mkv", "my_file.mkv"},
		{"hostile chars stripped", `My File?.mkv`, "My_File.mkv"},
		{"slashes stripped", `a/b\c.bin`, "abc.bin"},
		{"all hostile", `<>:"/\|?*`, ""},
		{"clean passes through", "already-clean_name.tar.gz", "already-clean_name.tar.gz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, transfer.SanitizeFilename(tt.in))
		})
	}

	t.Run("caps length at 200", func(t *testing.T) {
		got := transfer.SanitizeFilename(strings.Repeat("a", 250))
		assert.Len(t, got, 200)
	})

	t.Run("caps multibyte names by runes", func(t *testing.T) {
		got := transfer.SanitizeFilename(strings.Repeat("é", 250))
		assert.Equal(t, 200, utf8.RuneCountInString(got))
		assert.True(t, utf8.ValidString(got))
	})
}
