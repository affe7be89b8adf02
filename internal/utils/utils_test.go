package utils

import (
	"archive/zip"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{
		0:       "0 B",
		1023:    "1023 B",
		16384:   "16.00 KB",
		3 << 20: "3.00 MB",
	}
	for in, want := range tests {
		if got := FormatSize(in); got != want {
			t.Errorf("FormatSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatTimeDuration(t *testing.T) {
	if got := FormatTimeDuration(75 * time.Second); got != "1m 15s" {
		t.Errorf("got %q", got)
	}
	if got := FormatTimeDuration(time.Hour + 2*time.Second); got != "1h 0m 2s" {
		t.Errorf("got %q", got)
	}
}

func TestSafeFilename(t *testing.T) {
	tests := map[string]string{
		"notes.txt":           "notes.txt",
		"../../etc/passwd":    "passwd",
		"..\\..\\boot.ini":    "boot.ini",
		"/abs/path/photo.jpg": "photo.jpg",
		"..":                  "download",
		"":                    "download",
	}
	for in, want := range tests {
		if got := SafeFilename(in); got != want {
			t.Errorf("SafeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetUniqueFilename(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "notes.txt")
	if got := GetUniqueFilename(name); got != name {
		t.Fatalf("got %q for a free name", got)
	}
	os.WriteFile(name, nil, 0o644)
	os.WriteFile(filepath.Join(dir, "notes (1).txt"), nil, 0o644)
	if got, want := GetUniqueFilename(name), filepath.Join(dir, "notes (2).txt"); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestZipFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.bin")
	os.WriteFile(a, []byte("hello"), 0o644)
	os.WriteFile(b, []byte{0, 1, 2}, 0o644)

	target := filepath.Join(dir, "out.zip")
	if err := ZipFiles([]string{a, b}, target); err != nil {
		t.Fatal(err)
	}

	r, err := zip.OpenReader(target)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if len(r.File) != 2 || r.File[0].Name != "a.txt" || r.File[1].Name != "b.bin" {
		t.Fatalf("unexpected entries: %v", r.File)
	}
}

func TestRelayHeuristics(t *testing.T) {
	for _, name := range []string{"tun0", "wg0", "CloudflareWARP", "ppp0"} {
		if !IsTunnelInterface(name) {
			t.Errorf("%s not detected as tunnel", name)
		}
	}
	if IsTunnelInterface("eth0") {
		t.Error("eth0 detected as tunnel")
	}
	if !IsCGNAT(net.ParseIP("100.100.1.1")) {
		t.Error("100.100.1.1 not in CGNAT range")
	}
	if IsCGNAT(net.ParseIP("192.168.1.1")) || IsCGNAT(nil) {
		t.Error("false CGNAT match")
	}
}
