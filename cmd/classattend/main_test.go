package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "5_A_2025-09-01.csv")
	err := writeOutput(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "id,name,status\n")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "id,name,status\n" {
		t.Errorf("got %q", got)
	}

	boom := errors.New("boom")
	if err := writeOutput(path, func(io.Writer) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("expected writer error, got %v", err)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := [][]string{
		{"migrate"}, {"add-student"}, {"students"}, {"history"}, {"take"},
		{"override"}, {"retrain"}, {"serve"}, {"report", "day"}, {"report", "month"},
	}
	for _, path := range want {
		cmd, rest, err := rootCmd.Find(path)
		if err != nil || len(rest) != 0 || cmd.Name() != path[len(path)-1] {
			t.Errorf("command %v not registered: %v", path, err)
		}
	}
}

func TestReadFile(t *testing.T) {
	if data, err := readFile("", "photo"); err != nil || data != nil {
		t.Errorf("empty path: %v %v", data, err)
	}
	if _, err := readFile(filepath.Join(t.TempDir(), "missing.jpg"), "photo"); err == nil {
		t.Error("expected error for missing file")
	}
}
