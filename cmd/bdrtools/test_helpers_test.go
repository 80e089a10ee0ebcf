package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bdrtools/internal/testsupport"
)

type cliTestEnv struct {
	t          *testing.T
	repo       *testsupport.FakeRepo
	baseDir    string
	configPath string
	outputDir  string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	repo := testsupport.NewFakeRepo(t)

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, repo.URL())

	return &cliTestEnv{
		t:          t,
		repo:       repo,
		baseDir:    base,
		configPath: configPath,
		outputDir:  filepath.Join(base, "harvests"),
	}
}

func writeTestConfig(t *testing.T, path, baseURL string) {
	t.Helper()
	content := fmt.Sprintf("[api]\nbase_url = %q\nrequest_pause_ms = 0\n\n[logging]\nlevel = \"error\"\n", baseURL)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) addTextItem(pid, text string) {
	e.t.Helper()
	link := e.repo.URL() + testsupport.TextPath(pid)
	doc := fmt.Sprintf(`{"pid":%q,"primary_title":%q,"links":{"content_datastreams":{"EXTRACTED_TEXT":%q}},"datastreams":{"EXTRACTED_TEXT":{"size":%d}}}`,
		pid, "Title of "+pid, link, len(text))
	e.repo.AddItem(pid, doc)
	e.repo.AddText(pid, text)
}

func (e *cliTestEnv) setMembers(pids ...string) {
	docs := make([]map[string]any, 0, len(pids))
	for _, pid := range pids {
		docs = append(docs, map[string]any{"pid": pid, "primary_title": "Title of " + pid})
	}
	e.repo.SetSearchDocs(docs...)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
