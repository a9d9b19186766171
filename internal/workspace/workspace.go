// Package workspace materializes and destroys the per-agent filesystem
// layout: a copy of an immutable template tree, a sessions/ subdirectory,
// a version-controlled workspace/ jail root, and an agent.json metadata
// file. Existence of the directory is the source of truth; the store
// only mirrors it.
package workspace

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chorus-run/chorus/internal/errs"
	"github.com/chorus-run/chorus/internal/identifier"
)

// AgentJSON is the contents of agent.json.
type AgentJSON struct {
	Name        string         `json:"name"`
	ChannelID   string         `json:"channel_id,omitempty"`
	Model       string         `json:"model,omitempty"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	Permissions string         `json:"permissions,omitempty"`
	CreatedAt   string         `json:"created_at"`
	Overrides   map[string]any `json:"overrides,omitempty"`
}

// Directory manages agent directories under a chorus home.
type Directory struct {
	home        string
	templateDir string
}

// New returns a Directory rooted at home, copying new agents from
// templateDir.
func New(home, templateDir string) *Directory {
	return &Directory{home: home, templateDir: templateDir}
}

func (d *Directory) agentsRoot() string { return filepath.Join(d.home, "agents") }

// EnsureHome creates the chorus home and its agents/ subdirectory.
func (d *Directory) EnsureHome() error {
	return os.MkdirAll(d.agentsRoot(), 0o755)
}

func (d *Directory) pathFor(name string) string {
	return filepath.Join(d.agentsRoot(), name)
}

// Create validates name, copies the template tree, creates sessions/,
// git-inits workspace/, and writes agent.json with the overrides stored
// under its "overrides" key.
func (d *Directory) Create(name string, overrides map[string]any) (string, error) {
	if err := identifier.ValidateAgentName(name); err != nil {
		return "", err
	}
	path := d.pathFor(name)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%q: %w", name, errs.ErrAgentExists)
	}
	if err := d.EnsureHome(); err != nil {
		return "", err
	}
	if err := copyTree(d.templateDir, path); err != nil {
		return "", fmt.Errorf("workspace: copy template: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(path, "sessions"), 0o755); err != nil {
		return "", err
	}
	workspaceDir := filepath.Join(path, "workspace")
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return "", err
	}
	if err := gitInit(workspaceDir); err != nil {
		return "", err
	}

	aj := AgentJSON{Name: name, CreatedAt: time.Now().UTC().Format(time.RFC3339), Overrides: overrides}
	if err := writeAgentJSON(path, aj); err != nil {
		return "", err
	}
	return path, nil
}

// Destroy removes the agent directory. When keepFiles is true it is
// archived under .trash/<name>-<unixnano> instead of being deleted
// outright.
func (d *Directory) Destroy(name string, keepFiles bool) error {
	path := d.pathFor(name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%q: %w", name, errs.ErrAgentNotFound)
	}
	if keepFiles {
		trash := filepath.Join(d.home, ".trash")
		if err := os.MkdirAll(trash, 0o755); err != nil {
			return err
		}
		dest := filepath.Join(trash, fmt.Sprintf("%s-%d", name, time.Now().UnixNano()))
		return os.Rename(path, dest)
	}
	return os.RemoveAll(path)
}

// GCTrash permanently removes .trash/ entries older than retentionDays,
// run by the A6 cron heartbeat's trash_gc_schedule job. Entries are
// named "<agent>-<unixnano>" (see Destroy), so age is read from that
// suffix rather than filesystem mtime.
func (d *Directory) GCTrash(retentionDays int) error {
	trash := filepath.Join(d.home, ".trash")
	entries, err := os.ReadDir(trash)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, e := range entries {
		idx := strings.LastIndexByte(e.Name(), '-')
		if idx < 0 {
			continue
		}
		nanos, err := strconv.ParseInt(e.Name()[idx+1:], 10, 64)
		if err != nil {
			continue
		}
		if time.Unix(0, nanos).Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(trash, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// Get returns the agent's directory path, or "" if it doesn't exist.
func (d *Directory) Get(name string) (string, bool) {
	path := d.pathFor(name)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// UpdateChannelID patches agent.json's channel_id field in place.
func (d *Directory) UpdateChannelID(name, channelID string) error {
	path, ok := d.Get(name)
	if !ok {
		return fmt.Errorf("%q: %w", name, errs.ErrAgentNotFound)
	}
	aj, err := readAgentJSON(path)
	if err != nil {
		return err
	}
	aj.ChannelID = channelID
	return writeAgentJSON(path, *aj)
}

// ReadAgentJSON reads the agent.json for an existing agent directory.
func (d *Directory) ReadAgentJSON(name string) (*AgentJSON, error) {
	path, ok := d.Get(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, errs.ErrAgentNotFound)
	}
	return readAgentJSON(path)
}

// WriteAgentJSON overwrites agent.json for an existing agent directory.
func (d *Directory) WriteAgentJSON(name string, aj AgentJSON) error {
	path, ok := d.Get(name)
	if !ok {
		return fmt.Errorf("%q: %w", name, errs.ErrAgentNotFound)
	}
	return writeAgentJSON(path, aj)
}

// ListAll returns every agent directory name, sorted.
func (d *Directory) ListAll() ([]string, error) {
	entries, err := os.ReadDir(d.agentsRoot())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// WorkspaceRoot returns the jail root for file tools: <home>/agents/<name>/workspace.
func (d *Directory) WorkspaceRoot(name string) string {
	return filepath.Join(d.pathFor(name), "workspace")
}

// SessionsDir returns <home>/agents/<name>/sessions.
func (d *Directory) SessionsDir(name string) string {
	return filepath.Join(d.pathFor(name), "sessions")
}

func readAgentJSON(dir string) (*AgentJSON, error) {
	data, err := os.ReadFile(filepath.Join(dir, "agent.json"))
	if err != nil {
		return nil, err
	}
	var aj AgentJSON
	if err := json.Unmarshal(data, &aj); err != nil {
		return nil, err
	}
	return &aj, nil
}

func writeAgentJSON(dir string, aj AgentJSON) error {
	data, err := json.MarshalIndent(aj, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "agent.json"), data, 0o644)
}

func gitInit(dir string) error {
	cmd := exec.Command("git", "init")
	cmd.Dir = dir
	return cmd.Run()
}

func copyTree(src, dst string) error {
	if src == "" {
		return os.MkdirAll(dst, 0o755)
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode().Perm())
	})
}
