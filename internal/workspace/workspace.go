package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is the scratch area owned by a single pipeline run. Raw uploads
// land in RawDir, converter output in ConvertedDir. Nothing outlives the run.
type Workspace struct {
	RequestID    string
	RawDir       string
	ConvertedDir string
}

// Manager allocates and tears down per-request workspaces under one base
// directory. Requests never share directories.
type Manager struct {
	baseDir string
}

func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir}
}

// Allocate creates the scratch area for a request. Failure here is fatal to
// the request; the pipeline does not proceed without a workspace.
func (m *Manager) Allocate(requestID string) (*Workspace, error) {
	root := filepath.Join(m.baseDir, requestID)

	ws := &Workspace{
		RequestID:    requestID,
		RawDir:       filepath.Join(root, "raw"),
		ConvertedDir: filepath.Join(root, "converted"),
	}

	for _, dir := range []string{ws.RawDir, ws.ConvertedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to allocate workspace for request %s: %w", requestID, err)
		}
	}

	return ws, nil
}

// Release removes the request's scratch area. Releasing a workspace that does
// not exist is not an error, so cleanup paths can call it unconditionally.
func (m *Manager) Release(requestID string) error {
	root := filepath.Join(m.baseDir, requestID)

	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("failed to release workspace for request %s: %w", requestID, err)
	}

	return nil
}

// SaveRaw writes one uploaded file into the raw directory. The index prefix
// keeps on-disk names collision-free and aligned with input order.
func (m *Manager) SaveRaw(ws *Workspace, index int, filename string, data []byte) (string, error) {
	name := fmt.Sprintf("%03d_%s", index, filepath.Base(filename))
	path := filepath.Join(ws.RawDir, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", filename, err)
	}

	return path, nil
}
