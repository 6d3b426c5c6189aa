package decoder

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
)

// Ref locates one exportable record. Which fields are set depends on
// Source.
type Ref struct {
	Source      internal.Source `json:"source"`
	SessionFile string          `json:"session_file,omitempty"`
	StorageBase string          `json:"storage_base,omitempty"`
	SessionID   string          `json:"session_id,omitempty"`
	DBPath      string          `json:"db_path,omitempty"`
	WorkspaceID string          `json:"workspace_id,omitempty"`
	TabID       string          `json:"tab_id,omitempty"`
	ComposerID  string          `json:"composer_id,omitempty"`
	Index       int             `json:"index"`
}

// String renders the ref for error messages
func (r Ref) String() string {
	switch r.Source {
	case internal.SourceOpenCode, internal.SourceOpenCodeDesktop:
		return r.StorageBase + ":" + r.SessionID
	case internal.SourceCursorChat:
		return fmt.Sprintf("%s tab %s", r.DBPath, r.TabID)
	case internal.SourceCursorWorkspaceComposer, internal.SourceCursorComposer:
		return fmt.Sprintf("%s composer %s", r.DBPath, r.ComposerID)
	case internal.SourceCursorAIService:
		return fmt.Sprintf("%s index %d", r.DBPath, r.Index)
	}
	return r.SessionFile
}

// ExportName returns the file name prefix and the identifying parts that
// follow the query piece in an export file name.
func (r Ref) ExportName(conv *internal.Conversation) (string, []string) {
	sid := ""
	if conv != nil {
		sid = conv.SessionID
	}
	if sid == "" {
		sid = r.SessionID
	}
	if sid == "" && r.SessionFile != "" {
		sid = fileStem(r.SessionFile)
	}

	switch r.Source {
	case internal.SourceCodex:
		return "codex", []string{sid}
	case internal.SourceClaudeCode:
		return "claude_code", []string{sid}
	case internal.SourceCopilot:
		return "copilot", []string{sid}
	case internal.SourceGemini:
		return "gemini", []string{sid}
	case internal.SourceOpenCode:
		return "opencode", []string{r.SessionID}
	case internal.SourceOpenCodeDesktop:
		return "opencode_desktop", []string{r.SessionID}
	case internal.SourceCursorChat:
		return "cursor_chat", []string{r.WorkspaceID, r.TabID}
	case internal.SourceCursorWorkspaceComposer:
		return "cursor_ws_composer", []string{r.WorkspaceID, r.ComposerID}
	case internal.SourceCursorAIService:
		return "cursor_aiservice", []string{r.WorkspaceID, strconv.Itoa(r.Index)}
	case internal.SourceCursorComposer:
		return "cursor_composer", []string{r.ComposerID}
	}
	return strings.ReplaceAll(string(r.Source), "-", "_"), []string{sid}
}

// Resolve re-reads the record a Ref points at
func Resolve(fs afero.Fs, ref Ref) (*internal.Conversation, error) {
	var (
		conv *internal.Conversation
		err  error
	)

	switch ref.Source {
	case internal.SourceCodex:
		conv, err = NewCodexDecoder(fs).DecodeFile(ref.SessionFile)
	case internal.SourceClaudeCode:
		conv, err = NewClaudeDecoder(fs).DecodeFile(ref.SessionFile)
	case internal.SourceCopilot:
		if filepath.Ext(ref.SessionFile) == ".json" {
			conv, err = NewCopilotDecoder(fs).DecodeHistoryFile(ref.SessionFile)
		} else {
			conv, err = NewCopilotDecoder(fs).DecodeFile(ref.SessionFile)
		}
	case internal.SourceGemini:
		conv, err = NewGeminiDecoder(fs).DecodeFile(ref.SessionFile)
	case internal.SourceOpenCode:
		if ref.SessionID == "" {
			return nil, fmt.Errorf("opencode match did not include a session id")
		}
		conv, err = NewOpenCodeDecoder(fs).DecodeSession(ref.StorageBase, ref.SessionID)
	case internal.SourceOpenCodeDesktop:
		if ref.SessionID == "" {
			return nil, fmt.Errorf("opencode-desktop match did not include a session id")
		}
		conv, err = NewOpenCodeDesktopDecoder(fs).DecodeSession(ref.StorageBase, ref.SessionID)
	case internal.SourceCursorChat:
		conv, err = NewCursorDecoder(fs).DecodeTab(ref.DBPath, ref.WorkspaceID, ref.TabID)
	case internal.SourceCursorWorkspaceComposer:
		conv, err = NewCursorDecoder(fs).DecodeWorkspaceComposer(ref.DBPath, ref.WorkspaceID, ref.ComposerID)
	case internal.SourceCursorAIService:
		conv, err = NewCursorDecoder(fs).DecodeAIService(ref.DBPath, ref.WorkspaceID, ref.Index)
	case internal.SourceCursorComposer:
		conv, err = NewCursorDecoder(fs).DecodeComposer(ref.DBPath, ref.ComposerID)
	default:
		return nil, fmt.Errorf("unknown export source: %s", ref.Source)
	}

	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, &internal.RecordNotFoundError{Source: string(ref.Source), Ref: ref.String()}
	}
	return conv, nil
}
