// Package workspace owns the on-disk layout of one document's encode,
// translate and decode runs.
//
// For an input "paper.tex" the workspace directory is <root>/paper and holds:
//
//	paper.tex                 copy of the input
//	paper.CODED.tex           tokenized text
//	paper_placeholders.json   placeholder mapping
//	paper.TRANSLATED.tex      output of the translation step
//	paper_translated.tex      restored document
package workspace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"texguard/internal/logger"
	"texguard/internal/tokenizer"
	"texguard/internal/types"
)

const (
	codedTemplate        = "%s.CODED.tex"
	translatedTemplate   = "%s.TRANSLATED.tex"
	placeholdersTemplate = "%s_placeholders.json"
	restoredTemplate     = "%s_translated.tex"
)

// Workspace 单个文档的工作目录
type Workspace struct {
	Dir  string
	Base string // input file name without extension
	Ext  string // input file extension, usually ".tex"
}

// New derives the workspace of input under root. An empty root means the
// current directory.
func New(root, input string) *Workspace {
	name := filepath.Base(input)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if root == "" {
		root = "."
	}
	return &Workspace{Dir: filepath.Join(root, base), Base: base, Ext: ext}
}

// Ensure creates the workspace directory.
func (w *Workspace) Ensure() error {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return types.NewAppErrorWithDetails(types.ErrInternal, "failed to create workspace", w.Dir, err)
	}
	return nil
}

// InputCopyPath is where the input document is copied.
func (w *Workspace) InputCopyPath() string {
	return filepath.Join(w.Dir, w.Base+w.Ext)
}

// CodedPath is the tokenized document.
func (w *Workspace) CodedPath() string {
	return filepath.Join(w.Dir, fmt.Sprintf(codedTemplate, w.Base))
}

// TranslatedPath is the tokenized document after the translation step.
func (w *Workspace) TranslatedPath() string {
	return filepath.Join(w.Dir, fmt.Sprintf(translatedTemplate, w.Base))
}

// MappingPath is the persisted placeholder mapping.
func (w *Workspace) MappingPath() string {
	return filepath.Join(w.Dir, fmt.Sprintf(placeholdersTemplate, w.Base))
}

// RestoredPath is the default location of the restored document.
func (w *Workspace) RestoredPath() string {
	return filepath.Join(w.Dir, fmt.Sprintf(restoredTemplate, w.Base))
}

// SaveMapping writes mapping as an indented JSON array of
// {"placeholder", "substring"} records.
func SaveMapping(path string, mapping tokenizer.Mapping) error {
	if mapping == nil {
		mapping = tokenizer.Mapping{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // substrings hold raw LaTeX such as & and <
	enc.SetIndent("", "    ")
	if err := enc.Encode(mapping); err != nil {
		return types.NewAppError(types.ErrMapping, "failed to marshal placeholder mapping", err)
	}
	data := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if err := WriteFileAtomic(path, data, 0644); err != nil {
		return types.NewAppErrorWithDetails(types.ErrMapping, "failed to write placeholder mapping", path, err)
	}
	logger.Debug("saved placeholder mapping",
		logger.String("path", path),
		logger.Int("entries", len(mapping)))
	return nil
}

// LoadMapping reads a mapping written by SaveMapping and checks that its
// placeholders are numbered in sequence.
func LoadMapping(path string) (tokenizer.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewAppErrorWithDetails(types.ErrFileNotFound, "placeholder mapping not found", path, err)
		}
		return nil, types.NewAppErrorWithDetails(types.ErrMapping, "failed to read placeholder mapping", path, err)
	}

	var mapping tokenizer.Mapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrMapping, "invalid placeholder mapping", path, err)
	}
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	return mapping, nil
}
