package workspace

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"

	"texguard/internal/logger"
	"texguard/internal/types"
)

// Encoding names reported by DetectEncoding.
const (
	EncodingUTF8    = "UTF-8"
	EncodingUTF8BOM = "UTF-8-BOM"
	EncodingUTF16LE = "UTF-16LE"
	EncodingUTF16BE = "UTF-16BE"
	EncodingGBK     = "GBK"
	EncodingUnknown = "UNKNOWN"
)

// DetectEncoding inspects BOM markers and byte validity.
func DetectEncoding(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return EncodingUTF8BOM
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return EncodingUTF16LE
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return EncodingUTF16BE
	case utf8.Valid(data):
		return EncodingUTF8
	}

	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(data)
	if err == nil && utf8.Valid(decoded) {
		return EncodingGBK
	}
	return EncodingUnknown
}

// DecodeText converts data to a UTF-8 string with LF line endings.
func DecodeText(data []byte) (string, error) {
	enc := DetectEncoding(data)

	var decoded []byte
	var err error
	switch enc {
	case EncodingUTF8:
		decoded = data
	case EncodingUTF8BOM:
		decoded = data[3:]
	case EncodingUTF16LE:
		decoded, err = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Bytes(data)
	case EncodingUTF16BE:
		decoded, err = unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Bytes(data)
	case EncodingGBK:
		decoded, err = simplifiedchinese.GBK.NewDecoder().Bytes(data)
	default:
		return "", types.NewAppErrorWithDetails(types.ErrInvalidInput, "unsupported document encoding", enc, nil)
	}
	if err != nil {
		return "", types.NewAppErrorWithDetails(types.ErrInvalidInput, "failed to decode document", enc, err)
	}

	if enc != EncodingUTF8 {
		logger.Info("converted document encoding", logger.String("from", enc))
	}

	text := strings.ReplaceAll(string(decoded), "\r\n", "\n")
	return text, nil
}

// ReadDocument reads path and returns its text as UTF-8 with LF line endings.
func ReadDocument(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", types.NewAppErrorWithDetails(types.ErrFileNotFound, "document not found", path, err)
		}
		return "", types.NewAppErrorWithDetails(types.ErrInvalidInput, "failed to read document", path, err)
	}
	return DecodeText(data)
}

// WriteFileAtomic writes data to a temporary file in the destination
// directory and renames it over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// WriteText writes text atomically with 0644 permissions.
func WriteText(path, text string) error {
	if err := WriteFileAtomic(path, []byte(text), 0644); err != nil {
		return types.NewAppErrorWithDetails(types.ErrInternal, "failed to write file", path, err)
	}
	return nil
}

// CopyFile copies src to dst byte for byte. Copying a file onto itself is a
// no-op.
func CopyFile(src, dst string) error {
	absSrc, err1 := filepath.Abs(src)
	absDst, err2 := filepath.Abs(dst)
	if err1 == nil && err2 == nil && absSrc == absDst {
		return nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return types.NewAppErrorWithDetails(types.ErrFileNotFound, "document not found", src, err)
		}
		return types.NewAppErrorWithDetails(types.ErrInvalidInput, "failed to read document", src, err)
	}
	if err := WriteFileAtomic(dst, data, 0644); err != nil {
		return types.NewAppErrorWithDetails(types.ErrInternal, "failed to copy document", dst, err)
	}
	return nil
}

// ResolveInputs expands each pattern with doublestar globbing ("**" matches
// any depth). Plain paths must exist. Results are de-duplicated and sorted
// per pattern.
func ResolveInputs(patterns []string) ([]string, error) {
	var resolved []string
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		var matches []string
		if containsGlob(pattern) {
			m, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
			if err != nil {
				return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput, "invalid input pattern", pattern, err)
			}
			if len(m) == 0 {
				return nil, types.NewAppErrorWithDetails(types.ErrFileNotFound, "no files match pattern", pattern, nil)
			}
			sort.Strings(m)
			matches = m
		} else {
			info, err := os.Stat(pattern)
			if err != nil {
				return nil, types.NewAppErrorWithDetails(types.ErrFileNotFound, "input not found", pattern, err)
			}
			if info.IsDir() {
				return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput, "input is a directory",
					fmt.Sprintf("%s (use a pattern such as %s)", pattern, filepath.Join(pattern, "**", "*.tex")), nil)
			}
			matches = []string{pattern}
		}

		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				resolved = append(resolved, m)
			}
		}
	}
	return resolved, nil
}

func containsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
