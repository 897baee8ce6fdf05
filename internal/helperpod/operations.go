// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package helperpod

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Entry is one directory listing row.
type Entry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"` // "file" or "folder"
	Size  int64  `json:"size"`
	Mtime int64  `json:"mtime"`
}

// List returns the entries of a directory under the result mount.
func (m *Manager) List(ctx context.Context, path string) (entries []Entry, err error) {
	defer func() { recordOperation("list", err) }()

	dir, err := validatePath(path)
	if err != nil {
		return nil, err
	}

	script := fmt.Sprintf(`DIR=%s
for f in "$DIR"/*; do
  [ -e "$f" ] || continue
  name=$(basename "$f")
  if [ -d "$f" ]; then t=folder; else t=file; fi
  size=$(stat -c %%s "$f" 2>/dev/null || echo 0)
  mtime=$(stat -c %%Y "$f" 2>/dev/null || echo 0)
  printf '{"id":"%%s","name":"%%s","type":"%%s","size":%%s,"mtime":%%s}\n' "$f" "$name" "$t" "$size" "$mtime"
done
`, shQuote(dir))

	result, err := m.execScript(ctx, script)
	if err != nil {
		return nil, err
	}

	for _, line := range strings.Split(strings.TrimSpace(result.Stdout), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Content is the result of a read or preview operation.
type Content struct {
	Bytes     []byte
	Encoding  string // "text" or "base64"
	MediaType string // only set by Preview
}

// Read returns a file's content, text-decoded when it is valid UTF-8 and
// base64-tagged otherwise.
func (m *Manager) Read(ctx context.Context, path string) (content *Content, err error) {
	defer func() { recordOperation("read", err) }()

	file, err := validatePath(path)
	if err != nil {
		return nil, err
	}

	script := fmt.Sprintf(`base64 %s`, shQuote(file))
	result, err := m.execScript(ctx, script)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(result.Stdout))
	if err != nil {
		return nil, fmt.Errorf("helperpod: decode read result for %s: %w", path, err)
	}

	if utf8.Valid(raw) {
		return &Content{Bytes: raw, Encoding: "text"}, nil
	}
	return &Content{Bytes: raw, Encoding: "base64"}, nil
}

// Preview returns image content with a media type, or falls back to Read
// for non-image paths. dims is accepted for the image-resize contract but
// is not applied — the helper pod has no image-processing tool installed,
// so preview always returns the source bytes.
func (m *Manager) Preview(ctx context.Context, path string, dims string) (*Content, error) {
	content, err := m.Read(ctx, path)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	mediaType := mime.TypeByExtension(ext)
	if !strings.HasPrefix(mediaType, "image/") {
		return content, nil
	}
	content.MediaType = mediaType
	content.Encoding = "base64"
	return content, nil
}

// Copy duplicates source to destination and normalizes its permissions,
// both paths constrained to the result mount.
func (m *Manager) Copy(ctx context.Context, source, destination string) (err error) {
	defer func() { recordOperation("copy", err) }()

	src, err := validatePath(source)
	if err != nil {
		return err
	}
	dst, err := validatePath(destination)
	if err != nil {
		return err
	}

	script := fmt.Sprintf(`cp %s %s && chmod 644 %s`, shQuote(src), shQuote(dst), shQuote(dst))
	_, err = m.execScript(ctx, script)
	return err
}

// Upload writes bytes under dir as filename, appending "_N" before any
// extension if filename already exists, and returns the name actually
// used. The write is atomic: content lands in a temp file first, then is
// renamed into place.
func (m *Manager) Upload(ctx context.Context, dir, filename string, content []byte) (name string, err error) {
	defer func() { recordOperation("upload", err) }()

	target, err := validatePath(dir)
	if err != nil {
		return "", err
	}

	encoded := base64.StdEncoding.EncodeToString(content)
	script := fmt.Sprintf(`DIR=%s
BASE=%s
NAME="$BASE"
i=1
while [ -e "$DIR/$NAME" ]; do
  EXT=""
  STEM="$BASE"
  case "$BASE" in
    *.*) EXT=".${BASE##*.}"; STEM="${BASE%%.*}" ;;
  esac
  NAME="${STEM}_${i}${EXT}"
  i=$((i+1))
done
TMP=$(mktemp "$DIR/.upload.XXXXXX")
echo %s | base64 -d > "$TMP"
mv "$TMP" "$DIR/$NAME"
printf '%%s' "$NAME"
`, shQuote(target), shQuote(filename), encoded)

	result, err := m.execScript(ctx, script)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// shQuote wraps s in single quotes for embedding in a POSIX shell script,
// escaping any single quote already present.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
