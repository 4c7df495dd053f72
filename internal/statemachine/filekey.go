package statemachine

import (
	"strings"

	"aicca-realtime/internal/session"

	"github.com/tidwall/gjson"
)

const fileRefPrefix = "file:"

// Invocation argument fields that may name a file, in priority order.
var argFileFields = []string{"image_path", "media_path", "file_path", "content"}

// Result fields consulted when the arguments name no file.
var resultFileFields = []string{"file_name", "media_path", "local_analysis.file_path"}

type fileRef struct {
	Name string
	ID   string
}

func (r fileRef) empty() bool { return r.Name == "" && r.ID == "" }

func (r fileRef) key() string { return session.FileKey(r.ID, r.Name) }

// resolveFile works out which file a tool result belongs to.
func (m *Machine) resolveFile(args, result []byte) fileRef {
	ref := m.refFromFields(args, argFileFields)
	if ref.empty() {
		ref = m.refFromFields(result, resultFileFields)
	}
	if ref.ID == "" && ref.Name != "" {
		if id, ok := m.store.FileID(ref.Name); ok {
			ref.ID = id
		}
	}
	return ref
}

func (m *Machine) refFromFields(doc []byte, fields []string) fileRef {
	if len(doc) == 0 || !gjson.ValidBytes(doc) {
		return fileRef{}
	}
	parsed := gjson.ParseBytes(doc)
	for _, field := range fields {
		v := parsed.Get(field)
		if v.Type != gjson.String {
			continue
		}
		if ref, ok := m.parseRef(v.String(), field == "content"); ok {
			return ref
		}
	}
	return fileRef{}
}

// parseRef accepts file:<id> or a path. Free text fields only count when they
// hold a single token, so a chat sentence is never mistaken for a file name.
func (m *Machine) parseRef(value string, freeText bool) (fileRef, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fileRef{}, false
	}

	if strings.HasPrefix(value, fileRefPrefix) {
		id := strings.TrimSpace(strings.TrimPrefix(value, fileRefPrefix))
		if id == "" {
			return fileRef{}, false
		}
		name, _ := m.store.FileName(id)
		return fileRef{ID: id, Name: name}, true
	}

	if freeText && strings.ContainsAny(value, " \t\r\n") {
		return fileRef{}, false
	}
	name := lastSegment(value)
	if name == "" {
		return fileRef{}, false
	}
	return fileRef{Name: name}, true
}

func lastSegment(path string) string {
	path = strings.TrimRight(path, `/\`)
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
