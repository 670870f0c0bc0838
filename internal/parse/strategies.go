package parse

import (
	"bytes"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"qrattend/internal/models"
)

// maxBareIDLength bounds payloads accepted as a bare student ID, counted in
// UTF-16 code units to match what scanners report.
const maxBareIDLength = 50

var (
	idKeys      = []string{"id", "studentId", "student_id"}
	nameKeys    = []string{"name", "studentName", "student_name"}
	sectionKeys = []string{"section", "sectionName", "section_name"}

	idPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)ID[:\s]+([A-Z0-9]+)`),
		regexp.MustCompile(`(?i)STUDENT[:\s]+([A-Z0-9]+)`),
		regexp.MustCompile(`(\d{4,})`),
		regexp.MustCompile(`(?i)([A-Z]{2,}\d{2,})`),
	}
)

// Delimited splits on sep and maps the fields to id, name and an optional
// section. Fields are trimmed; an empty third field means defaultSection.
func Delimited(sep string) func(raw, defaultSection string) (models.StudentIdentity, bool) {
	return func(raw, defaultSection string) (models.StudentIdentity, bool) {
		if !strings.Contains(raw, sep) {
			return models.StudentIdentity{}, false
		}
		parts := strings.Split(raw, sep)
		if len(parts) < 2 {
			return models.StudentIdentity{}, false
		}
		section := defaultSection
		if len(parts) > 2 && parts[2] != "" {
			section = strings.TrimSpace(parts[2])
		}
		return models.StudentIdentity{
			ID:      strings.TrimSpace(parts[0]),
			Name:    strings.TrimSpace(parts[1]),
			Section: section,
		}, true
	}
}

// JSON accepts an object carrying any of the id keys.
func JSON(raw, defaultSection string) (models.StudentIdentity, bool) {
	if !strings.HasPrefix(raw, "{") && !strings.HasPrefix(raw, "[") {
		return models.StudentIdentity{}, false
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return models.StudentIdentity{}, false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return models.StudentIdentity{}, false
	}
	id, ok := firstTruthy(obj, idKeys)
	if !ok {
		return models.StudentIdentity{}, false
	}
	name, ok := firstTruthy(obj, nameKeys)
	if !ok {
		name = models.UnknownName
	}
	section, ok := firstTruthy(obj, sectionKeys)
	if !ok {
		section = defaultSection
	}
	return models.StudentIdentity{ID: id, Name: name, Section: section}, true
}

// URL reads the identity from query parameters of an absolute URL.
func URL(raw, defaultSection string) (models.StudentIdentity, bool) {
	if !strings.Contains(raw, "?") || !strings.Contains(raw, "=") {
		return models.StudentIdentity{}, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return models.StudentIdentity{}, false
	}
	q := u.Query()
	id := firstParam(q, idKeys)
	if id == "" {
		return models.StudentIdentity{}, false
	}
	name := firstParam(q, nameKeys)
	section := firstParam(q, sectionKeys)
	identity := models.StudentIdentity{
		ID:              id,
		Name:            name,
		Section:         section,
		NeedsManualInfo: name == "",
	}
	if identity.Name == "" {
		identity.Name = models.UnknownName
	}
	if identity.Section == "" {
		identity.Section = defaultSection
	}
	return identity, true
}

// BareID treats short, space-free text as the student ID itself.
func BareID(raw, defaultSection string) (models.StudentIdentity, bool) {
	if raw == "" || utf16Len(raw) >= maxBareIDLength || strings.Contains(raw, " ") {
		return models.StudentIdentity{}, false
	}
	return models.StudentIdentity{
		ID:              raw,
		Name:            models.UnknownName,
		Section:         defaultSection,
		NeedsManualInfo: true,
	}, true
}

// Pattern extracts an ID-looking token from free text.
func Pattern(raw, defaultSection string) (models.StudentIdentity, bool) {
	for _, re := range idPatterns {
		if m := re.FindStringSubmatch(raw); m != nil {
			return models.StudentIdentity{
				ID:              m[1],
				Name:            models.UnknownName,
				Section:         defaultSection,
				NeedsManualInfo: true,
			}, true
		}
	}
	return models.StudentIdentity{}, false
}

func firstTruthy(obj map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if s, ok := truthyString(obj[k]); ok {
			return s, true
		}
	}
	return "", false
}

// truthyString converts a decoded JSON value to text, reporting false for
// values that are empty, zero, false or null.
func truthyString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, t != ""
	case json.Number:
		f, err := t.Float64()
		if err != nil || f == 0 {
			return "", false
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	case bool:
		return "true", t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

func firstParam(q url.Values, keys []string) string {
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
