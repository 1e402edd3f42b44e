package ontology

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/bbowles1/HIPPO/pkg/errors"
)

// maxOBOLine bounds a single catalog line; HPO definitions can run long.
const maxOBOLine = 4 << 20

// LoadOBOFile opens path and parses it with ParseOBO.
func LoadOBOFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOntologyLoadFailed, "failed to open ontology catalog").WithDetail(path)
	}
	defer f.Close()

	cat, err := ParseOBO(f)
	if err != nil {
		return nil, errors.WrapMsg(err, "failed to parse ontology catalog").WithDetail(path)
	}
	return cat, nil
}

// ParseOBO reads an OBO 1.2/1.4 flat file.  Only [Term] stanzas are kept and
// only the tags id, name, is_a, alt_id, is_obsolete and replaced_by are
// interpreted; other relationship types and [Typedef] stanzas are ignored.
func ParseOBO(r io.Reader) (*Catalog, error) {
	cat := &Catalog{}
	seen := make(map[string]struct{})

	var (
		cur       *Term
		stanza    string // "" while still in the header
		stanzaAt  int
		lineNo    int
		scanner   = bufio.NewScanner(r)
		flushTerm = func() error {
			if stanza != "[Term]" {
				return nil
			}
			if cur == nil || cur.ID == "" {
				return errors.Newf(errors.ErrCodeOntologyParseFailed, "[Term] stanza at line %d has no id", stanzaAt)
			}
			if _, dup := seen[cur.ID]; dup {
				return errors.Newf(errors.ErrCodeOntologyParseFailed, "duplicate term %s at line %d", cur.ID, stanzaAt)
			}
			seen[cur.ID] = struct{}{}
			cat.Terms = append(cat.Terms, cur)
			return nil
		}
	)
	scanner.Buffer(make([]byte, 64*1024), maxOBOLine)

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if err := flushTerm(); err != nil {
				return nil, err
			}
			stanza, stanzaAt, cur = line, lineNo, nil
			if stanza == "[Term]" {
				cur = &Term{}
			}
			continue
		}

		tag, value, ok := splitTag(line)
		if !ok {
			return nil, errors.Newf(errors.ErrCodeOntologyParseFailed, "line %d is not a tag-value pair", lineNo)
		}

		switch stanza {
		case "":
			switch tag {
			case "format-version":
				cat.FormatVersion = value
			case "data-version":
				cat.DataVersion = value
			case "ontology":
				cat.Ontology = value
			}
		case "[Term]":
			applyTermTag(cur, tag, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOntologyParseFailed, "failed to read ontology catalog")
	}
	if err := flushTerm(); err != nil {
		return nil, err
	}
	return cat, nil
}

func splitTag(line string) (tag, value string, ok bool) {
	i := strings.Index(line, ":")
	if i <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}

// refValue reduces "HP:0000118 {source=x} ! Phenotypic abnormality" to the
// bare identifier.
func refValue(value string) string {
	if j := strings.Index(value, "!"); j >= 0 {
		value = value[:j]
	}
	if j := strings.Index(value, "{"); j >= 0 {
		value = value[:j]
	}
	return strings.TrimSpace(value)
}

func applyTermTag(t *Term, tag, value string) {
	switch tag {
	case "id":
		t.ID = refValue(value)
	case "name":
		t.Name = value
	case "is_a":
		if id := refValue(value); id != "" {
			t.Parents = append(t.Parents, id)
		}
	case "alt_id":
		if id := refValue(value); id != "" {
			t.AltIDs = append(t.AltIDs, id)
		}
	case "is_obsolete":
		t.Obsolete = strings.EqualFold(refValue(value), "true")
	case "replaced_by":
		if id := refValue(value); id != "" {
			t.ReplacedBy = append(t.ReplacedBy, id)
		}
	}
}
