package deck

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/deckhand/pkg/domain"
)

// ElementKind identifies the structural role of a snapshot element.
type ElementKind string

const (
	KindTitle    ElementKind = "title"
	KindSubtitle ElementKind = "subtitle"
	KindBody     ElementKind = "body"
	KindBullet   ElementKind = "bullet"
	KindImage    ElementKind = "image"
	KindTable    ElementKind = "table"
	KindShape    ElementKind = "shape"
	KindOther    ElementKind = "other"
)

// IsValid reports whether k is one of the known element kinds.
func (k ElementKind) IsValid() bool {
	switch k {
	case KindTitle, KindSubtitle, KindBody, KindBullet, KindImage, KindTable, KindShape, KindOther:
		return true
	}
	return false
}

func (k ElementKind) String() string { return string(k) }

// Anchor is the opaque token addressing one element. See the package doc
// for the grammar.
type Anchor string

func (a Anchor) String() string { return string(a) }

// Ref is the parsed form of an anchor.
type Ref struct {
	// Container is the 1-based slide number.
	Container int

	// Kind is the element's structural role.
	Kind ElementKind

	// Local is the 0-based position among same-kind elements of the slide,
	// in traversal order.
	Local int

	// Digest is the content hash prefix recorded when the anchor was
	// produced.
	Digest string
}

// DigestLen is the number of hex characters kept from the content hash.
const DigestLen = 6

// Digest returns the anchor digest for a piece of element text: the first
// DigestLen lowercase hex characters of the SHA-256 of the trimmed content.
func Digest(content string) string {
	return digestFull(content)[:DigestLen]
}

func digestFull(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}

// Encode derives the anchor for an element. It is deterministic: identical
// arguments always yield the identical token, and any change to content
// changes the digest segment.
func Encode(container int, kind ElementKind, local int, content string) Anchor {
	return Anchor(fmt.Sprintf("slide%d_%s%d_%s", container, kind, local, Digest(content)))
}

// anchorPattern matches the three-segment grammar. The digest segment
// accepts six to eight hex characters so tokens from longer-digest
// producers still parse.
var anchorPattern = regexp.MustCompile(`^slide([0-9]+)_([a-z]+)([0-9]+)_([0-9a-f]{6,8})$`)

// Parse splits an anchor token into its Ref. Tokens that do not match the
// grammar fail with domain.ErrMalformedAnchor.
func Parse(a Anchor) (Ref, error) {
	m := anchorPattern.FindStringSubmatch(string(a))
	if m == nil {
		return Ref{}, fmt.Errorf("%w: %q", domain.ErrMalformedAnchor, a)
	}
	container, err := strconv.Atoi(m[1])
	if err != nil || container < 1 {
		return Ref{}, fmt.Errorf("%w: %q", domain.ErrMalformedAnchor, a)
	}
	local, err := strconv.Atoi(m[3])
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %q", domain.ErrMalformedAnchor, a)
	}
	return Ref{
		Container: container,
		Kind:      ElementKind(m[2]),
		Local:     local,
		Digest:    m[4],
	}, nil
}

// Resolve walks a detail snapshot to the element the anchor addresses and
// confirms the digest still matches the element's current content. It
// returns nil when the structural address is gone or the content has
// changed since the anchor was minted; staleness is an expected condition,
// not an error. The only error is a malformed token.
func Resolve(slides []Slide, a Anchor) (*Element, error) {
	ref, err := Parse(a)
	if err != nil {
		return nil, err
	}
	for i := range slides {
		if slides[i].SlideNumber != ref.Container {
			continue
		}
		seen := 0
		var found *Element
		walkElements(slides[i].Elements, func(el *Element) bool {
			if ElementKind(el.Anchor.Type) != ref.Kind {
				return true
			}
			if seen == ref.Local {
				found = el
				return false
			}
			seen++
			return true
		})
		if found == nil {
			return nil, nil
		}
		if !strings.HasPrefix(digestFull(found.Content), ref.Digest) {
			return nil, nil
		}
		return found, nil
	}
	return nil, nil
}

// walkElements visits elements depth-first in document order. The visitor
// returns false to stop the walk.
func walkElements(elements []Element, visit func(*Element) bool) bool {
	for i := range elements {
		if !visit(&elements[i]) {
			return false
		}
		if !walkElements(elements[i].Children, visit) {
			return false
		}
	}
	return true
}
