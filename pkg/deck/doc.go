/*
Package deck defines the structured view of a slide document: content
snapshots, the semantic anchor codec that addresses elements across
read/modify cycles, and the reader that produces snapshots through the
sandbox toolchain.

# Anchors

Every element in a snapshot carries an anchor of the form

	slide{container}_{kind}{index}_{digest}

where container is the 1-based slide number, kind the element's structural
role, index its 0-based position among same-kind elements of the slide, and
digest the first six hex characters of the SHA-256 of the trimmed text
content. Anchors are content-addressed pointers: editing an element changes
its digest, so a held anchor goes stale instead of silently pointing at new
content.
*/
package deck
