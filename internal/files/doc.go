// Package files owns the durable side of a download run: expanding staged
// exports (zip, gzip) into their payloads, committing payloads into the
// canonical archive layout with an atomic move, and optionally mirroring
// committed files to a blob bucket.
package files
