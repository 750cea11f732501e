package uploader

import "golang.org/x/text/unicode/norm"

// normalizeName converts a file name to NFC so records created from
// decomposed names compare equal to their remote copies.
func normalizeName(name string) string {
	return norm.NFC.String(name)
}
