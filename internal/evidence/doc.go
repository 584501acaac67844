// Package evidence abstracts read access to an evidence container: a mounted
// filesystem or disk-image export that can list candidate files, open one of
// them for streaming, and hand out additional independent handles so parallel
// readers never share one.
//
// Listings can come from walking the container or from a catalog such as a
// Sleuth Kit bodyfile. Paths are slash-separated and relative to the container
// root, with name bytes kept exactly as stored. SortKey gives the NFC form
// used for ordering, so runs over composed and decomposed names sort alike.
package evidence
