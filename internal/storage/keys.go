package storage

import "strings"

// NormalizeListing canonicalizes a listing prefix and start-after pair.
//
// The leading delimiter is stripped from prefix; a run such as "//photos" is
// collapsed too, so the result never starts with the delimiter. When the
// stripped prefix ends with the delimiter and no startAfter was supplied,
// startAfter becomes the prefix itself so the "directory" placeholder object
// is skipped. An empty delimiter returns the inputs unchanged; callers are
// expected to reject it first.
func NormalizeListing(prefix, delimiter, startAfter string) (string, string) {
	if delimiter == "" {
		return prefix, startAfter
	}
	for strings.HasPrefix(prefix, delimiter) {
		prefix = prefix[len(delimiter):]
	}
	if startAfter == "" && strings.HasSuffix(prefix, delimiter) {
		startAfter = prefix
	}
	return prefix, startAfter
}

// PublicURL returns the virtual-hosted-style URL for key. No network call is
// made and the object is not checked for existence.
func PublicURL(bucket, region, key string) string {
	return "https://" + bucket + ".s3." + region + ".amazonaws.com/" + key
}
