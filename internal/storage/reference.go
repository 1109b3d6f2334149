// Package storage resolves blob storage references into fetchable URLs.
//
// A reference is a field value of the form s3://bucket/key. Any other value
// is a literal URL and passes through untouched.
package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const Scheme = "s3://"

// downloadMarker separates the bucket portion of a download page URL from
// the escaped object key.
const downloadMarker = "/o/"

var (
	ErrInvalidReference = errors.New("invalid storage reference")
	ErrMalformedURL     = errors.New("malformed download page url")
)

// Object identifies a blob.
type Object struct {
	Bucket string
	Key    string
}

func (o Object) String() string {
	return Scheme + o.Bucket + "/" + o.Key
}

// IsReference reports whether s uses the storage scheme.
func IsReference(s string) bool {
	return strings.HasPrefix(s, Scheme)
}

// ParseReference splits s3://bucket/key.
func ParseReference(ref string) (Object, error) {
	if !IsReference(ref) {
		return Object{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(ref, Scheme), "/")
	if !ok || bucket == "" || key == "" {
		return Object{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	return Object{Bucket: bucket, Key: key}, nil
}

// DownloadPageURL renders the public download page URL of obj:
// <base>/v0/b/<bucket>/o/<escaped key>?alt=media
func DownloadPageURL(base string, obj Object) string {
	return strings.TrimRight(base, "/") + "/v0/b/" + obj.Bucket + downloadMarker +
		url.PathEscape(obj.Key) + "?alt=media"
}

// ObjectFromDownloadURL recovers the object behind a download page URL.
// The key is whatever follows the "/o/" marker, minus the query string.
// URLs of any other shape are rejected instead of producing a wrong key.
func ObjectFromDownloadURL(raw string) (Object, error) {
	head, tail, ok := strings.Cut(raw, downloadMarker)
	if !ok {
		return Object{}, fmt.Errorf("%w: missing %q marker", ErrMalformedURL, downloadMarker)
	}
	escaped, _, _ := strings.Cut(tail, "?")
	key, err := url.PathUnescape(escaped)
	if err != nil {
		return Object{}, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if key == "" {
		return Object{}, fmt.Errorf("%w: empty object key", ErrMalformedURL)
	}

	var bucket string
	if i := strings.LastIndex(head, "/b/"); i >= 0 {
		bucket = head[i+len("/b/"):]
	}
	return Object{Bucket: bucket, Key: key}, nil
}
